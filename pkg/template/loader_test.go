package template

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template/embedded"
)

func newEmbeddedLoader() *Loader {
	return NewLoader("", "", embedded.FS)
}

func TestGetMessageTemplateFallsBackToDefault(t *testing.T) {
	l := newEmbeddedLoader()
	mt, err := l.GetMessageTemplate("ADT_A01", "9.9")
	require.NoError(t, err)
	require.Equal(t, "message/ADT_A01.yml", mt.Name)
	require.Len(t, mt.Entries, 3)
}

func TestGetMessageTemplateVersionDispatch(t *testing.T) {
	l := newEmbeddedLoader()

	def, err := l.GetMessageTemplate("ADT_A03", "2.6")
	require.NoError(t, err)
	require.Len(t, def.Entries, 2)

	v23, err := l.GetMessageTemplate("ADT_A03", "2.3")
	require.NoError(t, err)
	require.Equal(t, "v2.3/message/ADT_A03.yml", v23.Name)
	require.Len(t, v23.Entries, 3)
}

func TestGetMessageTemplateNotFound(t *testing.T) {
	l := newEmbeddedLoader()
	_, err := l.GetMessageTemplate("ZZZ_Z99", "2.6")
	require.Error(t, err)
	require.IsType(t, &NotFoundError{}, err)
}

func TestResourceTemplateCaching(t *testing.T) {
	l := newEmbeddedLoader()
	rt1, err := l.ResourceTemplate("resource/Patient")
	require.NoError(t, err)
	rt2, err := l.ResourceTemplate("resource/Patient")
	require.NoError(t, err)
	require.Same(t, rt1, rt2)
	require.Equal(t, "Patient", rt1.ResourceType)
}

func TestResourceTemplateFieldOrderPreserved(t *testing.T) {
	l := newEmbeddedLoader()
	rt, err := l.ResourceTemplate("resource/Patient")
	require.NoError(t, err)
	var names []string
	for _, f := range rt.Fields {
		names = append(names, f.Name)
	}
	require.Equal(t, []string{"identifier", "name", "gender", "birthDate"}, names)
}

func TestDiscoverMessageTypes(t *testing.T) {
	l := newEmbeddedLoader()
	names, err := l.DiscoverMessageTypes()
	require.NoError(t, err)
	require.Contains(t, names, "ADT_A01")
	require.Contains(t, names, "ADT_A03")
}
