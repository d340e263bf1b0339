package convert

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
)

func TestCoerceDate(t *testing.T) {
	v, err := CoerceHL7Spec("19800202", template.TypeDate)
	require.NoError(t, err)
	require.Equal(t, "1980-02-02", v)

	v, err = CoerceHL7Spec("198002021230", template.TypeDate)
	require.NoError(t, err)
	require.Equal(t, "1980-02-02T12:30:00Z", v)

	v, err = CoerceHL7Spec("19800202123045", template.TypeDate)
	require.NoError(t, err)
	require.Equal(t, "1980-02-02T12:30:45Z", v)
}

func TestCoerceDateFailure(t *testing.T) {
	_, err := CoerceHL7Spec("BAD", template.TypeDate)
	require.Error(t, err)
	require.IsType(t, &CoercionError{}, err)
}

func TestCoerceBoolean(t *testing.T) {
	v, err := CoerceHL7Spec("Y", template.TypeBoolean)
	require.NoError(t, err)
	require.Equal(t, true, v)

	v, err = CoerceHL7Spec("N", template.TypeBoolean)
	require.NoError(t, err)
	require.Equal(t, false, v)
}

func TestCoerceInteger(t *testing.T) {
	v, err := CoerceHL7Spec("42", template.TypeInteger)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCoerceStringPassthrough(t *testing.T) {
	v, err := CoerceHL7Spec("hello", template.TypeString)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}
