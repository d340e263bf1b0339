package convert

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template/embedded"
)

func newTestCoordinator() *Coordinator {
	loader := template.NewLoader("", "", embedded.FS)
	return NewCoordinator(loader, "2.6", []string{"*"}, zerolog.Nop())
}

const adtA01 = "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A01|102|T|2.6\r" +
	"EVN||201209122222\r" +
	"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M\r" +
	"PV1|1|I|2000^2012^01"

// Scenario 1: ADT_A01 minimal.
func TestADT_A01Minimal(t *testing.T) {
	c := newTestCoordinator()
	result, err := c.Convert(context.Background(), adtA01)
	require.NoError(t, err)
	require.Len(t, result.Bundle.Entries, 2)

	patient := result.Bundle.Entries[0]
	require.Equal(t, "Patient", patient.ResourceType)

	// Field order must match Patient.yml's declaration order: identifier,
	// name, gender, birthDate — this is the §5 ordering guarantee, not just
	// the presence of the right values.
	require.Equal(t, []string{"identifier", "name", "gender", "birthDate"}, patient.Fields.Keys())

	identifiersRaw, _ := patient.Fields.Get("identifier")
	identifiers := identifiersRaw.([]interface{})
	require.Len(t, identifiers, 1)
	id0 := identifiers[0].(*FieldMap)
	system, _ := id0.Get("system")
	value, _ := id0.Get("value")
	require.Equal(t, "MRN", system)
	require.Equal(t, "123456", value)
	require.Equal(t, []string{"system", "value"}, id0.Keys())

	namesRaw, _ := patient.Fields.Get("name")
	names := namesRaw.([]interface{})
	name0 := names[0].(*FieldMap)
	family, _ := name0.Get("family")
	given, _ := name0.Get("given")
	require.Equal(t, "DOE", family)
	require.Equal(t, []interface{}{"JOHN", "A"}, given)

	gender, _ := patient.Fields.Get("gender")
	birthDate, _ := patient.Fields.Get("birthDate")
	require.Equal(t, "male", gender)
	require.Equal(t, "1980-02-02", birthDate)

	encounter := result.Bundle.Entries[1]
	require.Equal(t, "Encounter", encounter.ResourceType)
	subjectRaw, _ := encounter.Fields.Get("subject")
	subject := subjectRaw.(map[string]interface{})
	require.Equal(t, "Patient/"+patient.ID, subject["reference"])
}

// Field order within an entry must survive JSON serialization too, not
// just in-memory Keys() order — this is what an API consumer actually sees.
func TestEntryJSONPreservesFieldDeclarationOrder(t *testing.T) {
	c := newTestCoordinator()
	result, err := c.Convert(context.Background(), adtA01)
	require.NoError(t, err)

	raw, err := json.Marshal(result.Bundle.Entries[0])
	require.NoError(t, err)

	idxResourceType := indexOf(string(raw), `"resourceType"`)
	idxID := indexOf(string(raw), `"id"`)
	idxIdentifier := indexOf(string(raw), `"identifier"`)
	idxName := indexOf(string(raw), `"name"`)
	idxGender := indexOf(string(raw), `"gender"`)
	idxBirthDate := indexOf(string(raw), `"birthDate"`)

	require.True(t, idxResourceType < idxID)
	require.True(t, idxID < idxIdentifier)
	require.True(t, idxIdentifier < idxName)
	require.True(t, idxName < idxGender)
	require.True(t, idxGender < idxBirthDate)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// Scenario 2: version-specific template dispatch.
func TestVersionSpecificTemplateDispatch(t *testing.T) {
	c := newTestCoordinator()
	raw23 := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A03|102|T|2.3\r" +
		"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M\r" +
		"PV1|1|I|2000^2012^01\r" +
		"AL1|1|DA|PENICILLIN"
	result, err := c.Convert(context.Background(), raw23)
	require.NoError(t, err)
	// The v2.3 override adds an AllergyIntolerance entry the default
	// ADT_A03 template does not declare.
	require.Len(t, result.Bundle.Entries, 3)
	require.Equal(t, "AllergyIntolerance", result.Bundle.Entries[2].ResourceType)
}

// Scenario 3: repeating segment.
func TestRepeatingSegmentProducesOneEntryPerOccurrence(t *testing.T) {
	c := newTestCoordinator()
	raw := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A01|102|T|2.6\r" +
		"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M\r" +
		"AL1|1|DA|PENICILLIN\r" +
		"AL1|2|DA|LATEX\r" +
		"AL1|3|DA|PEANUTS"
	result, err := c.Convert(context.Background(), raw)
	require.NoError(t, err)

	var allergies []*Entry
	for _, e := range result.Bundle.Entries {
		if e.ResourceType == "AllergyIntolerance" {
			allergies = append(allergies, e)
		}
	}
	require.Len(t, allergies, 3)
	code0, _ := allergies[0].Fields.Get("code")
	code1, _ := allergies[1].Fields.Get("code")
	code2, _ := allergies[2].Fields.Get("code")
	require.Equal(t, "PENICILLIN", code0)
	require.Equal(t, "LATEX", code1)
	require.Equal(t, "PEANUTS", code2)
	require.NotEqual(t, allergies[0].ID, allergies[1].ID)
}

// Scenario 4: line-ending normalisation.
func TestLineEndingRobustness(t *testing.T) {
	c := newTestCoordinator()
	lf := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A01|102|T|2.6\n" +
		"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M"
	crlf := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A01|102|T|2.6\r\n" +
		"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M"
	cr := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A01|102|T|2.6\r" +
		"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M"

	var results []*Result
	for _, raw := range []string{lf, crlf, cr} {
		r, err := c.Convert(context.Background(), raw)
		require.NoError(t, err)
		results = append(results, r)
	}
	for _, r := range results[1:] {
		require.Equal(t, results[0].Bundle.Entries[0].Fields, r.Bundle.Entries[0].Fields)
		require.Equal(t, results[0].Report.PerSegment, r.Report.PerSegment)
	}
}

// Scenario 5: unmapped Z segment is tracked as available-but-unread.
func TestUnmappedZSegmentTrackedAsUnread(t *testing.T) {
	c := newTestCoordinator()
	raw := adtA01 + "\rZPD|secret|value"
	result, err := c.Convert(context.Background(), raw)
	require.NoError(t, err)

	zpd, ok := result.Report.PerSegment["ZPD"]
	require.True(t, ok)
	require.Contains(t, zpd.Available, "1")
	require.Contains(t, zpd.Available, "2")
	require.NotContains(t, zpd.Read, "1")
	require.NotContains(t, zpd.Read, "2")
}

// Scenario 6: missing reference target is a fatal per-conversion error,
// but the coverage report is still produced.
func TestMissingReferenceTargetIsFatal(t *testing.T) {
	c := newTestCoordinator()
	raw := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A03|102|T|2.6\r" +
		"PV1|1|I|2000^2012^01"
	result, err := c.Convert(context.Background(), raw)
	require.Error(t, err)
	require.IsType(t, &UnresolvedReferenceError{}, err)
	require.NotNil(t, result.Report)
}

// supported.hl7.messages gates which message types Convert will accept,
// even when the Loader has a template for them.
func TestUnsupportedMessageTypeIsRejected(t *testing.T) {
	loader := template.NewLoader("", "", embedded.FS)
	c := NewCoordinator(loader, "2.6", []string{"ADT_A03"}, zerolog.Nop())

	result, err := c.Convert(context.Background(), adtA01)
	require.Error(t, err)
	require.IsType(t, &UnknownMessageTypeError{}, err)
	require.NotNil(t, result.Report)
}

// A message type the Loader cannot find any template for, at all, still
// surfaces as the same convert-level UnknownMessageTypeError.
func TestUnknownMessageTypeWiredOnTemplateNotFound(t *testing.T) {
	c := newTestCoordinator()
	raw := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ZZZ^Z99|102|T|2.6\r" +
		"PID|1||123456^^^MRN||DOE^JOHN^A||19800202|M"
	_, err := c.Convert(context.Background(), raw)
	require.Error(t, err)
	require.IsType(t, &UnknownMessageTypeError{}, err)
}

// Reference integrity: every reference in the bundle names an id that
// appears earlier in the bundle.
func TestReferenceIntegrity(t *testing.T) {
	c := newTestCoordinator()
	result, err := c.Convert(context.Background(), adtA01)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, e := range result.Bundle.Entries {
		if sub, ok := e.Fields.Get("subject"); ok {
			ref := sub.(map[string]interface{})["reference"].(string)
			require.True(t, seen[ref], "reference %s must name an id already emitted", ref)
		}
		seen[e.ResourceType+"/"+e.ID] = true
	}
}

// Ordering stability: two runs over the same input produce the same
// resourceType sequence and field sets, differing only in ids.
func TestOrderingStability(t *testing.T) {
	c := newTestCoordinator()
	r1, err := c.Convert(context.Background(), adtA01)
	require.NoError(t, err)
	r2, err := c.Convert(context.Background(), adtA01)
	require.NoError(t, err)

	require.Equal(t, len(r1.Bundle.Entries), len(r2.Bundle.Entries))
	for i := range r1.Bundle.Entries {
		require.Equal(t, r1.Bundle.Entries[i].ResourceType, r2.Bundle.Entries[i].ResourceType)
		require.Equal(t, r1.Bundle.Entries[i].Fields.Keys(), r2.Bundle.Entries[i].Fields.Keys())
	}
}

// Bundle.Timestamp is the one field §8 allows to vary between otherwise
// identical runs; it must still be present and a valid RFC 3339 instant.
func TestBundleTimestampIsStampedPerConversion(t *testing.T) {
	c := newTestCoordinator()
	result, err := c.Convert(context.Background(), adtA01)
	require.NoError(t, err)
	require.NotEmpty(t, result.Bundle.Timestamp)
	_, err = time.Parse(time.RFC3339, result.Bundle.Timestamp)
	require.NoError(t, err)
}

// Empty-field omission: no emitted resource contains a literal empty
// string field value.
func TestEmptyFieldOmission(t *testing.T) {
	c := newTestCoordinator()
	raw := "MSH|^~\\&|SE050|050|PACS|050|20120912011230||ADT^A01|102|T|2.6\r" +
		"PID|1||123456^^^MRN||||"
	result, err := c.Convert(context.Background(), raw)
	require.NoError(t, err)
	for _, e := range result.Bundle.Entries {
		for _, k := range e.Fields.Keys() {
			v, _ := e.Fields.Get(k)
			if s, ok := v.(string); ok {
				require.NotEmpty(t, s, "field %s.%s should have been omitted, not empty", e.ResourceType, k)
			}
		}
	}
}

func TestParseErrorPropagatesAsFatal(t *testing.T) {
	c := newTestCoordinator()
	_, err := c.Convert(context.Background(), "not an hl7 message")
	require.Error(t, err)
	require.IsType(t, &hl7.ParseError{}, err)
}
