package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsMissingRequiredKeys(t *testing.T) {
	_, err := decodeMessageTemplate("message/Bad.yml", []byte("resources:\n  - segment: PID\n"))
	require.Error(t, err)
	require.IsType(t, &LoadError{}, err)
}

func TestDecodeRejectsResourceExpressionWithoutSpecs(t *testing.T) {
	raw := []byte(`
resourceType: Thing
fields:
  child:
    type: OBJECT
    expressionType: Resource
    valueOf: datatype/Other
`)
	_, err := decodeResourceTemplate("resource/Thing.yml", raw)
	require.Error(t, err)
}

func TestValidateRejectsUnconditionalSelfReferenceCycle(t *testing.T) {
	rt := &ResourceTemplate{
		Path: "resource/Self",
		Fields: []FieldSpec{
			{Name: "loop", Expr: &Expression{
				Type:    ExprResource,
				ValueOf: "resource/Self",
				Specs:   "$field",
			}},
		},
	}
	err := validateResourceTemplate(rt)
	require.Error(t, err)
	require.IsType(t, &CycleError{}, err)
}

func TestValidateOrderingRejectsForwardReference(t *testing.T) {
	mt := &MessageTemplate{
		Name: "message/Bad.yml",
		Entries: []*ResourceEntry{
			{ResourceName: "Encounter", Segment: "PV1", ResourcePath: "resource/Encounter", IsReferenced: false},
			{ResourceName: "Patient", Segment: "PID", ResourcePath: "resource/Patient", IsReferenced: true},
		},
	}
	resolve := map[string]*ResourceTemplate{
		"resource/Encounter": {
			Path: "resource/Encounter",
			Fields: []FieldSpec{
				{Name: "subject", Expr: &Expression{Type: ExprRef, ValueOf: "$ref:Patient"}},
			},
		},
		"resource/Patient": {Path: "resource/Patient"},
	}
	err := validateOrdering(mt, func(p string) (*ResourceTemplate, error) { return resolve[p], nil }, DefaultMaxDepth)
	require.Error(t, err)
}
