package convert

import "fmt"

// UnknownMessageTypeError is fatal per conversion: the coordinator could
// not find a Message Template for the derived messageCode_triggerEvent key,
// or that key is not enabled by supported.hl7.messages.
type UnknownMessageTypeError struct {
	MessageType string
	Version     string
}

func (e *UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("convert: unknown message type %q (version %q)", e.MessageType, e.Version)
}

// UnresolvedReferenceError is fatal per conversion: a Reference expression
// named a resource type with no matching entry in the reference cache.
type UnresolvedReferenceError struct {
	ResourceType string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("convert: unresolved reference: no %s in bundle", e.ResourceType)
}

// FieldWarningKind distinguishes the two field-isolated, warn-and-omit
// error kinds from §7: script evaluation failure and type coercion
// failure. Both omit the field and continue the conversion.
type FieldWarningKind string

const (
	WarnScriptEvaluation FieldWarningKind = "script_evaluation_error"
	WarnTypeCoercion     FieldWarningKind = "type_coercion_failure"
)

// FieldWarning is recorded into the coverage report rather than returned;
// per §7 this isolates the failure to one field so the rest of the
// resource — and the rest of the bundle — is still produced.
type FieldWarning struct {
	ResourceType string
	FieldName    string
	Kind         FieldWarningKind
	Detail       string
}

func (w FieldWarning) String() string {
	return fmt.Sprintf("%s.%s: %s: %s", w.ResourceType, w.FieldName, w.Kind, w.Detail)
}
