// Package template compiles declarative YAML message/resource/datatype
// templates into a typed, in-memory AST, the way package core in the
// reference chatbot engine compiles a YAML spec's nodes and branches into
// an executable graph. Here the graph is a transformation pipeline rather
// than a state machine, but the load-once, validate-eagerly, cache-by-path
// shape is the same.
package template

// ExpressionType is the tag of the Expression sum type. It replaces an
// inheritance hierarchy of expression classes with one exhaustively
// switchable enum, per the corresponding redesign note.
type ExpressionType string

const (
	ExprHL7Spec  ExpressionType = "HL7Spec"
	ExprJEXL     ExpressionType = "JEXL"
	ExprResource ExpressionType = "Resource"
	ExprRef      ExpressionType = "Reference"
)

// FieldType is the declared output type of a Field Expression, used to
// drive the evaluator's coercion rules.
type FieldType string

const (
	TypeString  FieldType = "STRING"
	TypeInteger FieldType = "INTEGER"
	TypeDate    FieldType = "DATE"
	TypeBoolean FieldType = "BOOLEAN"
	TypeObject  FieldType = "OBJECT"
	TypeArray   FieldType = "ARRAY"
)

// VarBinding is one entry of a Field Expression's `vars` map: a name bound,
// in the enclosing scope, to the result of a sub-expression, before a new
// scope frame is pushed for a Resource invocation.
type VarBinding struct {
	Name string
	Type FieldType
	Expr *Expression
}

// Expression is the Field Expression sum type:
// Expression = HL7Spec(...) | Jexl(...) | Resource(...) | Reference(...).
type Expression struct {
	Type         ExpressionType
	OutputType   FieldType
	GenerateList bool

	// ValueOf carries the expression-type-specific payload: an HL7 Spec
	// string, a JEXL script source, a Resource/Datatype template path, or a
	// `$ref:<ResourceType>` reference target.
	ValueOf string

	// Specs selects the sub-tree handed to a Resource expression's
	// sub-template. The other expression types do not read it.
	Specs string

	Vars []VarBinding
}

// ResourceEntry is one element of a Message Template's ordered resource
// list: how to produce one (or many) output resources from one driving
// segment.
type ResourceEntry struct {
	ResourceName       string
	Segment            string
	ResourcePath       string
	Repeats            bool
	IsReferenced       bool
	AdditionalSegments []string

	// resolved is not populated: the Loader resolves ResourcePath lazily
	// and caches the result by path in its own cache (Loader.ResourceTemplate).
	resolved *ResourceTemplate
}

// MessageTemplate is the top-level template for one `messageCode_triggerEvent`
// key: an ordered list of Resource Entries, evaluated in declaration order.
type MessageTemplate struct {
	Name    string
	Entries []*ResourceEntry
}

// FieldSpec is one ordered entry of a Resource/Datatype Template's field
// map: an output field name paired with the expression that produces it.
// A plain slice-of-pairs (rather than a Go map) is the AST's own guarantee
// of declaration-order preservation, independent of how the YAML decoder
// behaves.
type FieldSpec struct {
	Name string
	Expr *Expression
}

// ResourceTemplate is the compiled shape of a Resource or Datatype
// Template: a resource type name plus an ordered field map. Datatype
// Templates use the identical shape; they are distinguished only by how
// they are invoked (via `$field` specs, from a Resource expression).
type ResourceTemplate struct {
	ResourceType string
	Path         string
	Fields       []FieldSpec
}
