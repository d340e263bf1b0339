package convert

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
)

// Evaluator implements §4.3: it dispatches on Expression.Type and
// evaluates each of the four flavours uniformly over a Scope, the way the
// teacher's ActionSource.Compile dispatches on an interpreter name rather
// than growing a type hierarchy of Action implementations.
type Evaluator struct {
	msg      *hl7.Message
	loader   *template.Loader
	refs     *ReferenceCache
	coverage *CoverageTracker
	jexl     *jexlInterpreter
	maxDepth int
	logger   zerolog.Logger
}

// NewEvaluator builds the evaluator for one conversion. refs and coverage
// are the per-conversion, mutable collaborators from §4.5; loader is the
// read-only, potentially-shared Template Loader.
func NewEvaluator(msg *hl7.Message, loader *template.Loader, refs *ReferenceCache, coverage *CoverageTracker, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		msg:      msg,
		loader:   loader,
		refs:     refs,
		coverage: coverage,
		jexl:     newJEXLInterpreter(),
		maxDepth: loader.MaxDepth,
		logger:   logger,
	}
}

// evalOutcome is the field-isolated result shape from §9's redesign of
// exception-driven control flow into result values: exactly one of value
// set, warning set, or both nil (silent empty omission) holds, unless err
// is non-nil (an unresolved reference, which propagates to the
// coordinator boundary).
type evalOutcome struct {
	value    interface{}
	warning  *FieldWarning
	warnings []FieldWarning
}

// EvaluateField evaluates one Field Expression against scope. resourceType
// and fieldName are carried only for warning attribution. depth is the
// per-conversion Resource-invocation nesting counter guarding against
// cyclic template references (§9).
func (e *Evaluator) EvaluateField(ctx context.Context, expr *template.Expression, scope *Scope, resourceType, fieldName string, depth int) (evalOutcome, error) {
	if depth > e.maxDepth {
		return evalOutcome{warning: &FieldWarning{
			ResourceType: resourceType, FieldName: fieldName,
			Kind: WarnScriptEvaluation, Detail: "template recursion exceeded max depth",
		}}, nil
	}

	switch expr.Type {
	case template.ExprHL7Spec:
		return e.evalHL7Spec(expr, scope, resourceType, fieldName)
	case template.ExprJEXL:
		return e.evalJEXL(ctx, expr, scope, resourceType, fieldName, depth)
	case template.ExprResource:
		return e.evalResource(ctx, expr, scope, resourceType, fieldName, depth)
	case template.ExprRef:
		return e.evalReference(expr, resourceType, fieldName)
	default:
		return evalOutcome{warning: &FieldWarning{
			ResourceType: resourceType, FieldName: fieldName,
			Kind: WarnScriptEvaluation, Detail: "unknown expression type",
		}}, nil
	}
}

func (e *Evaluator) evalHL7Spec(expr *template.Expression, scope *Scope, resourceType, fieldName string) (evalOutcome, error) {
	val, reads, err := hl7.Resolve(e.msg, expr.ValueOf, scope, expr.GenerateList)
	if err != nil {
		return evalOutcome{warning: &FieldWarning{
			ResourceType: resourceType, FieldName: fieldName,
			Kind: WarnScriptEvaluation, Detail: err.Error(),
		}}, nil
	}
	if val.IsEmpty() {
		return evalOutcome{}, nil
	}
	e.coverage.RecordReads(reads)

	switch val.Kind {
	case hl7.ValueString:
		coerced, cerr := CoerceHL7Spec(val.Str, expr.OutputType)
		if cerr != nil {
			return evalOutcome{warning: &FieldWarning{
				ResourceType: resourceType, FieldName: fieldName,
				Kind: WarnTypeCoercion, Detail: cerr.Error(),
			}}, nil
		}
		if expr.GenerateList {
			return evalOutcome{value: []interface{}{coerced}}, nil
		}
		return evalOutcome{value: coerced}, nil
	case hl7.ValueList:
		out := make([]interface{}, 0, len(val.List))
		for _, s := range val.List {
			coerced, cerr := CoerceHL7Spec(s, expr.OutputType)
			if cerr != nil {
				return evalOutcome{warning: &FieldWarning{
					ResourceType: resourceType, FieldName: fieldName,
					Kind: WarnTypeCoercion, Detail: cerr.Error(),
				}}, nil
			}
			out = append(out, coerced)
		}
		return evalOutcome{value: out}, nil
	case hl7.ValueTree:
		coerced, cerr := CoerceHL7Spec(val.Tree.FirstPrimitive(), expr.OutputType)
		if cerr != nil {
			return evalOutcome{warning: &FieldWarning{
				ResourceType: resourceType, FieldName: fieldName,
				Kind: WarnTypeCoercion, Detail: cerr.Error(),
			}}, nil
		}
		return evalOutcome{value: coerced}, nil
	default:
		return evalOutcome{}, nil
	}
}

func (e *Evaluator) evalJEXL(ctx context.Context, expr *template.Expression, scope *Scope, resourceType, fieldName string, depth int) (evalOutcome, error) {
	varsScope, warnings, err := e.bindVars(ctx, expr.Vars, scope, resourceType, fieldName, depth)
	if err != nil {
		return evalOutcome{}, err
	}

	result, jerr := e.jexl.eval(ctx, expr.ValueOf, varsScope)
	if jerr != nil {
		return evalOutcome{warning: &FieldWarning{
			ResourceType: resourceType, FieldName: fieldName,
			Kind: WarnScriptEvaluation, Detail: jerr.Error(),
		}}, nil
	}
	if result == nil || isEmptyScalar(result) {
		return evalOutcome{warnings: warnings}, nil
	}
	if expr.GenerateList {
		if list, ok := result.([]interface{}); ok {
			return evalOutcome{value: list, warnings: warnings}, nil
		}
		return evalOutcome{value: []interface{}{result}, warnings: warnings}, nil
	}
	return evalOutcome{value: result, warnings: warnings}, nil
}

func isEmptyScalar(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// bindVars evaluates every vars entry in the enclosing scope (not the
// pushed child frame a Resource expression is about to create) and
// returns a scope carrying just those bindings, for JEXL's environment or
// for a Resource invocation's child frame.
func (e *Evaluator) bindVars(ctx context.Context, vars []template.VarBinding, enclosing *Scope, resourceType, fieldName string, depth int) (*Scope, []FieldWarning, error) {
	bound := map[string]interface{}{}
	var warnings []FieldWarning
	for _, v := range vars {
		outcome, err := e.EvaluateField(ctx, v.Expr, enclosing, resourceType, fieldName+"."+v.Name, depth)
		if err != nil {
			return nil, warnings, err
		}
		if outcome.warning != nil {
			warnings = append(warnings, *outcome.warning)
		}
		warnings = append(warnings, outcome.warnings...)
		bound[v.Name] = outcome.value
	}
	s := enclosing.Push(enclosing.BoundField(), bound)
	return s, warnings, nil
}

func (e *Evaluator) evalResource(ctx context.Context, expr *template.Expression, scope *Scope, resourceType, fieldName string, depth int) (evalOutcome, error) {
	val, reads, err := hl7.Resolve(e.msg, expr.Specs, scope, expr.GenerateList)
	if err != nil {
		return evalOutcome{warning: &FieldWarning{
			ResourceType: resourceType, FieldName: fieldName,
			Kind: WarnScriptEvaluation, Detail: err.Error(),
		}}, nil
	}
	if val.IsEmpty() {
		return evalOutcome{}, nil
	}
	e.coverage.RecordReads(reads)

	rt, rerr := e.loader.ResourceTemplate(expr.ValueOf)
	if rerr != nil {
		return evalOutcome{warning: &FieldWarning{
			ResourceType: resourceType, FieldName: fieldName,
			Kind: WarnScriptEvaluation, Detail: rerr.Error(),
		}}, nil
	}

	invoke := func(field *hl7.Node) (*FieldMap, []FieldWarning, error) {
		bound := map[string]interface{}{}
		var warnings []FieldWarning
		for _, v := range expr.Vars {
			outcome, verr := e.EvaluateField(ctx, v.Expr, scope, resourceType, fieldName+"."+v.Name, depth)
			if verr != nil {
				return nil, warnings, verr
			}
			if outcome.warning != nil {
				warnings = append(warnings, *outcome.warning)
			}
			warnings = append(warnings, outcome.warnings...)
			bound[v.Name] = outcome.value
		}
		child := scope.Push(field, bound)
		fields, fieldWarnings, cerr := e.EvaluateResourceFields(ctx, rt, child, depth+1)
		return fields, append(warnings, fieldWarnings...), cerr
	}

	switch val.Kind {
	case hl7.ValueTree, hl7.ValueString:
		var field *hl7.Node
		if val.Kind == hl7.ValueTree {
			field = val.Tree
		}
		fields, warnings, ierr := invoke(field)
		if ierr != nil {
			return evalOutcome{}, ierr
		}
		out := interface{}(fields)
		if expr.GenerateList {
			out = []interface{}{fields}
		}
		return evalOutcome{value: out, warnings: warnings}, nil
	case hl7.ValueTreeList:
		if !expr.GenerateList {
			fields, warnings, ierr := invoke(val.TreeList[0])
			if ierr != nil {
				return evalOutcome{}, ierr
			}
			return evalOutcome{value: fields, warnings: warnings}, nil
		}
		var out []interface{}
		var allWarnings []FieldWarning
		for _, t := range val.TreeList {
			fields, warnings, ierr := invoke(t)
			if ierr != nil {
				return evalOutcome{}, ierr
			}
			out = append(out, fields)
			allWarnings = append(allWarnings, warnings...)
		}
		return evalOutcome{value: out, warnings: allWarnings}, nil
	default:
		return evalOutcome{}, nil
	}
}

func (e *Evaluator) evalReference(expr *template.Expression, resourceType, fieldName string) (evalOutcome, error) {
	target := strings.TrimPrefix(expr.ValueOf, "$ref:")
	id, ok := e.refs.Lookup(target)
	if !ok {
		return evalOutcome{}, &UnresolvedReferenceError{ResourceType: target}
	}
	return evalOutcome{value: map[string]interface{}{"reference": target + "/" + id}}, nil
}

// EvaluateResourceFields evaluates every field of a compiled Resource or
// Datatype Template, in declaration order, against scope — the
// determinism rule from §4.3's closing paragraph. Field-level errors never
// abort this loop; they are recorded as warnings and the field is omitted.
func (e *Evaluator) EvaluateResourceFields(ctx context.Context, rt *template.ResourceTemplate, scope *Scope, depth int) (*FieldMap, []FieldWarning, error) {
	out := NewFieldMap()
	var warnings []FieldWarning
	for _, f := range rt.Fields {
		outcome, err := e.EvaluateField(ctx, f.Expr, scope, rt.ResourceType, f.Name, depth)
		if err != nil {
			return nil, warnings, err
		}
		// Warnings from nested Resource invocations bubble up through
		// outcome.warnings, so only the top-level (depth 0) call logs them,
		// once each.
		if outcome.warning != nil {
			warnings = append(warnings, *outcome.warning)
			if depth == 0 {
				e.logWarning(*outcome.warning)
			}
			continue
		}
		for _, w := range outcome.warnings {
			warnings = append(warnings, w)
			if depth == 0 {
				e.logWarning(w)
			}
		}
		if outcome.value == nil {
			continue
		}
		if s, ok := outcome.value.(string); ok && s == "" {
			continue
		}
		out.Set(f.Name, outcome.value)
	}
	return out, warnings, nil
}

// logWarning emits a field-level warning at warn level, per the ambient
// logging rule: a warning is always recorded in the coverage report, and
// additionally logged whenever a non-nop logger is supplied.
func (e *Evaluator) logWarning(w FieldWarning) {
	e.logger.Warn().
		Str("resourceType", w.ResourceType).
		Str("field", w.FieldName).
		Str("kind", string(w.Kind)).
		Str("detail", w.Detail).
		Msg("field warning")
}
