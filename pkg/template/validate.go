package template

import "strings"

// validateResourceTemplate implements §4.1(a)/(b)/(c): required keys on
// load, `Resource` expressions carrying `specs`, and an unconditional
// self-reference cycle (a Resource expression that re-enters its own
// template with the identical, un-narrowed sub-tree on every evaluation).
// Decoding already enforces (a)/(b); this pass adds (c).
func validateResourceTemplate(rt *ResourceTemplate) error {
	for _, f := range rt.Fields {
		if err := validateExpression(rt.Path, f.Expr); err != nil {
			return err
		}
	}
	return nil
}

func validateExpression(ownPath string, expr *Expression) error {
	if expr == nil {
		return nil
	}
	if expr.Type == ExprResource && expr.ValueOf == ownPath && expr.Specs == "$field" {
		return &CycleError{Path: ownPath}
	}
	for _, v := range expr.Vars {
		if err := validateExpression(ownPath, v.Expr); err != nil {
			return err
		}
	}
	return nil
}

// referenceTarget extracts the resource type named by a `$ref:<Type>`
// Reference expression's valueOf, or "" if expr is not a Reference.
func referenceTarget(expr *Expression) string {
	if expr == nil || expr.Type != ExprRef {
		return ""
	}
	const prefix = "$ref:"
	if !strings.HasPrefix(expr.ValueOf, prefix) {
		return ""
	}
	return strings.TrimPrefix(expr.ValueOf, prefix)
}

// collectReferenceTargets walks a resolved resource template's fields
// (including vars, and recursing into Resource-invoked sub-templates) and
// returns every resource type named by a Reference expression. depth
// guards against runaway recursion through pathological template graphs;
// it is independent of the per-conversion cycle limit in pkg/convert,
// which guards evaluation, not load-time validation.
func collectReferenceTargets(rt *ResourceTemplate, resolve func(string) (*ResourceTemplate, error), depth int) ([]string, error) {
	if depth <= 0 {
		return nil, &LoadError{Path: rt.Path, Reason: "template graph too deep while checking reference ordering"}
	}
	var targets []string
	var walk func(expr *Expression) error
	walk = func(expr *Expression) error {
		if expr == nil {
			return nil
		}
		if t := referenceTarget(expr); t != "" {
			targets = append(targets, t)
		}
		if expr.Type == ExprResource && expr.ValueOf != "" {
			sub, err := resolve(expr.ValueOf)
			if err == nil && sub != nil {
				subTargets, err := collectReferenceTargets(sub, resolve, depth-1)
				if err != nil {
					return err
				}
				targets = append(targets, subTargets...)
			}
		}
		for _, v := range expr.Vars {
			if err := walk(v.Expr); err != nil {
				return err
			}
		}
		return nil
	}
	for _, f := range rt.Fields {
		if err := walk(f.Expr); err != nil {
			return nil, err
		}
	}
	return targets, nil
}

// validateOrdering implements §4.4's declaration-order guarantee: a
// Resource Entry may only reference resource types produced by entries
// declared earlier in the same Message Template and marked isReferenced.
func validateOrdering(mt *MessageTemplate, resolve func(string) (*ResourceTemplate, error), maxDepth int) error {
	declared := map[string]bool{}
	for _, entry := range mt.Entries {
		rt, err := resolve(entry.ResourcePath)
		if err != nil {
			return err
		}
		targets, err := collectReferenceTargets(rt, resolve, maxDepth)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if !declared[t] {
				return &LoadError{
					Path:   mt.Name,
					Reason: "resource entry " + entry.ResourceName + " references " + t + " before it is declared (or not isReferenced)",
				}
			}
		}
		if entry.IsReferenced {
			declared[rt.ResourceType] = true
		}
	}
	return nil
}
