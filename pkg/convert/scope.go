// Package convert implements the transformation core: the Expression
// Evaluator, Resource Builder, Reference Cache, Coverage Tracker and
// Coordinator that turn one parsed HL7 message into a FHIR-shaped bundle
// plus a coverage report, driven by a pkg/template AST.
package convert

import "github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"

// Scope is a stack frame of bound variables: the outermost frame exposes
// the primary driving segment plus additionalSegments by name; each
// Resource expression pushes a child frame binding $field to a sub-tree
// plus any vars it declares. Scope implements hl7.ScopeView so the Message
// View can resolve specs against it directly.
type Scope struct {
	parent   *Scope
	segments map[string]*hl7.Segment
	field    *hl7.Node
	vars     map[string]interface{}
}

// NewRootScope builds the outermost frame for one Resource Entry
// occurrence: the primary driving segment under its own name, plus every
// additionalSegments entry resolved against the message root.
func NewRootScope(msg *hl7.Message, primaryName string, primary *hl7.Segment, additional []string) *Scope {
	s := &Scope{segments: map[string]*hl7.Segment{primaryName: primary}}
	for _, name := range additional {
		if seg := msg.FirstSegmentNamed(name); seg != nil {
			s.segments[name] = seg
		}
	}
	return s
}

// Push creates a child frame for a Resource expression invocation: $field
// rebinds to the sub-tree selected by that expression's specs, and vars
// holds the bindings evaluated in the enclosing scope before the push.
func (s *Scope) Push(field *hl7.Node, vars map[string]interface{}) *Scope {
	return &Scope{parent: s, field: field, vars: vars}
}

// LookupSegment implements hl7.ScopeView. Segment bindings are only ever
// introduced at a root frame, so lookups chase the parent chain.
func (s *Scope) LookupSegment(name string) *hl7.Segment {
	for f := s; f != nil; f = f.parent {
		if seg, ok := f.segments[name]; ok {
			return seg
		}
	}
	return nil
}

// BoundField implements hl7.ScopeView: the current frame's $field binding,
// or nil if this frame was not pushed by a Resource expression.
func (s *Scope) BoundField() *hl7.Node {
	if s == nil {
		return nil
	}
	return s.field
}

// Var looks up a name bound by the current frame's vars map. Unlike
// segments, vars do not chase the parent chain: they are local to the
// frame a Resource expression declared them in.
func (s *Scope) Var(name string) (interface{}, bool) {
	if s == nil || s.vars == nil {
		return nil, false
	}
	v, ok := s.vars[name]
	return v, ok
}

// exportVars exposes the current frame's vars map for binding into a JEXL
// environment. vars are intentionally not chased up the parent chain here
// either, matching Var's locality rule.
func (s *Scope) exportVars() map[string]interface{} {
	if s == nil {
		return nil
	}
	return s.vars
}

// exportSegments exposes every segment name visible from this frame
// (chasing the parent chain, nearest binding wins) for binding into a JEXL
// environment.
func (s *Scope) exportSegments() map[string]*hl7.Segment {
	out := map[string]*hl7.Segment{}
	for f := s; f != nil; f = f.parent {
		for name, seg := range f.segments {
			if _, exists := out[name]; !exists {
				out[name] = seg
			}
		}
	}
	return out
}
