package hl7

import (
	"strconv"
	"strings"
)

// ValueKind tags what a spec resolved to.
type ValueKind int

const (
	// ValueEmpty means the spec designates a position that holds nothing:
	// missing segment, missing field, missing repetition, or an entirely
	// empty primitive. Empty values never update the coverage tracker.
	ValueEmpty ValueKind = iota
	// ValueString is a single extracted primitive.
	ValueString
	// ValueList is a list of primitives extracted across repetitions.
	ValueList
	// ValueTree is a sub-tree handle, produced when a spec resolves short
	// of a primitive (a composite with no component index given) — this is
	// what a Resource expression's specs hands to the sub-template scope.
	ValueTree
	// ValueTreeList is a list of sub-tree handles, produced when a spec
	// with generateList traverses a repeating field without a component
	// index: one sub-tree per non-empty occurrence, each destined for one
	// invocation of a Resource expression's sub-template.
	ValueTreeList
)

// Value is the uniform result of resolving a Spec against a Message.
type Value struct {
	Kind     ValueKind
	Str      string
	List     []string
	Tree     *Node
	TreeList []*Node
}

// IsEmpty reports whether this resolution produced nothing.
func (v Value) IsEmpty() bool {
	switch v.Kind {
	case ValueEmpty:
		return true
	case ValueString:
		return strings.TrimSpace(v.Str) == ""
	case ValueList:
		return len(v.List) == 0
	case ValueTree:
		return v.Tree.IsEmpty()
	case ValueTreeList:
		return len(v.TreeList) == 0
	default:
		return true
	}
}

// ReadPath names one input position a spec successfully extracted a
// non-empty value from. The coverage tracker accumulates these separately
// from the "available" walk over the raw message tree.
type ReadPath struct {
	Segment string
	Field   int
	Rep     int
}

// ScopeView is the minimal surface the Message View needs from a variable
// scope: segment-name lookup (outermost frame: additionalSegments, then the
// message root) and the current $field binding (inner frames, pushed by a
// Resource expression). pkg/convert's Scope implements this.
type ScopeView interface {
	LookupSegment(name string) *Segment
	BoundField() *Node
}

// SpecPath is a tokenised Spec: either a segment-rooted path
// SEGMENT[.FIELD[(REP)][.COMPONENT[.SUBCOMPONENT]]], or a $field-rooted path
// that re-roots at the caller's bound sub-tree and descends by index.
type SpecPath struct {
	FieldRef bool
	Indices  []int

	Segment         string
	HasField        bool
	Field           int
	HasRep          bool
	Rep             int
	HasComponent    bool
	Component       int
	HasSubcomponent bool
	Subcomponent    int
}

// ParseSpecPath tokenises one side of a (possibly alternated) Spec string.
func ParseSpecPath(s string) (SpecPath, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SpecPath{}, &ParseError{Reason: "empty spec"}
	}
	parts := strings.Split(s, ".")
	var sp SpecPath
	if strings.HasPrefix(parts[0], "$") {
		sp.FieldRef = true
		for _, p := range parts[1:] {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return SpecPath{}, &ParseError{Reason: "bad $field index in spec " + s}
			}
			sp.Indices = append(sp.Indices, n)
		}
		return sp, nil
	}

	sp.Segment = parts[0]
	if len(parts) >= 2 {
		fieldTok := parts[1]
		if open := strings.IndexByte(fieldTok, '('); open >= 0 {
			closeParen := strings.IndexByte(fieldTok, ')')
			if closeParen < open {
				return SpecPath{}, &ParseError{Reason: "unbalanced repetition index in spec " + s}
			}
			rep, err := strconv.Atoi(fieldTok[open+1 : closeParen])
			if err != nil {
				return SpecPath{}, &ParseError{Reason: "bad repetition index in spec " + s}
			}
			sp.HasRep = true
			sp.Rep = rep
			fieldTok = fieldTok[:open]
		}
		if fieldTok != "" {
			n, err := strconv.Atoi(fieldTok)
			if err != nil {
				return SpecPath{}, &ParseError{Reason: "bad field index in spec " + s}
			}
			sp.HasField = true
			sp.Field = n
		}
	}
	if len(parts) >= 3 {
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return SpecPath{}, &ParseError{Reason: "bad component index in spec " + s}
		}
		sp.HasComponent = true
		sp.Component = n
	}
	if len(parts) >= 4 {
		n, err := strconv.Atoi(parts[3])
		if err != nil {
			return SpecPath{}, &ParseError{Reason: "bad subcomponent index in spec " + s}
		}
		sp.HasSubcomponent = true
		sp.Subcomponent = n
	}
	return sp, nil
}

// splitAlternation splits a Spec on top-level "|", trimming each side. This
// is deliberately a plain split: HL7 specs never contain a literal "|" of
// their own once tokenised, since the underlying raw field separator has
// already been consumed by the lexer.
func splitAlternation(spec string) []string {
	parts := strings.Split(spec, "|")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Resolve evaluates a (possibly alternated) Spec string against a message
// and scope, per §4.2: left-to-right alternation, first non-empty wins; a
// missing segment/field/repetition resolves to the empty value without
// marking coverage. generateList requests every repetition rather than the
// first non-empty one when no explicit repetition index is present.
func Resolve(msg *Message, spec string, scope ScopeView, generateList bool) (Value, []ReadPath, error) {
	alternatives := splitAlternation(spec)
	if len(alternatives) == 0 {
		return Value{Kind: ValueEmpty}, nil, nil
	}
	for _, alt := range alternatives {
		sp, err := ParseSpecPath(alt)
		if err != nil {
			return Value{}, nil, err
		}
		val, reads := resolveOne(msg, sp, scope, generateList)
		if !val.IsEmpty() {
			return val, reads, nil
		}
	}
	return Value{Kind: ValueEmpty}, nil, nil
}

func resolveOne(msg *Message, sp SpecPath, scope ScopeView, generateList bool) (Value, []ReadPath) {
	if sp.FieldRef {
		return resolveFieldRef(sp, scope)
	}
	return resolveSegmentPath(msg, sp, scope, generateList)
}

func resolveFieldRef(sp SpecPath, scope ScopeView) (Value, []ReadPath) {
	node := scope.BoundField()
	if node == nil {
		return Value{Kind: ValueEmpty}, nil
	}
	for _, idx := range sp.Indices {
		node = node.Component(idx)
		if node == nil {
			return Value{Kind: ValueEmpty}, nil
		}
	}
	if node.IsEmpty() {
		return Value{Kind: ValueEmpty}, nil
	}
	if len(sp.Indices) == 0 && node.Kind != KindPrimitive {
		return Value{Kind: ValueTree, Tree: node}, nil
	}
	return Value{Kind: ValueString, Str: node.FirstPrimitive()}, nil
}

func resolveSegmentPath(msg *Message, sp SpecPath, scope ScopeView, generateList bool) (Value, []ReadPath) {
	seg := lookupSegment(msg, scope, sp.Segment)
	if seg == nil || !sp.HasField {
		return Value{Kind: ValueEmpty}, nil
	}
	field := seg.Field(sp.Field)
	if field == nil {
		return Value{Kind: ValueEmpty}, nil
	}
	occurrences := field.Occurrences()
	if len(occurrences) == 0 {
		return Value{Kind: ValueEmpty}, nil
	}

	type picked struct {
		node *Node
		rep  int
	}
	var chosen []picked
	switch {
	case sp.HasRep:
		if sp.Rep < 1 || sp.Rep > len(occurrences) {
			return Value{Kind: ValueEmpty}, nil
		}
		chosen = []picked{{occurrences[sp.Rep-1], sp.Rep}}
	case generateList:
		for i, occ := range occurrences {
			if !occ.IsEmpty() {
				chosen = append(chosen, picked{occ, i + 1})
			}
		}
	default:
		for i, occ := range occurrences {
			if !occ.IsEmpty() {
				chosen = append(chosen, picked{occ, i + 1})
				break
			}
		}
	}
	if len(chosen) == 0 {
		return Value{Kind: ValueEmpty}, nil
	}

	extract := func(node *Node) (string, *Node, bool) {
		cur := node
		if sp.HasComponent {
			cur = cur.Component(sp.Component)
			if cur == nil {
				return "", nil, false
			}
			if sp.HasSubcomponent {
				cur = cur.Component(sp.Subcomponent)
				if cur == nil {
					return "", nil, false
				}
			}
		}
		if cur.IsEmpty() {
			return "", nil, false
		}
		if !sp.HasComponent && cur.Kind != KindPrimitive {
			return "", cur, true
		}
		return cur.FirstPrimitive(), nil, true
	}

	var reads []ReadPath
	if len(chosen) == 1 && !(generateList && !sp.HasRep) {
		str, tree, ok := extract(chosen[0].node)
		if !ok {
			return Value{Kind: ValueEmpty}, nil
		}
		reads = append(reads, ReadPath{Segment: sp.Segment, Field: sp.Field, Rep: chosen[0].rep})
		if tree != nil {
			return Value{Kind: ValueTree, Tree: tree}, reads
		}
		return Value{Kind: ValueString, Str: str}, reads
	}

	var list []string
	var treeList []*Node
	isTree := false
	for _, p := range chosen {
		str, tree, ok := extract(p.node)
		if !ok {
			continue
		}
		reads = append(reads, ReadPath{Segment: sp.Segment, Field: sp.Field, Rep: p.rep})
		if tree != nil {
			isTree = true
			treeList = append(treeList, tree)
			continue
		}
		list = append(list, str)
	}
	if isTree {
		if len(treeList) == 0 {
			return Value{Kind: ValueEmpty}, nil
		}
		return Value{Kind: ValueTreeList, TreeList: treeList}, reads
	}
	if len(list) == 0 {
		return Value{Kind: ValueEmpty}, nil
	}
	return Value{Kind: ValueList, List: list}, reads
}

func lookupSegment(msg *Message, scope ScopeView, name string) *Segment {
	if scope != nil {
		if s := scope.LookupSegment(name); s != nil {
			return s
		}
	}
	return msg.FirstSegmentNamed(name)
}
