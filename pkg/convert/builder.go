package convert

import (
	"context"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
)

// ResourceBuilder implements §4.4: for each Resource Entry, in template
// declaration order, it enumerates the driving segment's occurrences,
// evaluates the referenced Resource Template per occurrence, and appends
// the assembled entry to the bundle — publishing an isReferenced entry's
// id into the reference cache immediately, so later entries in the same
// Message Template can resolve a Reference expression against it.
type ResourceBuilder struct {
	msg   *hl7.Message
	eval  *Evaluator
	refs  *ReferenceCache
}

// NewResourceBuilder constructs a builder sharing one conversion's message,
// evaluator, and reference cache.
func NewResourceBuilder(msg *hl7.Message, eval *Evaluator, refs *ReferenceCache) *ResourceBuilder {
	return &ResourceBuilder{msg: msg, eval: eval, refs: refs}
}

// Build runs every Resource Entry of mt against the builder's message,
// appending produced entries to bundle in declaration order. It returns
// every field-level warning accumulated along the way; it returns a
// non-nil error only for an unresolved reference (fatal per §7).
func (b *ResourceBuilder) Build(ctx context.Context, mt *template.MessageTemplate, bundle *Bundle) ([]FieldWarning, error) {
	var warnings []FieldWarning
	for _, entry := range mt.Entries {
		entryWarnings, err := b.buildEntry(ctx, entry, bundle)
		warnings = append(warnings, entryWarnings...)
		if err != nil {
			return warnings, err
		}
	}
	return warnings, nil
}

func (b *ResourceBuilder) buildEntry(ctx context.Context, entry *template.ResourceEntry, bundle *Bundle) ([]FieldWarning, error) {
	occurrences := b.msg.SegmentsNamed(entry.Segment)
	if len(occurrences) == 0 {
		return nil, nil
	}
	if !entry.Repeats {
		occurrences = occurrences[:1]
	}

	rt, err := b.eval.loader.ResourceTemplate(entry.ResourcePath)
	if err != nil {
		return []FieldWarning{{
			ResourceType: entry.ResourceName,
			FieldName:    "*",
			Kind:         WarnScriptEvaluation,
			Detail:       err.Error(),
		}}, nil
	}

	var warnings []FieldWarning
	for _, occ := range occurrences {
		if isSegmentEmpty(occ) {
			continue
		}
		scope := NewRootScope(b.msg, entry.Segment, occ, entry.AdditionalSegments)
		fields, fieldWarnings, err := b.eval.EvaluateResourceFields(ctx, rt, scope, 0)
		warnings = append(warnings, fieldWarnings...)
		if err != nil {
			return warnings, err
		}
		produced := bundle.Add(rt.ResourceType, fields)
		if entry.IsReferenced {
			b.refs.Publish(rt.ResourceType, produced.ID)
		}
	}
	return warnings, nil
}

func isSegmentEmpty(seg *hl7.Segment) bool {
	if seg == nil {
		return true
	}
	for _, f := range seg.Fields {
		if !f.IsEmpty() {
			return false
		}
	}
	return true
}
