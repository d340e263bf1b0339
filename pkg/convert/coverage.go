package convert

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"
)

// CoverageTracker is the passive observer from §4.5: it never changes
// evaluator outcomes, it only records which input positions were
// successfully read (instrumented on every non-empty Message View
// extraction) for later comparison against a full walk of the input tree.
type CoverageTracker struct {
	read map[string]map[string]bool
}

// NewCoverageTracker returns an empty tracker for one conversion.
func NewCoverageTracker() *CoverageTracker {
	return &CoverageTracker{read: make(map[string]map[string]bool)}
}

// RecordReads folds a Message View resolution's ReadPaths into the
// tracker. Called once per successful (non-empty) spec evaluation.
func (c *CoverageTracker) RecordReads(reads []hl7.ReadPath) {
	for _, r := range reads {
		set, ok := c.read[r.Segment]
		if !ok {
			set = make(map[string]bool)
			c.read[r.Segment] = set
		}
		set[formatFieldPath(r.Field, r.Rep)] = true
	}
}

func formatFieldPath(field, rep int) string {
	if rep <= 1 {
		return strconv.Itoa(field)
	}
	return strconv.Itoa(field) + "." + strconv.Itoa(rep)
}

// SegmentCoverage is one segment's present-but-possibly-unread field set.
type SegmentCoverage struct {
	Available []string `json:"available"`
	Read      []string `json:"read"`
}

// Report is the per-conversion coverage report from §6: always produced,
// even when a conversion fails partway through, so a caller can audit
// what could be read before the failure.
type Report struct {
	MessageID  string                     `json:"messageId"`
	PerSegment map[string]SegmentCoverage `json:"perSegment"`
	Warnings   []FieldWarning             `json:"warnings,omitempty"`
}

// Build walks the full input message tree to compute, for every segment
// name present, the set of available FIELD[.REP] paths holding a non-empty
// value, and pairs it against what the tracker recorded as actually read.
func (c *CoverageTracker) Build(msg *hl7.Message, messageID string, warnings []FieldWarning) *Report {
	available := map[string]map[string]bool{}
	for _, seg := range msg.Segments {
		set, ok := available[seg.Name]
		if !ok {
			set = make(map[string]bool)
			available[seg.Name] = set
		}
		for i, field := range seg.Fields {
			fieldNum := i + 1
			occs := field.Occurrences()
			for repIdx, occ := range occs {
				if !occ.IsEmpty() {
					set[formatFieldPath(fieldNum, repIdx+1)] = true
				}
			}
		}
	}

	names := map[string]bool{}
	for n := range available {
		names[n] = true
	}
	for n := range c.read {
		names[n] = true
	}

	perSegment := make(map[string]SegmentCoverage, len(names))
	for n := range names {
		perSegment[n] = SegmentCoverage{
			Available: sortedFieldPaths(available[n]),
			Read:      sortedFieldPaths(c.read[n]),
		}
	}

	return &Report{MessageID: messageID, PerSegment: perSegment, Warnings: warnings}
}

func sortedFieldPaths(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		return fieldPathLess(out[i], out[j])
	})
	return out
}

func fieldPathLess(a, b string) bool {
	af, ar := splitFieldPath(a)
	bf, br := splitFieldPath(b)
	if af != bf {
		return af < bf
	}
	return ar < br
}

func splitFieldPath(s string) (field, rep int) {
	parts := strings.SplitN(s, ".", 2)
	field, _ = strconv.Atoi(parts[0])
	rep = 1
	if len(parts) == 2 {
		rep, _ = strconv.Atoi(parts[1])
	}
	return
}
