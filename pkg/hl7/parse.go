package hl7

import (
	"fmt"
	"strings"
)

// EncodingChars holds the delimiter set declared in MSH-1/MSH-2. Defaults
// match the conventional `|^~\&` encoding used throughout HL7 v2.x.
type EncodingChars struct {
	Field        byte
	Component    byte
	Repetition   byte
	Escape       byte
	Subcomponent byte
}

// DefaultEncodingChars is the encoding used when MSH-2 is absent or short.
var DefaultEncodingChars = EncodingChars{
	Field:        '|',
	Component:    '^',
	Repetition:   '~',
	Escape:       '\\',
	Subcomponent: '&',
}

// ParseError reports a failure to lex a raw HL7 payload into a Message.
// It is fatal at the coordinator boundary: no message tree, no conversion.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("hl7: parse error: %s", e.Reason)
}

// NormalizeLineEndings converts every CRLF and bare LF segment terminator to
// the canonical HL7 segment terminator, \r. This must run before splitting
// into segments so that messages produced on any platform parse identically
// (see the line-ending-robustness testable property).
func NormalizeLineEndings(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\r")
	raw = strings.ReplaceAll(raw, "\n", "\r")
	return raw
}

// Parse lexes a raw ER7-encoded HL7 v2.x message into a Message tree. This
// is the bundled reference front-end: it stands in for the external lexer
// the transformation core treats as an interface, so the rest of this
// module is exercisable end to end. Any front-end producing a *Message with
// the same shape is equally valid input to the Template Loader / Resource
// Builder / Coordinator.
func Parse(raw string) (*Message, error) {
	normalized := NormalizeLineEndings(raw)
	lines := strings.Split(normalized, "\r")

	var segments []*Segment
	enc := DefaultEncodingChars
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 3 {
			return nil, &ParseError{Reason: fmt.Sprintf("segment line too short: %q", line)}
		}
		name := line[:3]
		if name == "MSH" {
			seg, e, err := parseMSH(line)
			if err != nil {
				return nil, err
			}
			enc = e
			segments = append(segments, seg)
			continue
		}
		segments = append(segments, parseSegment(name, line[4:], enc))
	}
	if len(segments) == 0 {
		return nil, &ParseError{Reason: "no segments found"}
	}
	if segments[0].Name != "MSH" {
		return nil, &ParseError{Reason: "message does not begin with MSH"}
	}
	return NewMessage(segments), nil
}

// parseMSH is special-cased because MSH-1 (the field separator itself) and
// MSH-2 (the remaining encoding characters) precede the first real field
// separator in the raw text.
func parseMSH(line string) (*Segment, EncodingChars, error) {
	if len(line) < 8 {
		return nil, EncodingChars{}, &ParseError{Reason: "MSH segment too short"}
	}
	enc := DefaultEncodingChars
	enc.Field = line[3]
	rest := line[4:]

	encCharsEnd := strings.IndexByte(rest, enc.Field)
	if encCharsEnd < 0 {
		return nil, EncodingChars{}, &ParseError{Reason: "MSH missing field separator after encoding characters"}
	}
	encChars := rest[:encCharsEnd]
	if len(encChars) >= 1 {
		enc.Component = encChars[0]
	}
	if len(encChars) >= 2 {
		enc.Repetition = encChars[1]
	}
	if len(encChars) >= 3 {
		enc.Escape = encChars[2]
	}
	if len(encChars) >= 4 {
		enc.Subcomponent = encChars[3]
	}

	fieldOne := leafPrimitive(string(enc.Field))
	fieldTwo := leafPrimitive(encChars)
	remaining := rest[encCharsEnd+1:]

	seg := &Segment{Name: "MSH", Fields: []*Node{fieldOne, fieldTwo}}
	if remaining != "" {
		seg.Fields = append(seg.Fields, splitFields(remaining, enc)...)
	}
	return seg, enc, nil
}

func parseSegment(name, body string, enc EncodingChars) *Segment {
	return &Segment{Name: name, Fields: splitFields(body, enc)}
}

func splitFields(body string, enc EncodingChars) []*Node {
	parts := splitUnescaped(body, enc.Field)
	fields := make([]*Node, len(parts))
	for i, p := range parts {
		fields[i] = parseField(p, enc)
	}
	return fields
}

// parseField builds the Repetition > Composite > Primitive tree for one
// field's raw text, per the uniform tagged-variant design: a level is only
// wrapped in a composite/repetition node when it actually splits into more
// than one piece.
func parseField(raw string, enc EncodingChars) *Node {
	reps := splitUnescaped(raw, enc.Repetition)
	if len(reps) == 1 {
		return parseComposite(reps[0], enc)
	}
	children := make([]*Node, len(reps))
	for i, r := range reps {
		children[i] = parseComposite(r, enc)
	}
	return &Node{Kind: KindRepetition, Children: children}
}

func parseComposite(raw string, enc EncodingChars) *Node {
	comps := splitUnescaped(raw, enc.Component)
	if len(comps) == 1 {
		return parseSubcomposite(comps[0], enc)
	}
	children := make([]*Node, len(comps))
	for i, c := range comps {
		children[i] = parseSubcomposite(c, enc)
	}
	return &Node{Kind: KindComposite, Children: children}
}

func parseSubcomposite(raw string, enc EncodingChars) *Node {
	subs := splitUnescaped(raw, enc.Subcomponent)
	if len(subs) == 1 {
		return leafPrimitive(unescape(subs[0], enc))
	}
	children := make([]*Node, len(subs))
	for i, s := range subs {
		children[i] = leafPrimitive(unescape(s, enc))
	}
	return &Node{Kind: KindComposite, Children: children}
}

func leafPrimitive(s string) *Node {
	return &Node{Kind: KindPrimitive, Primitive: s}
}

// splitUnescaped splits on every occurrence of sep. An escaped delimiter
// (e.g. \F\ for an escaped field separator) contains no literal sep, so it
// survives the split intact and is resolved later by unescape.
func splitUnescaped(s string, sep byte) []string {
	var out []string
	var cur strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			out = append(out, cur.String())
			cur.Reset()
			continue
		}
		cur.WriteByte(s[i])
	}
	out = append(out, cur.String())
	return out
}

// unescape resolves the handful of standard HL7 escape sequences. Anything
// unrecognized is passed through verbatim rather than rejected, since the
// core's concern is field extraction, not encoding validation.
func unescape(s string, enc EncodingChars) string {
	if !strings.ContainsRune(s, rune(enc.Escape)) {
		return s
	}
	esc := string(enc.Escape)
	replacer := strings.NewReplacer(
		esc+"F"+esc, string(enc.Field),
		esc+"S"+esc, string(enc.Component),
		esc+"T"+esc, string(enc.Subcomponent),
		esc+"R"+esc, string(enc.Repetition),
		esc+"E"+esc, esc,
	)
	return replacer.Replace(s)
}
