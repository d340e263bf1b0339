package convert

import (
	"strconv"
	"strings"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
)

// CoercionError signals a value that could not be reshaped into its Field
// Expression's declared output type (§7's "type coercion failure" kind).
type CoercionError struct {
	Value string
	Type  template.FieldType
}

func (e *CoercionError) Error() string {
	return "convert: cannot coerce " + strconv.Quote(e.Value) + " to " + string(e.Type)
}

// CoerceHL7Spec applies §4.3.1's output-type coercion to the string a
// Message View extraction returned: date reformatting for DATE, integer
// parsing for INTEGER, Y/YES/TRUE/1 versus N/NO/FALSE/0 flag parsing for
// BOOLEAN, and a no-op for STRING/OBJECT/ARRAY (those
// get their shape from the expression type, not from this step).
func CoerceHL7Spec(raw string, t template.FieldType) (interface{}, error) {
	switch t {
	case template.TypeDate:
		return formatHL7Date(raw)
	case template.TypeInteger:
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, &CoercionError{Value: raw, Type: t}
		}
		return n, nil
	case template.TypeBoolean:
		switch strings.ToUpper(strings.TrimSpace(raw)) {
		case "Y", "YES", "TRUE", "1":
			return true, nil
		case "N", "NO", "FALSE", "0":
			return false, nil
		default:
			return nil, &CoercionError{Value: raw, Type: t}
		}
	default:
		return raw, nil
	}
}

// formatHL7Date reformats an HL7 DTM value, yyyyMMdd[HHmmss[.S[...]]]
// (with an optional trailing timezone offset), into an ISO 8601 calendar
// date (no time component present) or date-time (time component present).
func formatHL7Date(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	body := raw
	tz := ""
	if idx := strings.IndexAny(raw, "+-"); idx >= 8 {
		body, tz = raw[:idx], raw[idx:]
	}
	body = strings.SplitN(body, ".", 2)[0]

	switch {
	case len(body) >= 8 && allDigits(body[:8]) && len(body) == 8:
		return body[0:4] + "-" + body[4:6] + "-" + body[6:8], nil
	case len(body) >= 14 && allDigits(body[:14]):
		return body[0:4] + "-" + body[4:6] + "-" + body[6:8] + "T" + body[8:10] + ":" + body[10:12] + ":" + body[12:14] + tzOrZ(tz), nil
	case len(body) >= 12 && allDigits(body[:12]):
		return body[0:4] + "-" + body[4:6] + "-" + body[6:8] + "T" + body[8:10] + ":" + body[10:12] + ":00" + tzOrZ(tz), nil
	default:
		return "", &CoercionError{Value: raw, Type: template.TypeDate}
	}
}

func tzOrZ(tz string) string {
	if tz == "" {
		return "Z"
	}
	return tz[:3] + ":" + tz[3:]
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
