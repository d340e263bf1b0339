package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"
)

// jexlInterpreter evaluates the JEXL-flavoured expression type (§4.3.3) by
// compiling each script source once, via goja, and running it against a
// fresh environment per call. This mirrors the teacher's ecmascript
// interpreter: compile ahead of execution and watch the caller's context in
// a goroutine to interrupt a runaway script (the source is not wrapped in
// an IIFE; see compile).
type jexlInterpreter struct {
	programs map[string]*goja.Program
}

func newJEXLInterpreter() *jexlInterpreter {
	return &jexlInterpreter{programs: make(map[string]*goja.Program)}
}

// Unlike the teacher's ecmascript interpreter, JEXL script bodies are not
// wrapped in an IIFE: a JEXL expression's value is the value of its last
// top-level expression statement, exactly what goja.RunProgram returns for
// an unwrapped script, so host scripts read like plain expressions
// ("GeneralUtils.genderCode(genderCode)") rather than needing an explicit
// return or an out() callback.
func (j *jexlInterpreter) compile(src string) (*goja.Program, error) {
	if p, ok := j.programs[src]; ok {
		return p, nil
	}
	p, err := goja.Compile("", src, true)
	if err != nil {
		return nil, err
	}
	j.programs[src] = p
	return p, nil
}

// eval returns the JS evaluation outcome, converted to a plain Go value
// (string, int64 or float64, bool, []interface{}, map[string]interface{},
// or nil).
func (j *jexlInterpreter) eval(ctx context.Context, src string, scope *Scope) (interface{}, error) {
	program, err := j.compile(src)
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	if err := bindJEXLEnvironment(vm, scope); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				vm.Interrupt("context canceled")
			case <-done:
			}
		}()
	}

	v, err := runProgram(vm, program)
	if err != nil {
		return nil, err
	}
	return exportJSValue(v), nil
}

// runProgram recovers from goja panics (stack overflow, internal faults)
// the same way the teacher's interpreter does, turning them into ordinary
// errors so one bad script cannot take down a whole conversion.
func runProgram(vm *goja.Runtime, p *goja.Program) (v goja.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jexl: panic: %v", r)
		}
	}()
	return vm.RunProgram(p)
}

func bindJEXLEnvironment(vm *goja.Runtime, scope *Scope) error {
	if err := vm.Set("GeneralUtils", generalUtils()); err != nil {
		return err
	}
	if err := vm.Set("DateUtil", dateUtil()); err != nil {
		return err
	}
	if err := vm.Set("OmopConcept", omopConcept()); err != nil {
		return err
	}
	if field := scope.BoundField(); field != nil {
		if err := vm.Set("$field", nodeToJS(field)); err != nil {
			return err
		}
	}
	for name, val := range scope.exportVars() {
		if err := vm.Set(name, val); err != nil {
			return err
		}
	}
	for name, seg := range scope.exportSegments() {
		if err := vm.Set(name, segmentToJS(seg)); err != nil {
			return err
		}
	}
	return nil
}

// segmentToJS exposes a segment to a script as a 0-based array of its
// fields' leading primitive values: field 1 is at index 0, and so on. This
// covers the common "read a flat field off a named segment" case; richer
// component/repetition access from within a script should go through a
// $field binding or a vars entry instead.
func segmentToJS(seg *hl7.Segment) []string {
	if seg == nil {
		return nil
	}
	out := make([]string, len(seg.Fields))
	for i, f := range seg.Fields {
		out[i] = f.FirstPrimitive()
	}
	return out
}

// nodeToJS flattens an hl7.Node into the shape a script actually wants to
// index: a composite's components become a 0-based array of their first
// primitive strings; a bare primitive becomes a one-element array so
// $field[0] always addresses "the value itself" uniformly.
func nodeToJS(n *hl7.Node) []string {
	if n == nil {
		return nil
	}
	if n.Kind == hl7.KindPrimitive {
		return []string{n.Primitive}
	}
	out := make([]string, len(n.Children))
	for i, c := range n.Children {
		out[i] = c.FirstPrimitive()
	}
	return out
}

// generalUtils is the fixed host function registry's GeneralUtils object:
// generateResourceId is the single permitted non-deterministic function.
func generalUtils() map[string]interface{} {
	return map[string]interface{}{
		"generateResourceId": func() string { return uuid.NewString() },
		"genderCode": func(code string) string {
			switch code {
			case "M":
				return "male"
			case "F":
				return "female"
			case "O":
				return "other"
			case "U":
				return "unknown"
			default:
				return ""
			}
		},
	}
}

// dateUtil is the fixed host function registry's DateUtil object.
// cronNext is deterministic: it always takes an explicit reference instant
// rather than reading the wall clock, so scripts that use it remain
// reproducible.
func dateUtil() map[string]interface{} {
	return map[string]interface{}{
		"formatDate": func(raw string) string {
			out, err := formatHL7Date(raw)
			if err != nil {
				return ""
			}
			return out
		},
		"cronNext": func(expr, fromISO string) string {
			from, err := time.Parse(time.RFC3339, fromISO)
			if err != nil {
				return ""
			}
			sched, err := cronexpr.Parse(expr)
			if err != nil {
				return ""
			}
			return sched.Next(from).Format(time.RFC3339)
		},
	}
}

// omopConcept is a registered-but-unimplemented host function slot: OMOP
// concept mapping is out of scope, but the binding exists so a template
// written against it fails with a clear "not configured" error instead of
// an undefined-function script crash.
func omopConcept() map[string]interface{} {
	return map[string]interface{}{
		"lookup": func(code string) string {
			panic(fmt.Errorf("OmopConcept.lookup: not configured"))
		},
	}
}

// exportJSValue converts a goja.Value into a plain Go value, recursing
// into arrays and objects so downstream field-map assembly never has to
// look at goja types.
func exportJSValue(v goja.Value) interface{} {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	exported := v.Export()
	return exportGo(exported)
}

func exportGo(v interface{}) interface{} {
	switch t := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = exportGo(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = exportGo(e)
		}
		return out
	default:
		return t
	}
}
