package template

import "fmt"

// LoadError is fatal-at-load per the error handling design: a template
// that fails to parse (or fails structural validation) makes every
// template that would reference it unusable too.
type LoadError struct {
	Path   string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("template: %s: %s", e.Path, e.Reason)
}

// NotFoundError is returned when no tier (override, primary, embedded) has
// a template for the requested message type and version.
type NotFoundError struct {
	MessageType string
	Version     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("template: no template for message type %q (version %q)", e.MessageType, e.Version)
}

// CycleError reports an unconditional self-reference detected at load time:
// a Resource expression whose template path and specs would cause the
// loader to re-enter the same template with the same sub-tree selector on
// every evaluation, regardless of input.
type CycleError struct {
	Path string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("template: %s: unconditional self-reference cycle", e.Path)
}
