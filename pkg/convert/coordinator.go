package convert

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/hl7"
	"github.com/Health-Tech-Innovators/hl7v2-fhir-converter/pkg/template"
)

// Coordinator implements §4.6: per input message, parse, derive the
// messageCode_triggerEvent key, look up its Message Template, construct a
// fresh bundle/reference-cache/coverage-record, run the Resource Builder,
// and emit the bundle plus coverage report. Nothing here is a singleton —
// every piece of per-conversion state is owned by the single Convert call
// that created it, per the explicit-context redesign in §9.
type Coordinator struct {
	Loader            *template.Loader
	DefaultVersion    string
	SupportedMessages []string
	Logger            zerolog.Logger
}

// NewCoordinator builds a Coordinator over a shared, read-only Loader.
// defaultVersion is used when MSH-12 is blank, per the
// `default.hl7.version` configuration option (default "2.6").
// supportedMessages gates which derived message types Convert will accept,
// per the `supported.hl7.messages` configuration option; pass {"*"} (or
// nil) to accept every message type the Loader can find a template for.
func NewCoordinator(loader *template.Loader, defaultVersion string, supportedMessages []string, logger zerolog.Logger) *Coordinator {
	if defaultVersion == "" {
		defaultVersion = "2.6"
	}
	if len(supportedMessages) == 0 {
		supportedMessages = []string{"*"}
	}
	return &Coordinator{Loader: loader, DefaultVersion: defaultVersion, SupportedMessages: supportedMessages, Logger: logger}
}

// Result is what one Convert call produces: the bundle (possibly partial,
// if a fatal error occurred partway through) and the coverage report,
// which is always populated per §7's "the coverage report is always
// produced" rule.
type Result struct {
	Bundle *Bundle
	Report *Report
}

// Convert runs the full pipeline over a raw HL7 v2.x message using this
// module's bundled reference lexer (pkg/hl7.Parse). ConvertMessage accepts
// an already-parsed tree for callers wired to an external front-end.
func (c *Coordinator) Convert(ctx context.Context, raw string) (*Result, error) {
	msg, err := hl7.Parse(raw)
	if err != nil {
		return &Result{Bundle: stampedBundle(), Report: &Report{}}, err
	}
	return c.ConvertMessage(ctx, msg)
}

// ConvertMessage runs the pipeline over an already-parsed message tree.
func (c *Coordinator) ConvertMessage(ctx context.Context, msg *hl7.Message) (*Result, error) {
	messageType, version, messageID := deriveMessageKey(msg, c.DefaultVersion)

	coverage := NewCoverageTracker()
	emptyReport := func(warnings []FieldWarning) *Report { return coverage.Build(msg, messageID, warnings) }

	cfg := Config{SupportedMessages: c.SupportedMessages}
	if !cfg.Supports(messageType) {
		return &Result{Bundle: stampedBundle(), Report: emptyReport(nil)},
			&UnknownMessageTypeError{MessageType: messageType, Version: version}
	}

	mt, err := c.Loader.GetMessageTemplate(messageType, version)
	if err != nil {
		if _, ok := err.(*template.NotFoundError); ok {
			err = &UnknownMessageTypeError{MessageType: messageType, Version: version}
		}
		return &Result{Bundle: stampedBundle(), Report: emptyReport(nil)}, err
	}

	bundle := stampedBundle()
	refs := NewReferenceCache()
	eval := NewEvaluator(msg, c.Loader, refs, coverage, c.Logger)
	builder := NewResourceBuilder(msg, eval, refs)

	warnings, err := builder.Build(ctx, mt, bundle)
	report := emptyReport(warnings)
	if err != nil {
		c.Logger.Warn().Err(err).Str("messageType", messageType).Msg("conversion failed")
		return &Result{Bundle: bundle, Report: report}, err
	}
	return &Result{Bundle: bundle, Report: report}, nil
}

// stampedBundle returns an empty bundle with Timestamp set to the instant
// of the call, in RFC 3339 (UTC). Every Convert/ConvertMessage return path
// builds its bundle through this so the timestamp reflects when the
// conversion ran, not when the caller later marshals the result.
func stampedBundle() *Bundle {
	b := NewBundle()
	b.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return b
}

// deriveMessageKey reads MSH-9.1_MSH-9.2 to form messageCode_triggerEvent,
// MSH-12 for the version (falling back to defaultVersion when blank), and
// MSH-10 for the message control id used to label the coverage report.
func deriveMessageKey(msg *hl7.Message, defaultVersion string) (messageType, version, messageID string) {
	msh := msg.FirstSegmentNamed("MSH")
	if msh == nil {
		return "", defaultVersion, ""
	}
	code := msh.Field(9).Component(1).FirstPrimitive()
	trigger := msh.Field(9).Component(2).FirstPrimitive()
	messageType = strings.TrimSpace(code + "_" + trigger)
	if code == "" {
		messageType = ""
	}

	version = strings.TrimSpace(msh.Field(12).FirstPrimitive())
	if version == "" {
		version = defaultVersion
	}
	messageID = strings.TrimSpace(msh.Field(10).FirstPrimitive())
	return
}
