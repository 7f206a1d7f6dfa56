// Package scxml is a W3C SCXML (State Chart XML) interpreter: parse or
// build a chart, then run it as a long-lived Host or step it purely via
// SendSync.
//
// Grounded on the teacher's top-level package surface (statechartx:
// NewMachine/NewMachineBuilder as the two construction paths), generalized
// from the teacher's hand-rolled runtime to the full interpretation
// algorithm in internal/core, fronted by host.Host.
package scxml

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/comalice/scxml/host"
	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/parser"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/validator"
)

// Document is the parsed, validated chart; an opaque alias so callers
// never need to import internal/primitives directly.
type Document = primitives.Document

// Evaluator is the pluggable datamodel expression engine (spec.md §4.8).
type Evaluator = primitives.Evaluator

// Host runs one live instance of a Document.
type Host = host.Host

// Option configures a Host; see the host package for the full set
// (WithLogger, WithTracer, WithClock, WithSessionID, WithQueueSize,
// WithInvokeHandler, WithSendHandler).
type Option = host.Option

// Snapshot is the serializable state of one instance (spec.md §6).
type Snapshot = host.Snapshot

// ActionRunner executes executable content on behalf of a Host or a pure
// SendSync step; internal/content.Runner is the default implementation,
// wired in automatically by NewHost.
type ActionRunner = core.ActionRunner

// ParseOptions configures Parse (spec.md §6 "parse(source, options)").
// The zero value is the common case: validate, don't touch the source
// bytes, and accept whatever namespace (or none) the document declares.
type ParseOptions struct {
	// SkipValidation turns Parse into a bare syntax parse, leaving
	// reference resolution and structural checks (internal/validator)
	// undone. spec.md's `validate` option defaults to true; inverted
	// here so the Go zero value matches that default.
	SkipValidation bool

	// PrependXMLDeclaration prepends `<?xml version="1.0"?>` to the
	// source before parsing if it doesn't already start with one.
	// Go's encoding/xml tolerates a missing declaration, but some
	// strict downstream XML tooling that re-reads the bytes doesn't.
	PrependXMLDeclaration bool

	// StrictNamespace rejects a document whose root xmlns (explicit or
	// defaulted) isn't exactly parser.SCXMLNamespace.
	StrictNamespace bool
}

// Warning is a non-fatal issue recorded during validation (e.g. a
// <parallel> with fewer than two regions): the document is still usable.
type Warning string

// Parse reads an SCXML document from r per opts, resolving every ID
// reference and computing ancestor chains unless opts.SkipValidation is
// set. The returned error is a *validator.ValidationError for a
// structural defect, or a parse error for malformed XML; non-fatal
// issues are left in Document.Warnings.
func Parse(r io.Reader, opts ParseOptions) (*Document, error) {
	if opts.PrependXMLDeclaration {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("<?xml")) {
			data = append([]byte(`<?xml version="1.0"?>`+"\n"), data...)
		}
		r = bytes.NewReader(data)
	}

	doc, err := parser.Parse(r)
	if err != nil {
		return nil, err
	}
	if opts.StrictNamespace && doc.XMLNS != parser.SCXMLNamespace {
		return nil, fmt.Errorf("scxml: root element declares xmlns %q, want %q", doc.XMLNS, parser.SCXMLNamespace)
	}
	if !opts.SkipValidation {
		if err := validator.Validate(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Validate (re)runs structural validation over an already-parsed
// Document - e.g. one built with Builder rather than Parse, or one
// parsed with ParseOptions.SkipValidation - and reports its warnings
// alongside any fatal error (spec.md §6 "validate(Document) -> (Document,
// warnings) | (errors, warnings)").
func Validate(doc *Document) (*Document, []Warning, error) {
	err := validator.Validate(doc)
	warnings := make([]Warning, len(doc.Warnings))
	for i, w := range doc.Warnings {
		warnings[i] = Warning(w)
	}
	return doc, warnings, err
}

// instanceConfig collects Initialize's parameters; InstanceOption sets
// fields on it the same way host.Option configures a Host.
type instanceConfig struct {
	evaluator Evaluator
	hostOpts  []Option
}

// InstanceOption configures Initialize.
type InstanceOption func(*instanceConfig)

// WithEvaluator selects the datamodel expression engine for the new
// instance. Defaults to eval.NewDefaultEvaluator().
func WithEvaluator(e Evaluator) InstanceOption {
	return func(c *instanceConfig) { c.evaluator = e }
}

// WithHostOptions forwards host.Option values (WithLogger, WithTracer,
// WithInvokeHandler, ...) to the underlying Host.
func WithHostOptions(opts ...Option) InstanceOption {
	return func(c *instanceConfig) { c.hostOpts = append(c.hostOpts, opts...) }
}

// Initialize builds a Host around doc and starts it, entering the
// initial configuration before returning (spec.md §6
// "Initialize(Document, options) -> Host"). Equivalent to NewHost
// followed by Start, for callers that don't need the two steps split.
func Initialize(doc *Document, opts ...InstanceOption) (*Host, error) {
	cfg := &instanceConfig{evaluator: eval.NewDefaultEvaluator()}
	for _, opt := range opts {
		opt(cfg)
	}
	h := NewHost(doc, cfg.evaluator, cfg.hostOpts...)
	if err := h.Start(context.Background()); err != nil {
		return nil, err
	}
	return h, nil
}

// NewHost constructs a Host around doc. Call Start to enter the initial
// configuration and begin processing events.
func NewHost(doc *Document, evaluator Evaluator, opts ...Option) *Host {
	return host.New(doc, evaluator, opts...)
}

// SendSync applies one event to snap as a pure function of (Document,
// Snapshot, Event), independent of any running Host, and returns the
// resulting Snapshot (spec.md §6).
func SendSync(doc *Document, evaluator Evaluator, runner ActionRunner, snap Snapshot, eventName string, data any) (Snapshot, error) {
	return host.SendSync(doc, evaluator, runner, snap, eventName, data)
}
