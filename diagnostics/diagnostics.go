// Package diagnostics holds the shared error/warning taxonomy threaded
// through every stage of the MDX-to-DAX pipeline.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/alecthomas/participle/v2/lexer"
)

// Severity ranks how serious a Diagnostic is.
type Severity int

// Severity levels, ordered from least to most serious.
const (
	Info Severity = iota
	Warning
	Error
)

// String renders the severity the way it appears in CLI and explain output.
func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Kind is a stable taxonomy tag for a Diagnostic. Implementations may mint
// additional subkinds; the constants below cover §7 of the specification.
type Kind string

// Kinds recognized across the pipeline.
const (
	KindParseError           Kind = "parse_error"
	KindUnsupportedConstruct Kind = "unsupported_construct"
	KindSemanticError        Kind = "semantic_error"
	KindNormalizationWarning Kind = "normalization_warning"
	KindEmitterError         Kind = "emitter_error"
	KindResourceError        Kind = "resource_error"
)

// Span is a half-open range in source text, reusing participle's lexer
// position type so parser, lowerer, and diagnostics agree on one notion of
// location without a conversion layer.
type Span struct {
	Start lexer.Position
	End   lexer.Position
}

// String renders a span as "line:col".
func (s Span) String() string {
	if s.Start == (lexer.Position{}) {
		return "-"
	}
	return fmt.Sprintf("%d:%d", s.Start.Line, s.Start.Column)
}

// Diagnostic is one problem report: a parse failure, a semantic error, a
// normalization note, or a resource limit being hit.
type Diagnostic struct {
	Severity   Severity
	Kind       Kind
	Code       string // short stable sub-identifier, e.g. "duplicate_measure_alias"
	Message    string
	Span       Span
	Snippet    string // ~40 chars of source context around Span
	Suggestion string
}

func (d Diagnostic) String() string {
	if d.Suggestion != "" {
		return fmt.Sprintf("%s: %s: %s (suggestion: %s)", d.Severity, d.Span, d.Message, d.Suggestion)
	}
	return fmt.Sprintf("%s: %s: %s", d.Severity, d.Span, d.Message)
}

// Bag accumulates diagnostics in emission order across the whole pipeline.
// It is not safe for concurrent use; the core is single-threaded by design.
type Bag struct {
	items []Diagnostic
}

// NewBag returns an empty diagnostics bag.
func NewBag() *Bag {
	return &Bag{}
}

// Add appends a diagnostic, preserving emission order.
func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

// Errorf is a convenience constructor for error-severity diagnostics.
func (b *Bag) Errorf(kind Kind, span Span, format string, args ...any) {
	b.Add(Diagnostic{Severity: Error, Kind: kind, Message: fmt.Sprintf(format, args...), Span: span})
}

// Warnf is a convenience constructor for warning-severity diagnostics.
func (b *Bag) Warnf(kind Kind, span Span, format string, args ...any) {
	b.Add(Diagnostic{Severity: Warning, Kind: kind, Message: fmt.Sprintf(format, args...), Span: span})
}

// Infof is a convenience constructor for info-severity diagnostics.
func (b *Bag) Infof(kind Kind, span Span, format string, args ...any) {
	b.Add(Diagnostic{Severity: Info, Kind: kind, Message: fmt.Sprintf(format, args...), Span: span})
}

// All returns the accumulated diagnostics in emission order.
func (b *Bag) All() []Diagnostic {
	return b.items
}

// HasErrors reports whether any diagnostic of Error severity was recorded.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics accumulated so far.
func (b *Bag) Len() int {
	return len(b.items)
}

// Merge appends another bag's diagnostics, preserving relative order: this
// bag's existing items first, then other's.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}

// SortStable orders diagnostics by source position while preserving
// relative order among diagnostics at the same position (needed when
// multiple passes report at the same span).
func (b *Bag) SortStable() {
	sort.SliceStable(b.items, func(i, j int) bool {
		a, c := b.items[i].Span.Start, b.items[j].Span.Start
		if a.Line != c.Line {
			return a.Line < c.Line
		}
		return a.Column < c.Column
	})
}

// Snippet extracts a roughly `width`-character window of `source` centered
// on offset, used to populate Diagnostic.Snippet.
func Snippet(source string, offset, width int) string {
	if offset < 0 || offset > len(source) {
		return ""
	}
	half := width / 2
	start := offset - half
	if start < 0 {
		start = 0
	}
	end := offset + half
	if end > len(source) {
		end = len(source)
	}
	return source[start:end]
}
