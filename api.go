// Package unmdx translates MDX queries into DAX, or into a
// human/machine-readable explanation of the same query intent. Parse,
// Optimize, Generate, and Explain each do one pipeline stage; MDXToDAX
// composes all three for the common case.
package unmdx

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/druarnfield/unmdx/diagnostics"
	"github.com/druarnfield/unmdx/emit"
	"github.com/druarnfield/unmdx/emit/explain"
	"github.com/druarnfield/unmdx/internal/linter"
	"github.com/druarnfield/unmdx/internal/lower"
	"github.com/druarnfield/unmdx/internal/mdxparse"
	"github.com/druarnfield/unmdx/ir"

	_ "github.com/druarnfield/unmdx/emit/dax"
)

// Timings records how long each pipeline stage took, in the order they ran.
type Timings struct {
	Parse    time.Duration
	Optimize time.Duration
	Generate time.Duration
	Explain  time.Duration
}

// Result is what MDXToDAX returns: the composed output of parse → optimize
// → generate, per §6's convenience wrapper.
type Result struct {
	DAX         string
	IR          *ir.Query
	Diagnostics *diagnostics.Bag
	Timings     Timings
}

func newCorrelationID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// ParseMDX tokenizes, parses, and lowers text into an ir.Query (C1+C3).
// Diagnostics from both stages are merged into a single bag; a non-nil
// *ir.Query is always returned, possibly with Valid set to false, unless
// Config.Parser.MaxInputChars rejects the input outright or the parse
// exceeds Config.Parser.ParseTimeoutMS, in which case the query is nil.
func ParseMDX(text string, cfg *Config) (*ir.Query, *diagnostics.Bag) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	correlationID := newCorrelationID()
	log := cfg.logger().With(zap.String("correlation_id", correlationID), zap.String("stage", "parse"))

	bag := diagnostics.NewBag()

	if limit := cfg.Parser.MaxInputChars; limit != nil && len(text) > *limit {
		bag.Errorf(diagnostics.KindResourceError, diagnostics.Span{},
			"input is %d characters, exceeds max_input_chars %d", len(text), *limit)
		return nil, bag
	}

	start := time.Now()
	res, timedOut := parseWithTimeout(text, cfg.Parser.ParseTimeoutMS)
	if timedOut {
		bag.Errorf(diagnostics.KindResourceError, diagnostics.Span{},
			"parse exceeded parse_timeout_ms budget of %dms", *cfg.Parser.ParseTimeoutMS)
		return nil, bag
	}

	q, lowerBag := lower.Lower(res.Query, res.Hints)
	bag.Merge(res.Bag)
	bag.Merge(lowerBag)

	if limit := cfg.Parser.MaxParseErrors; limit > 0 {
		enforceMaxParseErrors(bag, limit)
	}

	if q != nil {
		q.Metadata.CorrelationID = correlationID
	}

	log.Debug("parse complete", zap.Duration("elapsed", time.Since(start)), zap.Int("diagnostics", bag.Len()))
	return q, bag
}

// parseWithTimeout runs mdxparse.Parse, optionally racing it against
// timeoutMS. The parse goroutine is not forcibly killed on timeout (Go has
// no safe preemption primitive for that); for realistic MDX input sizes the
// parser returns well within any reasonable budget, so the race only
// matters for pathological inputs.
func parseWithTimeout(text string, timeoutMS *int) (*mdxparse.Result, bool) {
	if timeoutMS == nil || *timeoutMS <= 0 {
		return mdxparse.Parse(text), false
	}

	done := make(chan *mdxparse.Result, 1)
	go func() { done <- mdxparse.Parse(text) }()

	select {
	case res := <-done:
		return res, false
	case <-time.After(time.Duration(*timeoutMS) * time.Millisecond):
		return nil, true
	}
}

// enforceMaxParseErrors appends a resource_error to bag when it holds more
// than limit error-severity diagnostics. Every diagnostic already in bag is
// kept, and the parse itself is not cut short.
func enforceMaxParseErrors(bag *diagnostics.Bag, limit int) {
	all := bag.All()
	errCount := 0
	for _, d := range all {
		if d.Severity == diagnostics.Error {
			errCount++
		}
	}
	if errCount <= limit {
		return
	}
	bag.Errorf(diagnostics.KindResourceError, diagnostics.Span{},
		"parse produced %d errors, exceeding max_parse_errors %d", errCount, limit)
}

// OptimizeIR runs the linter passes over q at the level and rule set
// configured in cfg (C4).
func OptimizeIR(q *ir.Query, cfg *Config) (*ir.Query, *diagnostics.Bag) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if q == nil {
		bag := diagnostics.NewBag()
		return nil, bag
	}

	log := cfg.logger().With(zap.String("correlation_id", q.Metadata.CorrelationID), zap.String("stage", "optimize"))
	start := time.Now()
	out, bag := linter.Lint(q, cfg.linterOptions())
	log.Debug("optimize complete", zap.Duration("elapsed", time.Since(start)), zap.Int("diagnostics", bag.Len()))
	return out, bag
}

// GenerateDAX renders q as DAX text (C5). Emitter errors are reported as an
// emitter_error diagnostic; the returned text is the best-effort result (may
// be empty).
func GenerateDAX(q *ir.Query, cfg *Config) (string, *diagnostics.Bag) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	bag := diagnostics.NewBag()
	if q == nil {
		bag.Errorf(diagnostics.KindEmitterError, diagnostics.Span{}, "cannot generate DAX: %s", ErrNilQuery)
		return "", bag
	}

	e := emit.Get("dax")
	if e == nil {
		bag.Errorf(diagnostics.KindEmitterError, diagnostics.Span{}, "dax emitter not registered")
		return "", bag
	}

	out, err := e.Emit(q)
	if err != nil {
		bag.Errorf(diagnostics.KindEmitterError, diagnostics.Span{}, "generate dax: %s", err)
	}
	bag.Merge(q.Metadata.Diagnostics)
	return out, bag
}

// ExplainIR renders q as an explanation in the format/detail configured in
// cfg.Explanation (C6). When IncludeDAXComparison is set and the format
// supports it (markdown), the DAX translation is embedded.
func ExplainIR(q *ir.Query, cfg *Config) (string, *diagnostics.Bag) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	bag := diagnostics.NewBag()
	if q == nil {
		bag.Errorf(diagnostics.KindEmitterError, diagnostics.Span{}, "cannot explain: %s", ErrNilQuery)
		return "", bag
	}

	var includeDAX func(*ir.Query) (string, error)
	if cfg.Explanation.IncludeDAXComparison {
		includeDAX = func(q *ir.Query) (string, error) {
			text, daxBag := GenerateDAX(q, cfg)
			if daxBag.HasErrors() {
				return "", fmt.Errorf("dax comparison failed")
			}
			return text, nil
		}
	}

	// explain.Explain is called directly (rather than through a fixed
	// registered instance) so Detail and the DAX callback can vary per
	// invocation.
	out, err := explain.Explain(q, cfg.Explanation.Format, cfg.Explanation.Detail, includeDAX)
	if err != nil {
		bag.Errorf(diagnostics.KindEmitterError, diagnostics.Span{}, "explain: %s", err)
	}
	return out, bag
}

// MDXToDAX composes ParseMDX → OptimizeIR → GenerateDAX, the common-case
// wrapper described in §6.
func MDXToDAX(text string, cfg *Config) *Result {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	if cfg.Global.EnableCaching {
		if cached, ok := lookupCache(text, cfg); ok {
			return cached
		}
	}

	var timings Timings
	bag := diagnostics.NewBag()

	start := time.Now()
	q, parseBag := ParseMDX(text, cfg)
	timings.Parse = time.Since(start)
	bag.Merge(parseBag)

	if cfg.Global.FailFast && bag.HasErrors() {
		result := &Result{IR: q, Diagnostics: bag, Timings: timings}
		storeCache(text, cfg, result)
		return result
	}

	start = time.Now()
	q, optimizeBag := OptimizeIR(q, cfg)
	timings.Optimize = time.Since(start)
	bag.Merge(optimizeBag)

	if cfg.Global.FailFast && bag.HasErrors() {
		result := &Result{IR: q, Diagnostics: bag, Timings: timings}
		storeCache(text, cfg, result)
		return result
	}

	start = time.Now()
	daxText, generateBag := GenerateDAX(q, cfg)
	timings.Generate = time.Since(start)
	bag.Merge(generateBag)

	result := &Result{DAX: daxText, IR: q, Diagnostics: bag, Timings: timings}
	storeCache(text, cfg, result)
	return result
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Result{}
)

// cacheKey digests the input text and the config fields that affect
// pipeline output (everything but Logger, which has no bearing on the
// result).
func cacheKey(text string, cfg *Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%+v", text, struct {
		Parser      ParserConfig
		Linter      LinterConfig
		Dax         DaxConfig
		Explanation ExplanationConfig
		Global      GlobalConfig
	}{cfg.Parser, cfg.Linter, cfg.Dax, cfg.Explanation, cfg.Global})
	return hex.EncodeToString(h.Sum(nil))
}

func lookupCache(text string, cfg *Config) (*Result, bool) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	r, ok := cache[cacheKey(text, cfg)]
	return r, ok
}

func storeCache(text string, cfg *Config, r *Result) {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache[cacheKey(text, cfg)] = r
}
