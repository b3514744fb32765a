package unmdx

import "errors"

// Sentinel errors. These cover programmer/API misuse and environment
// failure; problems intrinsic to the MDX text itself are reported as
// diagnostics, never as errors (§7).
var (
	// ErrConfigNotFound is returned when no .unmdx.yaml/.unmdx.json is found.
	ErrConfigNotFound = errors.New("unmdx: no config file found")

	// The sentinels below are not returned by any function in this package;
	// the conditions they name are reported as diagnostics instead.

	// ErrUnknownFormat names an unrecognized explanation format.
	ErrUnknownFormat = errors.New("unmdx: unknown explanation format")

	// ErrUnknownOptimizationLevel names an unrecognized linter level.
	ErrUnknownOptimizationLevel = errors.New("unmdx: unknown optimization level")

	// ErrNilQuery names an API call made with a nil IR; GenerateDAX and
	// ExplainIR include its text in their emitter_error diagnostic.
	ErrNilQuery = errors.New("unmdx: nil query")

	// ErrTooManyParseErrors names a parse with more than
	// Config.Parser.MaxParseErrors diagnostics of severity error.
	ErrTooManyParseErrors = errors.New("unmdx: too many parse errors")

	// ErrInputTooLarge names input longer than Config.Parser.MaxInputChars.
	ErrInputTooLarge = errors.New("unmdx: input exceeds max_input_chars")

	// ErrTimeout names a stage that exceeded its configured time budget.
	ErrTimeout = errors.New("unmdx: stage exceeded its time budget")
)
