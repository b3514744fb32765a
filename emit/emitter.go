// Package emit holds the registry that C5 (DAX) and C6 (explain) emitters
// register themselves into, mirroring the way the teacher's Dialect
// registry decouples "what language are we targeting" from the compiler
// core.
package emit

import "github.com/druarnfield/unmdx/ir"

// Emitter produces output text from a (possibly linted) IR query.
type Emitter interface {
	// Name returns the emitter identifier, e.g. "dax", "explain-sql".
	Name() string

	// Emit renders q as text. It never returns an error for a valid IR;
	// unsupported constructs degrade to best-effort output plus
	// diagnostics already reported by earlier stages.
	Emit(q *ir.Query) (string, error)
}

var registry = make(map[string]Emitter)

// Register adds e to the registry under e.Name(). Intended to be called
// from emitter package init() functions.
func Register(e Emitter) {
	registry[e.Name()] = e
}

// Get returns the emitter registered under name, or nil if none is.
func Get(name string) Emitter { //nolint:ireturn
	return registry[name]
}

// Registered returns the names of every registered emitter.
func Registered() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
