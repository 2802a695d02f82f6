package hook

import "time"

// Result is the sealed union of decisions a hook can return. Callers branch
// on the concrete type; each variant carries its own payload.
type Result interface{ hookResult() }

// Continue lets the chain proceed unchanged.
type Continue struct{}

func (Continue) hookResult() {}

// Modified replaces the context data visible to subsequent hooks and to the
// operation itself.
type Modified struct {
	Value map[string]any
}

func (Modified) hookResult() {}

// Cancel aborts the operation; no subsequent hook in the chain runs and the
// operation returns the cancel reason.
type Cancel struct {
	Reason string
}

func (Cancel) hookResult() {}

// Redirect asks the caller to dispatch the operation to a different target
// component.
type Redirect struct {
	Target string
}

func (Redirect) hookResult() {}

// Replace substitutes the operation result without executing the operation.
type Replace struct {
	Value any
}

func (Replace) hookResult() {}

// Retry asks the caller to retry the operation after a delay, at most
// MaxAttempts times.
type Retry struct {
	Delay       time.Duration
	MaxAttempts int
}

func (Retry) hookResult() {}

// Fork asks the caller to additionally run the listed operations.
type Fork struct {
	Operations []string
}

func (Fork) hookResult() {}

// Cache asks the caller to cache the operation result under Key for TTL.
type Cache struct {
	Key string
	TTL time.Duration
}

func (Cache) hookResult() {}

// Skipped records that the hook declined to act, with a reason for tracing.
type Skipped struct {
	Reason string
}

func (Skipped) hookResult() {}
