package store

// OutcomeState is the tri-state result of a write. Deferred means
// the operation was delegated elsewhere, for instance queued towards
// the remote, and callers must not assume completion.
type OutcomeState int

const (
	StateDeferred OutcomeState = iota
	StateCompleted
	StateFailed
)

// Outcome is the result of a set, remove or removeAll against a
// tier.
type Outcome[E any] struct {
	state  OutcomeState
	result *Result[E]
	err    error
}

func Deferred[E any]() Outcome[E] {
	return Outcome[E]{state: StateDeferred}
}

func Completed[E any](result *Result[E]) Outcome[E] {
	return Outcome[E]{state: StateCompleted, result: result}
}

func Failed[E any](err error) Outcome[E] {
	return Outcome[E]{state: StateFailed, err: err}
}

func (o Outcome[E]) State() OutcomeState {
	return o.state
}

func (o Outcome[E]) IsDeferred() bool {
	return o.state == StateDeferred
}

func (o Outcome[E]) IsCompleted() bool {
	return o.state == StateCompleted
}

func (o Outcome[E]) Failed() bool {
	return o.state == StateFailed
}

func (o Outcome[E]) Result() *Result[E] {
	return o.result
}

func (o Outcome[E]) Err() error {
	return o.err
}
