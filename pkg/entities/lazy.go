package entities

import "encoding/json"

// Lazy holds a field value together with a flag recording whether
// the value has actually been requested from its source, or is just
// a placeholder for a value that was never loaded.
type Lazy[T any] struct {
	value     T
	requested bool
}

func Requested[T any](value T) Lazy[T] {
	return Lazy[T]{value: value, requested: true}
}

func NotRequested[T any]() Lazy[T] {
	return Lazy[T]{}
}

func (l Lazy[T]) Value() (T, bool) {
	return l.value, l.requested
}

func (l Lazy[T]) IsRequested() bool {
	return l.requested
}

// Merge combines an existing lazy value with an incoming one. A
// requested value always wins over a placeholder, and when both
// sides have been requested the incoming (newer) value is kept.
func (l Lazy[T]) Merge(incoming Lazy[T]) Lazy[T] {
	if incoming.requested {
		return incoming
	}

	if l.requested {
		return l
	}

	return incoming
}

type lazyJSON[T any] struct {
	Value     T    `json:"value"`
	Requested bool `json:"requested"`
}

func (l Lazy[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(lazyJSON[T]{Value: l.value, Requested: l.requested})
}

func (l *Lazy[T]) UnmarshalJSON(data []byte) error {
	repr := lazyJSON[T]{}

	err := json.Unmarshal(data, &repr)
	if err != nil {
		return err
	}

	l.value = repr.Value
	l.requested = repr.Requested

	return nil
}
