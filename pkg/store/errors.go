package store

import (
	"fmt"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
)

var ErrNotFound = fmt.Errorf("not found")

// ErrEmptyResponse signals a cacheable "not modified" response that
// carried no body to decode.
var ErrEmptyResponse = fmt.Errorf("empty response")

// ErrNotSupported is re-exported from the query package for callers
// that only deal with the store surface.
var ErrNotSupported = query.ErrNotSupported

// ErrNotSynced is re-exported from the entities package.
var ErrNotSynced = entities.ErrNotSynced

type storeError struct {
	msg    string
	target error
}

func (e *storeError) Error() string        { return e.msg }
func (e *storeError) Is(target error) bool { return target == e.target }

func NewNotFoundError(msg string) error {
	return &storeError{msg: msg, target: ErrNotFound}
}

func NewNotSupportedError(msg string) error {
	return &storeError{msg: msg, target: ErrNotSupported}
}

// APIError is an opaque passthrough of a transport or API level
// failure, carrying the status and payload the remote returned.
type APIError struct {
	Status  int
	Payload []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status %d", e.Status)
}
