package remote

import (
	"context"
	"strings"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/store"
)

// Request is the description of one outbound remote operation. The
// transport collaborator owns the mapping to an actual wire format.
type Request struct {
	Operation  string
	EntityType string
	IDs        []string
	Query      string
	Payload    []byte

	// IfNoneMatch carries the validator from caller supplied
	// response metadata, turning the request into a conditional one.
	IfNoneMatch string
}

// Signature computes the deduplication key for the request. Two
// concurrent requests with the same signature share one transport
// call.
func (r Request) Signature() string {
	var b strings.Builder

	b.WriteString(r.Operation)
	b.WriteByte('|')
	b.WriteString(r.EntityType)
	b.WriteByte('|')
	b.WriteString(strings.Join(r.IDs, ","))
	b.WriteByte('|')
	b.WriteString(r.Query)
	b.WriteByte('|')
	b.WriteString(r.IfNoneMatch)

	return b.String()
}

// Response is what the transport hands back for one request.
type Response struct {
	NotModified bool
	Body        []byte
	ETag        string
	TotalCount  int64

	// Origin classifies the payload as a live server response or a
	// replayed cache entry.
	Origin store.ResponseOrigin

	// Roots is the server declared root entity set, when the server
	// declared one.
	Roots []entities.Identifier
}

// Transport submits one request description per deduplicated
// operation and returns the response payload or a transport level
// error.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
}
