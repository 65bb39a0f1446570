// Package remote is the tier that talks to the transport layer.
// Concurrent identical requests are deduplicated: callers attach to
// the in-flight completion instead of issuing a new request.
package remote

import (
	"context"
	"fmt"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("entity-store/remote")

const TraceAttributeEntityType string = "entity-type"

type Store[E any] struct {
	model     entities.Model[E]
	transport Transport
	group     singleflight.Group
}

func New[E any](model entities.Model[E], transport Transport) *Store[E] {
	return &Store[E]{
		model:     model,
		transport: transport,
	}
}

func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	var err error

	ctx, span := tracer.Start(ctx, "retrieve-entity",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, s.model.EntityType())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	remoteID, err := id.Remote()
	if err != nil {
		err = fmt.Errorf("cannot address remote get with identifier %s: %w", id.Key(), err)
		return nil, err
	}

	req := Request{
		Operation:  "get",
		EntityType: s.model.EntityType(),
		IDs:        []string{remoteID},
	}

	var result *store.Result[E]
	result, err = s.fetch(ctx, req, rc)
	return result, err
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	var err error

	if q.MatchesNothing() {
		return store.EmptyResult[E](), nil
	}

	ctx, span := tracer.Start(ctx, "query-entities",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, s.model.EntityType())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	req := Request{
		Operation:  "search",
		EntityType: s.model.EntityType(),
		Query:      q.Canonical(),
	}

	var result *store.Result[E]
	result, err = s.fetch(ctx, req, rc)
	return result, err
}

// fetch deduplicates the request against the in-flight table, sends
// it and decodes the response.
func (s *Store[E]) fetch(ctx context.Context, req Request, rc store.ReadContext) (*store.Result[E], error) {
	if rc.Known != nil && rc.Known.ETag != "" {
		req.IfNoneMatch = rc.Known.ETag
	}

	// the shared send is detached from the leader's cancellation:
	// joined callers with live contexts must still get a result
	sendCtx := context.WithoutCancel(ctx)

	response, err, shared := s.group.Do(req.Signature(), func() (any, error) {
		store.RemoteRequests.WithLabelValues(s.model.EntityType()).Inc()
		return s.transport.Send(sendCtx, req)
	})

	if shared {
		store.RemoteDedupJoins.WithLabelValues(s.model.EntityType()).Inc()
	}

	if err != nil {
		return nil, err
	}

	return s.decode(response.(*Response), rc)
}

func (s *Store[E]) decode(resp *Response, rc store.ReadContext) (*store.Result[E], error) {
	if resp.NotModified && len(resp.Body) == 0 {
		return nil, store.ErrEmptyResponse
	}

	items, err := s.model.DecodeSlice(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.Roots != nil && s.shouldFilter(resp, rc) {
		items = filterToRoots(s.model, items, resp.Roots)
	}

	metadata := &store.ResponseMetadata{
		Origin:      resp.Origin,
		NotModified: resp.NotModified,
		ETag:        resp.ETag,
		TotalCount:  resp.TotalCount,
		Roots:       resp.Roots,
	}

	return store.MultiResult(items).WithMetadata(metadata), nil
}

// shouldFilter decides whether the response is re-filtered against
// the server declared root set. A trusted live response is used as
// is; a cache replay is always re-filtered, trust flag or not.
func (s *Store[E]) shouldFilter(resp *Response, rc store.ReadContext) bool {
	if resp.Origin == store.OriginCache {
		return true
	}
	return !rc.TrustRemoteFiltering
}

func filterToRoots[E any](m entities.Model[E], items []E, roots []entities.Identifier) []E {
	filtered := make([]E, 0, len(items))

	for _, item := range items {
		id := m.Identity(item)
		for _, root := range roots {
			if id.Equals(root) {
				filtered = append(filtered, item)
				break
			}
		}
	}

	return filtered
}

func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	var err error

	ctx, span := tracer.Start(ctx, "upsert-entities",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, s.model.EntityType())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := s.model.EncodeSlice(items)
	if err != nil {
		return store.Failed[E](err)
	}

	req := Request{
		Operation:  "set",
		EntityType: s.model.EntityType(),
		Payload:    payload,
	}

	return s.submit(ctx, req)
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	var err error

	ctx, span := tracer.Start(ctx, "delete-entities",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, s.model.EntityType())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	remoteIDs := make([]string, 0, len(ids))

	for _, id := range ids {
		var remoteID string

		remoteID, err = id.Remote()
		if err != nil {
			err = fmt.Errorf("cannot address remote remove with identifier %s: %w", id.Key(), err)
			return store.Failed[E](err)
		}

		remoteIDs = append(remoteIDs, remoteID)
	}

	req := Request{
		Operation:  "remove",
		EntityType: s.model.EntityType(),
		IDs:        remoteIDs,
	}

	return s.submit(ctx, req)
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	var err error

	if q.MatchesNothing() {
		return store.Completed(store.EmptyResult[E]())
	}

	ctx, span := tracer.Start(ctx, "delete-entities-by-query",
		trace.WithAttributes(attribute.String(TraceAttributeEntityType, s.model.EntityType())),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	req := Request{
		Operation:  "removeAll",
		EntityType: s.model.EntityType(),
		Query:      q.Canonical(),
	}

	return s.submit(ctx, req)
}

// submit appends a write to the outbound queue. A response without a
// body means the operation is in flight and the outcome is deferred;
// a body is decoded into the confirmed entities.
func (s *Store[E]) submit(ctx context.Context, req Request) store.Outcome[E] {
	store.RemoteRequests.WithLabelValues(s.model.EntityType()).Inc()

	resp, err := s.transport.Send(ctx, req)
	if err != nil {
		return store.Failed[E](err)
	}

	if len(resp.Body) == 0 {
		return store.Deferred[E]()
	}

	confirmed, err := s.model.DecodeSlice(resp.Body)
	if err != nil {
		return store.Failed[E](fmt.Errorf("failed to decode response: %w", err))
	}

	metadata := &store.ResponseMetadata{Origin: resp.Origin, ETag: resp.ETag}

	return store.Completed(store.MultiResult(confirmed).WithMetadata(metadata))
}
