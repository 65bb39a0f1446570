// Package api exposes the composed store stacks over HTTP. The
// surface mirrors what the client side transport expects: entity
// collections under /v1/entities/{entityType}, canonical queries in
// the q parameter and response metadata in headers.
package api

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/entity-store/pkg/transport"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Entry bundles everything the handlers need to serve one entity
// type: the composed stack, its model and the read context that
// stack was configured with.
type Entry struct {
	Store store.Storing[*entities.Record]
	Model entities.Model[*entities.Record]
	Read  store.ReadContext
}

func RegisterHandlers(ctx context.Context, r chi.Router, stores map[string]Entry) error {
	if len(stores) == 0 {
		return fmt.Errorf("no entity stores to register handlers for")
	}

	log := logging.GetFromContext(ctx)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.Route("/v1/entities", func(r chi.Router) {
		r.Use(Logger(log))

		r.Get("/{entityType}", NewSearchEntitiesHandler(stores))
		r.Get("/{entityType}/{entityID}", NewRetrieveEntityHandler(stores))

		r.With(RequiredContentTypes([]string{"application/json"})).
			Post("/{entityType}", NewUpsertEntitiesHandler(stores))

		r.Delete("/{entityType}", NewRemoveEntitiesHandler(stores))
	})

	return nil
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequiredContentTypes(validTypes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			isValidContentType := false

			for _, t := range validTypes {
				if strings.HasPrefix(contentType, t) {
					isValidContentType = true
					break
				}
			}

			if !isValidContentType {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func NewRetrieveEntityHandler(stores map[string]Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entry, ok := lookup(stores, r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		entityID, err := url.QueryUnescape(chi.URLParam(r, "entityID"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		result, err := entry.Store.Get(ctx, entities.NewPairedIdentifier(entityID, entityID), entry.Read)
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		if result.None() {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		writeResult(ctx, w, r, entry, result)
	}
}

// searches is a process wide singleflight group so that identical
// concurrent searches against the same store share one evaluation.
var searches singleflight.Group

func NewSearchEntitiesHandler(stores map[string]Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entry, ok := lookup(stores, r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		q := query.All[*entities.Record]()

		canonical := r.URL.Query().Get("q")
		if canonical != "" {
			parsed, err := query.Parse[*entities.Record](canonical)
			if err != nil {
				writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid query: %s", err.Error()))
				return
			}
			q = parsed
		}

		key := entry.Model.EntityType() + "|" + q.Canonical()

		// detached from the leader's cancellation so a shared search
		// survives the first requester disconnecting
		searchCtx := context.WithoutCancel(ctx)

		found, err, _ := searches.Do(key, func() (any, error) {
			return entry.Store.Search(searchCtx, q, entry.Read)
		})
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		writeResult(ctx, w, r, entry, found.(*store.Result[*entities.Record]))
	}
}

func NewUpsertEntitiesHandler(stores map[string]Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entry, ok := lookup(stores, r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		items, err := entry.Model.DecodeSlice(body)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid entity payload: %s", err.Error()))
			return
		}

		outcome := entry.Store.Set(ctx, items, store.WriteContext{
			Persistence: store.Persist,
			Merge:       store.MergeByIdentifier,
		})

		if outcome.Failed() {
			writeError(ctx, w, outcome.Err())
			return
		}

		if outcome.IsDeferred() {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		confirmed, err := entry.Model.EncodeSlice(outcome.Result().All())
		if err != nil {
			writeError(ctx, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(confirmed)
	}
}

func NewRemoveEntitiesHandler(stores map[string]Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		entry, ok := lookup(stores, r)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var outcome store.Outcome[*entities.Record]

		switch {
		case len(r.URL.Query()["id"]) > 0:
			ids := make([]entities.Identifier, 0, len(r.URL.Query()["id"]))
			for _, id := range r.URL.Query()["id"] {
				ids = append(ids, entities.NewPairedIdentifier(id, id))
			}
			outcome = entry.Store.Remove(ctx, ids, store.WriteContext{})

		case r.URL.Query().Get("q") != "":
			q, err := query.Parse[*entities.Record](r.URL.Query().Get("q"))
			if err != nil {
				writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid query: %s", err.Error()))
				return
			}
			outcome = entry.Store.RemoveAll(ctx, q, store.WriteContext{})

		default:
			writeProblem(w, http.StatusBadRequest, "removal requires id parameters or a query")
			return
		}

		if outcome.Failed() {
			writeError(ctx, w, outcome.Err())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func lookup(stores map[string]Entry, r *http.Request) (Entry, bool) {
	entityType, err := url.QueryUnescape(chi.URLParam(r, "entityType"))
	if err != nil {
		return Entry{}, false
	}

	entry, ok := stores[entityType]
	return entry, ok
}

func writeResult(ctx context.Context, w http.ResponseWriter, r *http.Request, entry Entry, result *store.Result[*entities.Record]) {
	body, err := entry.Model.EncodeSlice(result.All())
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	etag := validatorFor(body)
	w.Header().Set("ETag", etag)

	totalCount := int64(result.Count())
	if result.Metadata != nil && result.Metadata.TotalCount > 0 {
		totalCount = result.Metadata.TotalCount
	}
	w.Header().Set(transport.HeaderTotalCount, strconv.FormatInt(totalCount, 10))

	if result.Metadata != nil && result.Metadata.Origin == store.OriginCache {
		w.Header().Set(transport.HeaderOrigin, "cache")
	}

	if result.Metadata != nil && len(result.Metadata.Roots) > 0 {
		if roots, err := transport.RootSetHeader(result.Metadata.Roots); err == nil {
			w.Header().Set(transport.HeaderRootSet, roots)
		}
	}

	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// validatorFor derives a weak validator from the encoded response
// body, so unchanged collections can be answered with 304.
func validatorFor(body []byte) string {
	h := fnv.New64a()
	h.Write(body)
	return fmt.Sprintf("W/\"%x\"", h.Sum64())
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logging.GetFromContext(ctx)

	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if errors.Is(err, store.ErrNotSupported) {
		writeProblem(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Error("request failed", "err", err.Error())
	writeProblem(w, http.StatusInternalServerError, err.Error())
}

func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	fmt.Fprintf(w, "{\"status\":%d,\"detail\":%s}", status, strconv.Quote(detail))
}
