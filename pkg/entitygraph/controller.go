package entitygraph

import (
	"context"
	"fmt"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("entity-store/entitygraph")

// RecursionMode bounds how far a resolution follows relationships.
type RecursionMode int

const (
	// RecursionNone expands the directly declared relationships of the
	// roots only.
	RecursionNone RecursionMode = iota
	// RecursionFull keeps expanding relationships of freshly inserted
	// entities until the frontier is exhausted.
	RecursionFull
)

type PathPolicyKind int

const (
	// PathDefault fetches the path's targets through the source
	// registered for the target type.
	PathDefault PathPolicyKind = iota
	// PathCustom delegates the path to a caller supplied routine that
	// inserts directly into the graph.
	PathCustom
	// PathRestrict lets the caller narrow the identifier set before
	// the fetch and decide the recursion mode for the fetched nodes.
	PathRestrict
	// PathSkip leaves the path unresolved.
	PathSkip
)

// CustomFetchFunc resolves one relationship path on the caller's
// terms. It inserts directly into the graph; the controller does not
// issue a search for the path.
type CustomFetchFunc func(ctx context.Context, g *Graph, ids []entities.Identifier) error

// RestrictFunc narrows the identifier set for one relationship path
// and decides how far the fetched nodes recurse.
type RestrictFunc func(ids []entities.Identifier) ([]entities.Identifier, RecursionMode)

// PathPolicy configures how one relationship path is resolved. The
// zero value is the default fetch through the registered source.
type PathPolicy struct {
	Kind     PathPolicyKind
	Custom   CustomFetchFunc
	Restrict RestrictFunc

	// Contract rejects fetched entities before insertion. Rejected
	// entities are dropped without failing the resolution.
	Contract store.Contract
}

// Controller drives relationship resolutions over a set of per type
// sources.
type Controller struct {
	sources   map[string]Source
	paths     map[string]PathPolicy
	recursion RecursionMode
	rc        store.ReadContext
}

func WithSource(entityType string, src Source) func(*Controller) {
	return func(c *Controller) {
		c.sources[entityType] = src
	}
}

func WithPathPolicy(path string, policy PathPolicy) func(*Controller) {
	return func(c *Controller) {
		c.paths[path] = policy
	}
}

func WithRecursion(mode RecursionMode) func(*Controller) {
	return func(c *Controller) {
		c.recursion = mode
	}
}

// WithReadContext sets the read context used for relationship
// fetches.
func WithReadContext(rc store.ReadContext) func(*Controller) {
	return func(c *Controller) {
		c.rc = rc
	}
}

func NewController(options ...func(*Controller)) *Controller {
	c := &Controller{
		sources: map[string]Source{},
		paths:   map[string]PathPolicy{},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// ResolveOnce resolves the relationships of the given roots into a
// completed graph reflecting the current snapshot.
func (c *Controller) ResolveOnce(ctx context.Context, roots []Node) (*Graph, error) {
	var err error

	ctx, span := tracer.Start(ctx, "resolve-relationships",
		trace.WithAttributes(attribute.Int("root-count", len(roots))),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	g := NewGraph()

	frontier := make([]Node, 0, len(roots))
	for _, root := range roots {
		kept, _ := g.Insert(root)
		frontier = append(frontier, kept)
	}

	for len(frontier) > 0 {
		frontier, err = c.expand(ctx, g, frontier)
		if err != nil {
			return nil, err
		}
	}

	return g, nil
}

type pathBatch struct {
	path       string
	targetType string
	ids        []entities.Identifier
}

// expand walks one frontier generation: it batches all identifiers
// needed per relationship path across the whole frontier, fetches
// each batch in a single call and returns the freshly inserted nodes.
func (c *Controller) expand(ctx context.Context, g *Graph, frontier []Node) ([]Node, error) {
	batches := c.collect(g, frontier)

	next := []Node{}

	for _, batch := range batches {
		policy := c.paths[batch.path]

		switch policy.Kind {
		case PathSkip:
			continue

		case PathCustom:
			if err := policy.Custom(ctx, g, batch.ids); err != nil {
				return nil, fmt.Errorf("custom fetch for path %s failed: %w", batch.path, err)
			}
			continue
		}

		ids := missingFrom(g, batch.targetType, batch.ids)
		recursion := c.recursion

		if policy.Kind == PathRestrict {
			ids, recursion = policy.Restrict(ids)
		}

		if len(ids) == 0 {
			continue
		}

		src, ok := c.sources[batch.targetType]
		if !ok {
			return nil, fmt.Errorf("no source registered for entity type %s", batch.targetType)
		}

		nodes, live, err := src.Fetch(ctx, ids, c.rc)
		if err != nil {
			return nil, fmt.Errorf("fetch for path %s failed: %w", batch.path, err)
		}

		if live {
			g.NoteRemoteOrigin()
		}

		contract := policy.Contract
		if contract == nil {
			contract = c.rc.Contract
		}

		for _, n := range nodes {
			if contract != nil && !contract.Accept(ctx, n) {
				logging.GetFromContext(ctx).Debug("entity rejected by contract",
					"entity_type", n.EntityType(), "path", batch.path, "id", n.Identity().Key(),
				)
				continue
			}

			kept, fresh := g.Insert(n)
			if fresh && recursion == RecursionFull {
				next = append(next, kept)
			}
		}
	}

	return next, nil
}

// collect gathers the identifiers every unvisited frontier node needs
// per relationship path, marking the nodes visited so that a second
// reference never triggers a second expansion.
func (c *Controller) collect(g *Graph, frontier []Node) []pathBatch {
	batches := []pathBatch{}
	index := map[string]int{}

	for _, node := range frontier {
		if g.Visited(node) {
			continue
		}
		g.MarkVisited(node)

		for _, ref := range node.References() {
			if len(ref.Objects) == 0 {
				continue
			}

			idx, ok := index[ref.Path]
			if !ok {
				idx = len(batches)
				index[ref.Path] = idx
				batches = append(batches, pathBatch{path: ref.Path, targetType: ref.TargetType})
			}

			batches[idx].ids = append(batches[idx].ids, ref.Objects...)
		}
	}

	for idx := range batches {
		batches[idx].ids = dedupe(batches[idx].ids)
	}

	return batches
}

func missingFrom(g *Graph, entityType string, ids []entities.Identifier) []entities.Identifier {
	missing := make([]entities.Identifier, 0, len(ids))

	for _, id := range ids {
		if !g.Contains(entityType, id) {
			missing = append(missing, id)
		}
	}

	return missing
}

func dedupe(ids []entities.Identifier) []entities.Identifier {
	unique := make([]entities.Identifier, 0, len(ids))

	for _, id := range ids {
		duplicate := false
		for _, seen := range unique {
			if seen.Equals(id) {
				duplicate = true
				break
			}
		}

		if !duplicate {
			unique = append(unique, id)
		}
	}

	return unique
}
