package entitygraph

import (
	"context"
	"testing"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/entity-store/pkg/store/inmemory"
	"github.com/diwise/entity-store/pkg/store/storetest"
	"github.com/matryer/is"
)

var deviceModel = entities.NewRecordModel("Device", entities.PathSpec{Name: "controls", TargetType: "Function"})
var functionModel = entities.NewRecordModel("Function", entities.PathSpec{Name: "feeds", TargetType: "Device"})

func id(s string) entities.Identifier {
	return entities.NewLocalIdentifier(s)
}

// counting wraps an in-memory store in a mock so the test can count
// the searches a resolution issues.
func counting[E any](inner store.Storing[E]) *storetest.StoringMock[E] {
	return &storetest.StoringMock[E]{
		SearchFunc: func(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
			return inner.Search(ctx, q, rc)
		},
	}
}

func seeded(ctx context.Context, model entities.Model[*entities.Record], records ...*entities.Record) *inmemory.Store[*entities.Record] {
	s := inmemory.New(ctx, model)
	s.Set(ctx, records, store.WriteContext{})
	return s
}

func TestCyclicReferencesAreFetchedOnce(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))
	f1 := entities.NewRecord(id("f-1"), "Function", entities.R("feeds", id("d-1")))

	devices := counting[*entities.Record](seeded(ctx, deviceModel, d1))
	functions := counting[*entities.Record](seeded(ctx, functionModel, f1))

	c := NewController(
		WithSource("Device", StoreSource(deviceModel, devices)),
		WithSource("Function", StoreSource(functionModel, functions)),
		WithRecursion(RecursionFull),
	)

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)

	is.Equal(g.Len(), 2) // the cycle adds each entity exactly once
	is.Equal(len(functions.SearchCalls()), 1)
	is.Equal(len(devices.SearchCalls()), 0) // the root was already in the graph
}

func TestPathFetchesAreBatchedAcrossRoots(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))
	d2 := entities.NewRecord(id("d-2"), "Device", entities.R("controls", id("f-2"), id("f-1")))

	functions := counting[*entities.Record](seeded(ctx, functionModel,
		entities.NewRecord(id("f-1"), "Function"),
		entities.NewRecord(id("f-2"), "Function"),
	))

	c := NewController(WithSource("Function", StoreSource(functionModel, functions)))

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1), Wrap(deviceModel, d2)})
	is.NoErr(err)

	is.Equal(g.Len(), 4)
	is.Equal(len(functions.SearchCalls()), 1) // one search for the whole path
}

func TestRecursionNoneExpandsDirectRelationshipsOnly(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))
	f1 := entities.NewRecord(id("f-1"), "Function", entities.R("feeds", id("d-2")))
	d2 := entities.NewRecord(id("d-2"), "Device")

	devices := seeded(ctx, deviceModel, d1, d2)
	functions := seeded(ctx, functionModel, f1)

	c := NewController(
		WithSource("Device", StoreSource(deviceModel, devices)),
		WithSource("Function", StoreSource(functionModel, functions)),
	)

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.Equal(g.Len(), 2) // d-2 is two hops away

	c = NewController(
		WithSource("Device", StoreSource(deviceModel, devices)),
		WithSource("Function", StoreSource(functionModel, functions)),
		WithRecursion(RecursionFull),
	)

	g, err = c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.Equal(g.Len(), 3)
}

func TestSkippedPathsAreLeftUnresolved(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))

	functions := counting[*entities.Record](seeded(ctx, functionModel))

	c := NewController(
		WithSource("Function", StoreSource(functionModel, functions)),
		WithPathPolicy("controls", PathPolicy{Kind: PathSkip}),
	)

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.Equal(g.Len(), 1)
	is.Equal(len(functions.SearchCalls()), 0)
}

func TestCustomPathsInsertDirectly(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))

	c := NewController(
		WithPathPolicy("controls", PathPolicy{
			Kind: PathCustom,
			Custom: func(ctx context.Context, g *Graph, ids []entities.Identifier) error {
				for _, fid := range ids {
					g.Insert(Wrap(functionModel, entities.NewRecord(fid, "Function")))
				}
				return nil
			},
		}),
	)

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.Equal(g.Len(), 2)

	_, ok := g.Find("Function", id("f-1"))
	is.True(ok)
}

func TestRestrictedPathsNarrowTheFetch(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1"), id("f-2")))

	functions := seeded(ctx, functionModel,
		entities.NewRecord(id("f-1"), "Function"),
		entities.NewRecord(id("f-2"), "Function"),
	)

	c := NewController(
		WithSource("Function", StoreSource(functionModel, functions)),
		WithPathPolicy("controls", PathPolicy{
			Kind: PathRestrict,
			Restrict: func(ids []entities.Identifier) ([]entities.Identifier, RecursionMode) {
				return ids[:1], RecursionNone
			},
		}),
	)

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.Equal(g.Len(), 2)
	is.True(!g.Contains("Function", id("f-2")))
}

func TestRejectedEntitiesAreDroppedWithoutFailing(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1"), id("f-2")))

	functions := seeded(ctx, functionModel,
		entities.NewRecord(id("f-1"), "Function"),
		entities.NewRecord(id("f-2"), "Function"),
	)

	rejectF2 := store.ContractFunc(func(ctx context.Context, e any) bool {
		n, ok := e.(Node)
		return ok && !n.Identity().Equals(id("f-2"))
	})

	c := NewController(
		WithSource("Function", StoreSource(functionModel, functions)),
		WithPathPolicy("controls", PathPolicy{Contract: rejectF2}),
	)

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.Equal(g.Len(), 2)
	is.True(!g.Contains("Function", id("f-2")))
}

func TestLiveRemoteDataFlagsTheGraph(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))

	live := sourceFunc(func(ctx context.Context, ids []entities.Identifier, rc store.ReadContext) ([]Node, bool, error) {
		return []Node{Wrap(functionModel, entities.NewRecord(ids[0], "Function"))}, true, nil
	})

	c := NewController(WithSource("Function", live))

	g, err := c.ResolveOnce(ctx, []Node{Wrap(deviceModel, d1)})
	is.NoErr(err)
	is.True(g.FromRemote())
}

type sourceFunc func(ctx context.Context, ids []entities.Identifier, rc store.ReadContext) ([]Node, bool, error)

func (f sourceFunc) Fetch(ctx context.Context, ids []entities.Identifier, rc store.ReadContext) ([]Node, bool, error) {
	return f(ctx, ids, rc)
}
