package cached

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

var model = entities.NewRecordModel("Device")

func TestIdenticalWriteSkipsDurableTier(t *testing.T) {
	is := is.New(t)

	fast := inmemory.New(context.Background(), model)
	durable := &storetest.StoringMock[*entities.Record]{}
	s := New[*entities.Record](model, fast, durable)

	id := entities.NewIdentifier()
	d := entities.NewRecord(id, "Device", entities.F("name", "sensor"))

	s.Set(context.Background(), []*entities.Record{d}, store.WriteContext{})
	is.Equal(len(durable.SetCalls()), 1)

	identical := entities.NewRecord(id, "Device", entities.F("name", "sensor"))
	s.Set(context.Background(), []*entities.Record{identical}, store.WriteContext{})
	is.Equal(len(durable.SetCalls()), 1) // identical value, durable write skipped

	changed := entities.NewRecord(id, "Device", entities.F("name", "renamed"))
	s.Set(context.Background(), []*entities.Record{changed}, store.WriteContext{})
	is.Equal(len(durable.SetCalls()), 2)
}

func TestMergeByIdentifierAlwaysWritesMergedVersion(t *testing.T) {
	is := is.New(t)

	fast := inmemory.New(context.Background(), model)
	durable := &storetest.StoringMock[*entities.Record]{}
	s := New[*entities.Record](model, fast, durable)

	id := entities.NewIdentifier()

	s.Set(context.Background(), []*entities.Record{
		entities.NewRecord(id, "Device", entities.F("name", "sensor"), entities.Placeholder("description")),
	}, store.WriteContext{})

	s.Set(context.Background(), []*entities.Record{
		entities.NewRecord(id, "Device", entities.Placeholder("name"), entities.F("description", "by the lake")),
	}, store.WriteContext{Merge: store.MergeByIdentifier})

	writes := durable.SetCalls()
	is.Equal(len(writes), 2)

	merged := writes[1][0]
	name, ok := merged.Field("name")
	is.True(ok) // merge keeps the requested name over the placeholder
	is.Equal(name, "sensor")

	description, ok := merged.Field("description")
	is.True(ok)
	is.Equal(description, "by the lake")
}

func TestGetFallsBackToDurableAndPopulatesFast(t *testing.T) {
	is := is.New(t)

	d := entities.NewRecord(entities.NewIdentifier(), "Device", entities.F("name", "sensor"))

	fast := inmemory.New(context.Background(), model)
	durable := &storetest.StoringMock[*entities.Record]{
		GetFunc: func(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[*entities.Record], error) {
			return store.SingleResult(d), nil
		},
	}
	s := New[*entities.Record](model, fast, durable)

	result, err := s.Get(context.Background(), d.Identifier(), store.ReadContext{})
	is.NoErr(err)
	is.True(!result.None())
	is.Equal(len(durable.GetCalls()), 1)

	// second read is served from the fast tier
	result, err = s.Get(context.Background(), d.Identifier(), store.ReadContext{})
	is.NoErr(err)
	is.True(!result.None())
	is.Equal(len(durable.GetCalls()), 1)
}

func TestDoNotPersistSkipsDurableTier(t *testing.T) {
	is := is.New(t)

	fast := inmemory.New(context.Background(), model)
	durable := &storetest.StoringMock[*entities.Record]{}
	s := New[*entities.Record](model, fast, durable)

	d := entities.NewRecord(entities.NewIdentifier(), "Device")
	s.Set(context.Background(), []*entities.Record{d}, store.WriteContext{Persistence: store.DoNotPersist})

	is.Equal(len(durable.SetCalls()), 0)

	result, err := fast.Get(context.Background(), d.Identifier(), store.ReadContext{})
	is.NoErr(err)
	is.True(!result.None())
}

func TestEmptyIdentifierSetSearchTouchesNoTier(t *testing.T) {
	is := is.New(t)

	fast := &storetest.StoringMock[*entities.Record]{}
	durable := &storetest.StoringMock[*entities.Record]{}
	s := New[*entities.Record](model, fast, durable)

	q := query.Where[*entities.Record](query.MemberOf())

	result, err := s.Search(context.Background(), q, store.ReadContext{})
	is.NoErr(err)
	is.True(result.None())

	is.Equal(len(fast.SearchCalls()), 0) // no underlying tier call
	is.Equal(len(durable.SearchCalls()), 0)
}
