package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/matryer/is"
)

var model = entities.NewRecordModel("Device")

func device(name string) *entities.Record {
	return entities.NewRecord(entities.NewLocalIdentifier(name), "Device", entities.F("name", name))
}

func TestSetAndGet(t *testing.T) {
	is := is.New(t)
	s := New(context.Background(), model)

	d := device("sensor-1")

	outcome := s.Set(context.Background(), []*entities.Record{d}, store.WriteContext{})
	is.True(outcome.IsCompleted())

	result, err := s.Get(context.Background(), d.Identifier(), store.ReadContext{})
	is.NoErr(err)

	found, ok := result.One()
	is.True(ok)
	is.True(found.Identifier().Equals(d.Identifier()))
}

func TestGetByRemoteComponentAfterSync(t *testing.T) {
	is := is.New(t)
	s := New(context.Background(), model)

	local := entities.NewLocalIdentifier("local-1")
	s.Set(context.Background(), []*entities.Record{entities.NewRecord(local, "Device")}, store.WriteContext{})

	// confirmed version stored under the remote key replaces the
	// local only entry
	synced := local.WithRemote("remote-1")
	s.Set(context.Background(), []*entities.Record{entities.NewRecord(synced, "Device")}, store.WriteContext{})
	is.Equal(s.Len(), 1)

	result, err := s.Get(context.Background(), entities.NewSyncedIdentifier("remote-1"), store.ReadContext{})
	is.NoErr(err)
	is.True(!result.None())
}

func TestMergeByIdentifierCombinesVersions(t *testing.T) {
	is := is.New(t)
	s := New(context.Background(), model)

	id := entities.NewLocalIdentifier("sensor-1")
	s.Set(context.Background(), []*entities.Record{
		entities.NewRecord(id, "Device", entities.F("name", "kitchen sensor")),
	}, store.WriteContext{})

	s.Set(context.Background(), []*entities.Record{
		entities.NewRecord(id, "Device", entities.Placeholder("name"), entities.F("battery", 80)),
	}, store.WriteContext{Merge: store.MergeByIdentifier})

	result, err := s.Get(context.Background(), id, store.ReadContext{})
	is.NoErr(err)

	merged, ok := result.One()
	is.True(ok)

	name, _ := merged.Field("name")
	is.Equal(name, "kitchen sensor") // requested value survives the placeholder

	battery, _ := merged.Field("battery")
	is.Equal(battery, 80)
}

func TestSearchFiltersAndSorts(t *testing.T) {
	is := is.New(t)
	s := New(context.Background(), model)

	s.Set(context.Background(), []*entities.Record{device("b"), device("a"), device("c")}, store.WriteContext{})

	q := query.Where[*entities.Record](
		query.Not(query.Eq(query.Field("name"), query.Value("c"))),
	).OrderBy(query.Ascending("name"))

	result, err := s.Search(context.Background(), q, store.ReadContext{})
	is.NoErr(err)
	is.Equal(result.Count(), 2)

	first, _ := result.One()
	name, _ := first.Field("name")
	is.Equal(name, "a")
}

func TestRemoveAll(t *testing.T) {
	is := is.New(t)
	s := New(context.Background(), model)

	s.Set(context.Background(), []*entities.Record{device("a"), device("b")}, store.WriteContext{})

	outcome := s.RemoveAll(context.Background(), query.All[*entities.Record](), store.WriteContext{})
	is.True(outcome.IsCompleted())
	is.Equal(outcome.Result().Count(), 2)
	is.Equal(s.Len(), 0)
}

func TestLowMemorySignalPurges(t *testing.T) {
	is := is.New(t)

	signal := make(chan struct{})
	s := New(context.Background(), model, OnLowMemory[*entities.Record](signal))

	s.Set(context.Background(), []*entities.Record{device("a")}, store.WriteContext{})

	signal <- struct{}{}

	deadline := time.Now().Add(time.Second)
	for s.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	is.Equal(s.Len(), 0)
}

func TestLowMemorySignalCanBeIgnored(t *testing.T) {
	is := is.New(t)

	signal := make(chan struct{})
	s := New(context.Background(), model,
		OnLowMemory[*entities.Record](signal),
		WithPressurePolicy[*entities.Record](IgnorePressure),
	)

	s.Set(context.Background(), []*entities.Record{device("a")}, store.WriteContext{})

	signal <- struct{}{}
	close(signal)

	is.Equal(s.Len(), 1)
}
