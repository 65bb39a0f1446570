package lru

import (
	"context"
	"fmt"
	"testing"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/entity-store/pkg/store/inmemory"
	"github.com/diwise/entity-store/pkg/store/storetest"
	"github.com/matryer/is"
)

var model = entities.NewRecordModel("Device")

func numbered(n int) *entities.Record {
	return entities.NewRecord(entities.NewLocalIdentifier(fmt.Sprintf("%d", n)), "Device")
}

func TestCapacityMustBePositive(t *testing.T) {
	is := is.New(t)

	_, err := New(model, &storetest.StoringMock[*entities.Record]{}, 0)
	is.True(err != nil)
}

func TestEvictsLeastRecentlyUsedInOrder(t *testing.T) {
	is := is.New(t)

	inner := &storetest.StoringMock[*entities.Record]{}
	s, err := New[*entities.Record](model, inner, 5)
	is.NoErr(err)

	for n := 0; n < 10; n++ {
		outcome := s.Set(context.Background(), []*entities.Record{numbered(n)}, store.WriteContext{})
		is.True(outcome.IsCompleted())
	}

	removals := inner.RemoveCalls()
	is.Equal(len(removals), 5) // exactly 5 evictions

	for idx, removed := range removals {
		is.Equal(len(removed), 1)
		is.Equal(removed[0].Key(), fmt.Sprintf("%d", idx)) // evicted in insertion order 0..4
	}

	is.Equal(s.Resident(), 5)
}

func TestReadPromotesToMostRecentlyUsed(t *testing.T) {
	is := is.New(t)

	inner := inmemory.New(context.Background(), model)
	s, err := New[*entities.Record](model, inner, 5)
	is.NoErr(err)

	records := make([]*entities.Record, 0, 11)
	for n := 0; n <= 10; n++ {
		records = append(records, numbered(n))
	}

	for n := 0; n < 10; n++ {
		s.Set(context.Background(), []*entities.Record{records[n]}, store.WriteContext{})
	}

	// promote 5, the oldest resident key
	result, err := s.Get(context.Background(), records[5].Identifier(), store.ReadContext{})
	is.NoErr(err)
	is.True(!result.None())

	s.Set(context.Background(), []*entities.Record{records[10]}, store.WriteContext{})

	// the promotion saved 5, so 6 went out instead
	result, err = s.Get(context.Background(), records[5].Identifier(), store.ReadContext{})
	is.NoErr(err)
	is.True(!result.None())

	result, err = s.Get(context.Background(), records[6].Identifier(), store.ReadContext{})
	is.NoErr(err)
	is.True(result.None())
}

func TestResidentSetAfterOverflow(t *testing.T) {
	is := is.New(t)

	inner := inmemory.New(context.Background(), model)
	s, err := New[*entities.Record](model, inner, 5)
	is.NoErr(err)

	records := make([]*entities.Record, 0, 10)
	for n := 0; n < 10; n++ {
		records = append(records, numbered(n))
	}

	s.Set(context.Background(), records, store.WriteContext{})

	for n := 0; n < 5; n++ {
		result, err := s.Get(context.Background(), records[n].Identifier(), store.ReadContext{})
		is.NoErr(err)
		is.True(result.None()) // 0..4 were evicted
	}

	for n := 5; n < 10; n++ {
		result, err := s.Get(context.Background(), records[n].Identifier(), store.ReadContext{})
		is.NoErr(err)
		is.True(!result.None()) // 5..9 stayed resident
	}
}

func TestRemoveForgetsRecency(t *testing.T) {
	is := is.New(t)

	inner := inmemory.New(context.Background(), model)
	s, err := New[*entities.Record](model, inner, 5)
	is.NoErr(err)

	r := numbered(0)
	s.Set(context.Background(), []*entities.Record{r}, store.WriteContext{})
	is.Equal(s.Resident(), 1)

	s.Remove(context.Background(), []entities.Identifier{r.Identifier()}, store.WriteContext{})
	is.Equal(s.Resident(), 0)
}
