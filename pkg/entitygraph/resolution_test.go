package entitygraph

import (
	"context"
	"testing"
	"time"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/matryer/is"
)

func TestFirstSnapshotSatisfiesOnceAndContinuous(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	functions := seeded(ctx, functionModel, entities.NewRecord(id("f-1"), "Function"))

	c := NewController(WithSource("Function", StoreSource(functionModel, functions)))

	snapshots := make(chan []Node)
	r := c.Resolve(ctx, snapshots)

	d1 := entities.NewRecord(id("d-1"), "Device", entities.R("controls", id("f-1")))
	snapshots <- []Node{Wrap(deviceModel, d1)}

	once, err := r.Once(ctx)
	is.NoErr(err)
	is.Equal(once.Len(), 2)

	first := <-r.Continuous()
	is.Equal(first.Len(), 2) // the same event feeds both channels
}

func TestContinuousEmitsOneGraphPerSnapshot(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewController()

	snapshots := make(chan []Node)
	r := c.Resolve(ctx, snapshots)

	snapshots <- []Node{Wrap(deviceModel, entities.NewRecord(id("d-1"), "Device"))}
	first := <-r.Continuous()
	is.Equal(first.Len(), 1)

	snapshots <- []Node{
		Wrap(deviceModel, entities.NewRecord(id("d-1"), "Device")),
		Wrap(deviceModel, entities.NewRecord(id("d-2"), "Device")),
	}
	second := <-r.Continuous()
	is.Equal(second.Len(), 2)
}

func TestContinuousEndsOnlyOnCancellation(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())

	c := NewController()

	snapshots := make(chan []Node)
	r := c.Resolve(ctx, snapshots)

	snapshots <- []Node{Wrap(deviceModel, entities.NewRecord(id("d-1"), "Device"))}
	<-r.Continuous()

	// closing the root source must not end the sequence
	close(snapshots)

	select {
	case <-r.Continuous():
		t.Fatal("continuous sequence ended without cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()

	_, open := <-r.Continuous()
	is.True(!open)
}

func TestOnceHonoursCallerCancellation(t *testing.T) {
	is := is.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewController()
	r := c.Resolve(ctx, make(chan []Node))

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waitCancel()

	_, err := r.Once(waitCtx)
	is.True(err != nil) // no snapshot ever arrived
}
