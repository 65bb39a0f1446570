package entitygraph

import (
	"context"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

// Resolution is the handle for a running resolution over a root
// snapshot source. It serves two views of the same recomputation
// loop: a once value, completed from the first resolved snapshot, and
// a continuous sequence of graphs, one per emitted snapshot. The
// continuous sequence never completes on its own; it ends only when
// the caller cancels the context.
type Resolution struct {
	first    chan struct{}
	firstG   *Graph
	firstErr error
	updates  chan *Graph
}

// Resolve starts a resolution loop over the given snapshot source.
// Every snapshot received is resolved into a fresh graph.
func (c *Controller) Resolve(ctx context.Context, snapshots <-chan []Node) *Resolution {
	r := &Resolution{
		first:   make(chan struct{}),
		updates: make(chan *Graph),
	}

	go r.run(ctx, c, snapshots)

	return r
}

func (r *Resolution) run(ctx context.Context, c *Controller, snapshots <-chan []Node) {
	defer close(r.updates)

	for {
		select {
		case <-ctx.Done():
			return

		case roots, ok := <-snapshots:
			if !ok {
				// a closed root source does not end the continuous
				// sequence, only cancellation does
				<-ctx.Done()
				return
			}

			g, err := c.ResolveOnce(ctx, roots)

			select {
			case <-r.first:
			default:
				r.firstG, r.firstErr = g, err
				close(r.first)
			}

			if err != nil {
				logging.GetFromContext(ctx).Error("relationship resolution failed", "err", err.Error())
				continue
			}

			select {
			case r.updates <- g:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Once returns the graph resolved from the first root snapshot. The
// first snapshot satisfies both the once value and the continuous
// sequence.
func (r *Resolution) Once(ctx context.Context) (*Graph, error) {
	select {
	case <-r.first:
		return r.firstG, r.firstErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Continuous returns the live sequence of resolved graphs. The
// channel is closed when the resolution's context is cancelled.
func (r *Resolution) Continuous() <-chan *Graph {
	return r.updates
}
