// Package stack composes store tiers from configuration. Each
// configured entity type gets its own stack: an in-memory tier,
// optionally bounded by an LRU, optionally backed by a durable tier,
// optionally mirrored into a recovery copy, and optionally routed
// against a remote endpoint.
package stack

import (
	"context"
	"fmt"

	"github.com/diwise/entity-store/internal/pkg/infrastructure/storage/postgres"
	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/entity-store/pkg/store/cached"
	"github.com/diwise/entity-store/pkg/store/inmemory"
	"github.com/diwise/entity-store/pkg/store/lru"
	"github.com/diwise/entity-store/pkg/store/recoverable"
	"github.com/diwise/entity-store/pkg/store/remote"
	"github.com/diwise/entity-store/pkg/store/routed"
	"github.com/diwise/entity-store/pkg/transport"
)

// New builds the store stack described by the configuration and
// returns it together with the record model it operates on.
func New(ctx context.Context, cfg StoreConfig, pool postgres.Pool) (store.Storing[*entities.Record], entities.Model[*entities.Record], error) {
	if cfg.EntityType == "" {
		return nil, nil, fmt.Errorf("store configuration is missing an entity type")
	}

	paths := make([]entities.PathSpec, 0, len(cfg.Paths))
	for _, p := range cfg.Paths {
		paths = append(paths, entities.PathSpec{Name: p.Name, TargetType: p.TargetType})
	}

	model := entities.NewRecordModel(cfg.EntityType, paths...)

	var local store.Storing[*entities.Record] = inmemory.New(ctx, model)

	if cfg.LRU.Capacity > 0 {
		bounded, err := lru.New(model, local, cfg.LRU.Capacity)
		if err != nil {
			return nil, nil, err
		}
		local = bounded
	}

	if cfg.Durable.Enabled {
		if pool == nil {
			return nil, nil, fmt.Errorf("durable tier enabled for %s but no database configured", cfg.EntityType)
		}
		local = cached.New(model, local, postgres.New(model, pool))
	}

	if cfg.Recovery.Enabled {
		if pool == nil {
			return nil, nil, fmt.Errorf("recovery tier enabled for %s but no database configured", cfg.EntityType)
		}

		mirrored, err := recoverable.New(ctx, model, local, postgres.New(model, pool))
		if err != nil {
			return nil, nil, err
		}
		local = mirrored
	}

	if cfg.Remote.Endpoint == "" {
		return local, model, nil
	}

	wire := transport.New(cfg.Remote.Endpoint)
	if cfg.Remote.Tenant != "" {
		wire = transport.New(cfg.Remote.Endpoint, transport.Tenant(cfg.Remote.Tenant))
	}

	return routed.New(model, local, remote.New(model, wire)), model, nil
}
