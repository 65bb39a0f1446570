// Package postgres is the durable tier of a composed store stack.
// Entities are stored as jsonb documents, one row per entity, with
// the dual identifier components broken out into columns so that
// filters can be pushed down to the database.
package postgres

import (
	"context"
	"fmt"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	host     string
	user     string
	password string
	port     string
	dbname   string
	sslmode  string
}

func LoadConfiguration(ctx context.Context) Config {
	return Config{
		host:     env.GetVariableOrDefault(ctx, "POSTGRES_HOST", ""),
		user:     env.GetVariableOrDefault(ctx, "POSTGRES_USER", ""),
		password: env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", ""),
		port:     env.GetVariableOrDefault(ctx, "POSTGRES_PORT", "5432"),
		dbname:   env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", "entities"),
		sslmode:  env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
	}
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	conn, err := pgxpool.New(ctx, cfg.ConnStr())
	if err != nil {
		return nil, err
	}

	err = conn.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Pool is the subset of pgxpool.Pool the store needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func CreateTables(ctx context.Context, p Pool) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS entities (
			entity_type TEXT NOT NULL,
			key TEXT NOT NULL,
			local_id TEXT NOT NULL DEFAULT '',
			remote_id TEXT NOT NULL DEFAULT '',
			body JSONB NOT NULL,
			modified_on TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity_type, key)
		);
		CREATE INDEX IF NOT EXISTS entities_local_idx ON entities (entity_type, local_id);
		CREATE INDEX IF NOT EXISTS entities_remote_idx ON entities (entity_type, remote_id);
	`

	_, err := p.Exec(ctx, ddl)
	return err
}

type Store[E any] struct {
	model entities.Model[E]
	pool  Pool
}

func New[E any](model entities.Model[E], pool Pool) *Store[E] {
	return &Store[E]{model: model, pool: pool}
}

// encode stores each entity as a single element document array so
// that the model's slice codec can be reused as is.
func (s *Store[E]) encode(item E) ([]byte, error) {
	return s.model.EncodeSlice([]E{item})
}

func (s *Store[E]) decode(body []byte) (E, error) {
	items, err := s.model.DecodeSlice(body)
	if err != nil || len(items) == 0 {
		var zero E
		if err == nil {
			err = fmt.Errorf("empty document")
		}
		return zero, err
	}

	return items[0], nil
}

const identityMatch string = "((remote_id <> '' AND remote_id = $2) OR (local_id <> '' AND local_id = $3))"

func (s *Store[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	sql := `SELECT body FROM entities WHERE entity_type=$1 AND ` + identityMatch

	remote, _ := id.Remote()

	rows, err := s.pool.Query(ctx, sql, s.model.EntityType(), remote, id.Local())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return store.EmptyResult[E](), rows.Err()
	}

	var body []byte
	if err := rows.Scan(&body); err != nil {
		return nil, err
	}

	item, err := s.decode(body)
	if err != nil {
		return nil, err
	}

	return store.SingleResult(item), nil
}

func (s *Store[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	stored := make([]E, 0, len(items))

	for _, item := range items {
		item, err := s.upsert(ctx, item, wc)
		if err != nil {
			return store.Failed[E](err)
		}
		stored = append(stored, item)
	}

	return store.Completed(store.MultiResult(stored))
}

func (s *Store[E]) upsert(ctx context.Context, item E, wc store.WriteContext) (E, error) {
	var zero E

	id := s.model.Identity(item)

	if wc.Merge == store.MergeByIdentifier {
		existing, err := s.Get(ctx, id, store.ReadContext{Source: store.SourceLocal})
		if err != nil {
			return zero, err
		}

		if current, ok := existing.One(); ok {
			item = s.model.Merge(current, item)
			id = s.model.Identity(item)
		}
	}

	remote, _ := id.Remote()

	// collapse rows left behind under a stale key after a remote
	// confirmation
	cleanup := `DELETE FROM entities WHERE entity_type=$1 AND ` + identityMatch + ` AND key<>$4`

	if _, err := s.pool.Exec(ctx, cleanup, s.model.EntityType(), remote, id.Local(), id.Key()); err != nil {
		return zero, err
	}

	body, err := s.encode(item)
	if err != nil {
		return zero, err
	}

	sql := `
		INSERT INTO entities (entity_type, key, local_id, remote_id, body)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (entity_type, key) DO UPDATE
		SET local_id=EXCLUDED.local_id, remote_id=EXCLUDED.remote_id,
		    body=EXCLUDED.body, modified_on=CURRENT_TIMESTAMP`

	if _, err := s.pool.Exec(ctx, sql, s.model.EntityType(), id.Key(), id.Local(), remote, body); err != nil {
		return zero, err
	}

	return item, nil
}

func (s *Store[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	removed := []E{}

	for _, id := range ids {
		sql := `DELETE FROM entities WHERE entity_type=$1 AND ` + identityMatch + ` RETURNING body`

		remote, _ := id.Remote()

		items, err := s.collect(ctx, sql, s.model.EntityType(), remote, id.Local())
		if err != nil {
			return store.Failed[E](err)
		}

		removed = append(removed, items...)
	}

	return store.Completed(store.MultiResult(removed))
}

func (s *Store[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	if q.MatchesNothing() {
		return store.Completed(store.EmptyResult[E]())
	}

	clause, args, err := compileFilter(q.Filter(), 1)
	if err != nil {
		return store.Failed[E](err)
	}

	sql := `DELETE FROM entities WHERE entity_type=$1 AND (` + clause + `) RETURNING body`

	removed, err := s.collect(ctx, sql, append([]any{s.model.EntityType()}, args...)...)
	if err != nil {
		return store.Failed[E](err)
	}

	return store.Completed(store.MultiResult(removed))
}

func (s *Store[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	if q.MatchesNothing() {
		return store.EmptyResult[E](), nil
	}

	clause, args, err := compileFilter(q.Filter(), 1)
	if err != nil {
		return nil, err
	}

	sql := `SELECT body FROM entities WHERE entity_type=$1 AND (` + clause + `) ORDER BY modified_on`

	found, err := s.collect(ctx, sql, append([]any{s.model.EntityType()}, args...)...)
	if err != nil {
		return nil, err
	}

	// ordering is applied client side, the sort descriptors support
	// explicit identifier lists that do not translate to SQL
	q.Sort(s.model, found)

	return store.MultiResult(found), nil
}

func (s *Store[E]) collect(ctx context.Context, sql string, args ...any) ([]E, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []E{}

	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}

		item, err := s.decode(body)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, rows.Err()
}
