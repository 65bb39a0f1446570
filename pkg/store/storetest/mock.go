// Package storetest provides a scripted Storing mock used by the
// tier and resolver tests.
package storetest

import (
	"context"
	"sync"

	"github.com/diwise/entity-store/pkg/entities"
	"github.com/diwise/entity-store/pkg/query"
	"github.com/diwise/entity-store/pkg/store"
)

// StoringMock implements store.Storing by delegating to function
// fields, recording every call it receives.
type StoringMock[E any] struct {
	GetFunc       func(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error)
	SetFunc       func(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E]
	RemoveFunc    func(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E]
	RemoveAllFunc func(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E]
	SearchFunc    func(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error)

	mu    sync.Mutex
	calls struct {
		Get       []entities.Identifier
		Set       [][]E
		Remove    [][]entities.Identifier
		RemoveAll []query.Query[E]
		Search    []query.Query[E]
	}
}

func (m *StoringMock[E]) Get(ctx context.Context, id entities.Identifier, rc store.ReadContext) (*store.Result[E], error) {
	m.mu.Lock()
	m.calls.Get = append(m.calls.Get, id)
	m.mu.Unlock()

	if m.GetFunc == nil {
		return store.EmptyResult[E](), nil
	}
	return m.GetFunc(ctx, id, rc)
}

func (m *StoringMock[E]) Set(ctx context.Context, items []E, wc store.WriteContext) store.Outcome[E] {
	m.mu.Lock()
	m.calls.Set = append(m.calls.Set, items)
	m.mu.Unlock()

	if m.SetFunc == nil {
		return store.Completed(store.MultiResult(items))
	}
	return m.SetFunc(ctx, items, wc)
}

func (m *StoringMock[E]) Remove(ctx context.Context, ids []entities.Identifier, wc store.WriteContext) store.Outcome[E] {
	m.mu.Lock()
	m.calls.Remove = append(m.calls.Remove, ids)
	m.mu.Unlock()

	if m.RemoveFunc == nil {
		return store.Completed(store.EmptyResult[E]())
	}
	return m.RemoveFunc(ctx, ids, wc)
}

func (m *StoringMock[E]) RemoveAll(ctx context.Context, q query.Query[E], wc store.WriteContext) store.Outcome[E] {
	m.mu.Lock()
	m.calls.RemoveAll = append(m.calls.RemoveAll, q)
	m.mu.Unlock()

	if m.RemoveAllFunc == nil {
		return store.Completed(store.EmptyResult[E]())
	}
	return m.RemoveAllFunc(ctx, q, wc)
}

func (m *StoringMock[E]) Search(ctx context.Context, q query.Query[E], rc store.ReadContext) (*store.Result[E], error) {
	m.mu.Lock()
	m.calls.Search = append(m.calls.Search, q)
	m.mu.Unlock()

	if m.SearchFunc == nil {
		return store.EmptyResult[E](), nil
	}
	return m.SearchFunc(ctx, q, rc)
}

func (m *StoringMock[E]) GetCalls() []entities.Identifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Identifier{}, m.calls.Get...)
}

func (m *StoringMock[E]) SetCalls() [][]E {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]E{}, m.calls.Set...)
}

func (m *StoringMock[E]) RemoveCalls() [][]entities.Identifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]entities.Identifier{}, m.calls.Remove...)
}

func (m *StoringMock[E]) RemoveAllCalls() []query.Query[E] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query.Query[E]{}, m.calls.RemoveAll...)
}

func (m *StoringMock[E]) SearchCalls() []query.Query[E] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query.Query[E]{}, m.calls.Search...)
}
