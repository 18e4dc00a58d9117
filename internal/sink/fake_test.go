package sink

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/quote-graph/internal/model"
)

// fakeCapability records every call made on it.
type fakeCapability struct {
	mu sync.Mutex

	readyErr     error
	createErr    error
	attachErr    error
	configureErr error
	updateErr    error

	created  []*fakeTable
	attached []uuid.UUID
	views    []ViewConfig
	schemas  []model.Schema
}

func (f *fakeCapability) Ready(ctx context.Context) error {
	return f.readyErr
}

func (f *fakeCapability) CreateTable(ctx context.Context, schema model.Schema) (Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	t := &fakeTable{id: uuid.New(), owner: f}
	f.created = append(f.created, t)
	f.schemas = append(f.schemas, schema)
	return t, nil
}

func (f *fakeCapability) Attach(ctx context.Context, t Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, t.ID())
	return nil
}

func (f *fakeCapability) ConfigureView(ctx context.Context, cfg ViewConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.configureErr != nil {
		return f.configureErr
	}
	f.views = append(f.views, cfg)
	return nil
}

func (f *fakeCapability) table() *fakeTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

type fakeTable struct {
	id    uuid.UUID
	owner *fakeCapability

	mu      sync.Mutex
	updates []model.Dataset
	closed  int
}

func (t *fakeTable) ID() uuid.UUID {
	return t.id
}

func (t *fakeTable) Update(ctx context.Context, ds model.Dataset) error {
	t.owner.mu.Lock()
	err := t.owner.updateErr
	t.owner.mu.Unlock()
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.updates = append(t.updates, ds)
	return nil
}

func (t *fakeTable) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func (t *fakeTable) updateCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.updates)
}

func (t *fakeTable) closeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
