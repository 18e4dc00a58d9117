package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/quote-graph/internal/model"
)

// ErrUnknownTable is returned when a fanout call names a table it did not create.
var ErrUnknownTable = errors.New("unknown table")

// Fanout drives several capabilities as one. Every call goes to all
// members concurrently and fails if any member fails.
type Fanout struct {
	members []Capability

	mu     sync.Mutex
	tables map[uuid.UUID][]Table // fanout table ID -> member tables, by member index
}

// NewFanout combines capabilities. Nil members are skipped.
func NewFanout(caps ...Capability) *Fanout {
	f := &Fanout{tables: make(map[uuid.UUID][]Table)}
	for _, c := range caps {
		if c != nil {
			f.members = append(f.members, c)
		}
	}
	return f
}

// Len returns the number of members.
func (f *Fanout) Len() int {
	return len(f.members)
}

// Ready succeeds only if every member is ready.
func (f *Fanout) Ready(ctx context.Context) error {
	if len(f.members) == 0 {
		return errors.New("fanout has no members")
	}
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		g.Go(func() error {
			if err := m.Ready(ctx); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CreateTable creates one table per member. On failure the tables that
// were created are closed.
func (f *Fanout) CreateTable(ctx context.Context, schema model.Schema) (Table, error) {
	children := make([]Table, len(f.members))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		g.Go(func() error {
			t, err := m.CreateTable(gctx, schema)
			if err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			children[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range children {
			if t != nil {
				_ = t.Close(ctx)
			}
		}
		return nil, err
	}

	t := &fanoutTable{id: uuid.New(), owner: f, children: children}
	f.mu.Lock()
	f.tables[t.id] = children
	f.mu.Unlock()
	return t, nil
}

// Attach attaches each member's own table to that member.
func (f *Fanout) Attach(ctx context.Context, t Table) error {
	f.mu.Lock()
	children, ok := f.tables[t.ID()]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, t.ID())
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		g.Go(func() error {
			if err := m.Attach(ctx, children[i]); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// ConfigureView applies cfg on every member.
func (f *Fanout) ConfigureView(ctx context.Context, cfg ViewConfig) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, m := range f.members {
		g.Go(func() error {
			if err := m.ConfigureView(ctx, cfg); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (f *Fanout) forget(id uuid.UUID) {
	f.mu.Lock()
	delete(f.tables, id)
	f.mu.Unlock()
}

type fanoutTable struct {
	id       uuid.UUID
	owner    *Fanout
	children []Table
}

func (t *fanoutTable) ID() uuid.UUID {
	return t.id
}

// Update pushes ds to every member table. Each member receives the same
// dataset; members must not modify it.
func (t *fanoutTable) Update(ctx context.Context, ds model.Dataset) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, c := range t.children {
		g.Go(func() error {
			if err := c.Update(ctx, ds); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every member table, even if some fail.
func (t *fanoutTable) Close(ctx context.Context) error {
	defer t.owner.forget(t.id)

	var g errgroup.Group
	for i, c := range t.children {
		g.Go(func() error {
			if err := c.Close(ctx); err != nil {
				return fmt.Errorf("member %d: %w", i, err)
			}
			return nil
		})
	}
	return g.Wait()
}
