// Package memory is an in-process sink engine. Tables keep one row per
// (stock, timestamp), ordered by stock then time; Update upserts.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"github.com/rickgao/quote-graph/internal/model"
	"github.com/rickgao/quote-graph/internal/sink"
)

// Errors
var (
	ErrUnavailable = errors.New("memory engine unavailable")
	ErrClosed      = errors.New("table closed")
)

// Row is one stored table row.
type Row struct {
	Stock       string    `json:"stock"`
	TopAskPrice float64   `json:"top_ask_price"`
	TopBidPrice float64   `json:"top_bid_price"`
	Timestamp   time.Time `json:"timestamp"`
}

func rowLess(a, b Row) bool {
	if a.Stock != b.Stock {
		return a.Stock < b.Stock
	}
	return a.Timestamp.Before(b.Timestamp)
}

// Engine implements sink.Capability in memory.
type Engine struct {
	mu          sync.RWMutex
	unavailable error
	tables      map[uuid.UUID]*Table
	attached    *Table
	view        *sink.ViewConfig
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{tables: make(map[uuid.UUID]*Table)}
}

// SetUnavailable makes Ready fail with err wrapped in ErrUnavailable.
// A nil err makes the engine available again.
func (e *Engine) SetUnavailable(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unavailable = err
}

// Ready implements sink.Engine.
func (e *Engine) Ready(ctx context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.unavailable != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, e.unavailable)
	}
	return nil
}

// CreateTable implements sink.Engine.
func (e *Engine) CreateTable(ctx context.Context, schema model.Schema) (sink.Table, error) {
	if len(schema) == 0 {
		return nil, errors.New("empty schema")
	}
	t := &Table{
		id:     uuid.New(),
		schema: schema,
		rows:   btree.NewBTreeG(rowLess),
		engine: e,
	}

	e.mu.Lock()
	e.tables[t.id] = t
	e.mu.Unlock()
	return t, nil
}

// Attach implements sink.Viewer.
func (e *Engine) Attach(ctx context.Context, t sink.Table) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tbl, ok := e.tables[t.ID()]
	if !ok {
		return fmt.Errorf("table %s not created by this engine", t.ID())
	}
	e.attached = tbl
	return nil
}

// ConfigureView implements sink.Viewer.
func (e *Engine) ConfigureView(ctx context.Context, cfg sink.ViewConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = &cfg
	return nil
}

// Attached returns the table currently attached to the viewer, or nil.
func (e *Engine) Attached() *Table {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attached
}

// View returns the last applied view config.
func (e *Engine) View() (sink.ViewConfig, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.view == nil {
		return sink.ViewConfig{}, false
	}
	return *e.view, true
}

func (e *Engine) drop(t *Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, t.id)
	if e.attached == t {
		e.attached = nil
	}
}

// Table is an in-memory sink.Table.
type Table struct {
	id     uuid.UUID
	schema model.Schema
	engine *Engine

	mu      sync.RWMutex
	rows    *btree.BTreeG[Row]
	updates int
	closed  bool
}

// ID implements sink.Table.
func (t *Table) ID() uuid.UUID {
	return t.id
}

// Schema returns the schema the table was created with.
func (t *Table) Schema() model.Schema {
	return t.schema
}

// Update upserts every row of ds.
func (t *Table) Update(ctx context.Context, ds model.Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	for i := 0; i < ds.Len(); i++ {
		t.rows.Set(Row{
			Stock:       ds.Stock[i],
			TopAskPrice: ds.TopAskPrice[i],
			TopBidPrice: ds.TopBidPrice[i],
			Timestamp:   ds.Timestamp[i],
		})
	}
	t.updates++
	return nil
}

// Close implements sink.Table.
func (t *Table) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.engine.drop(t)
	return nil
}

// Rows returns a copy of all rows ordered by stock, then timestamp.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Items()
}

// Len returns the number of rows.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Len()
}

// Updates returns how many Update calls were applied.
func (t *Table) Updates() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.updates
}

// Closed reports whether Close was called.
func (t *Table) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
