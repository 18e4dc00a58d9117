package timescale

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/quote-graph/internal/model"
	"github.com/rickgao/quote-graph/internal/sink"
)

// ErrClosed is returned when updating a closed table.
var ErrClosed = errors.New("timescale: table closed")

// ViewsTable holds one view configuration per table.
const ViewsTable = "quote_views"

// DB is the subset of *pgxpool.Pool the engine uses.
type DB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Engine creates tables in a single TimescaleDB table.
type Engine struct {
	db     DB
	table  string
	logger *slog.Logger

	mu       sync.Mutex
	tables   map[uuid.UUID]*Table
	attached *Table
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine writing rows to the named table.
func New(db DB, table string, opts ...Option) *Engine {
	e := &Engine{
		db:     db,
		table:  table,
		logger: slog.Default(),
		tables: make(map[uuid.UUID]*Table),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ready pings the database.
func (e *Engine) Ready(ctx context.Context) error {
	if err := e.db.Ping(ctx); err != nil {
		return fmt.Errorf("ping timescale: %w", err)
	}
	return nil
}

// CreateTable ensures the backing tables exist and returns a new handle.
func (e *Engine) CreateTable(ctx context.Context, schema model.Schema) (sink.Table, error) {
	ddl, err := createTableSQL(e.table, schema)
	if err != nil {
		return nil, err
	}
	if _, err := e.db.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create table %s: %w", e.table, err)
	}
	if _, err := e.db.Exec(ctx, createViewsSQL); err != nil {
		return nil, fmt.Errorf("create table %s: %w", ViewsTable, err)
	}

	t := &Table{
		id:        uuid.New(),
		engine:    e,
		upsertSQL: upsertSQL(e.table),
	}
	e.mu.Lock()
	e.tables[t.id] = t
	e.mu.Unlock()
	e.logger.Info("timescale table created", "table", e.table, "table_id", t.id)
	return t, nil
}

// Attach binds a table created by this engine as the viewed table.
func (e *Engine) Attach(ctx context.Context, st sink.Table) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tables[st.ID()]
	if !ok {
		return fmt.Errorf("attach: table %s not created by this engine", st.ID())
	}
	e.attached = t
	return nil
}

// ConfigureView stores the view attributes for the attached table.
func (e *Engine) ConfigureView(ctx context.Context, cfg sink.ViewConfig) error {
	e.mu.Lock()
	t := e.attached
	e.mu.Unlock()
	if t == nil {
		return errors.New("configure view: no table attached")
	}

	attrs, err := cfg.Attributes()
	if err != nil {
		return fmt.Errorf("configure view: %w", err)
	}
	doc, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("configure view: %w", err)
	}

	if _, err := e.db.Exec(ctx, upsertViewSQL, t.id, doc, time.Now().UTC()); err != nil {
		return fmt.Errorf("configure view %s: %w", t.id, err)
	}
	return nil
}

func (e *Engine) drop(t *Table) {
	e.mu.Lock()
	delete(e.tables, t.id)
	if e.attached == t {
		e.attached = nil
	}
	e.mu.Unlock()
}

// Table is a handle scoped to one table_id.
type Table struct {
	id        uuid.UUID
	engine    *Engine
	upsertSQL string

	mu     sync.Mutex
	closed bool
}

// ID returns the table handle ID.
func (t *Table) ID() uuid.UUID {
	return t.id
}

// Update upserts every row of ds in a single batch.
func (t *Table) Update(ctx context.Context, ds model.Dataset) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if err := ds.Validate(); err != nil {
		return err
	}
	n := ds.Len()
	if n == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		batch.Queue(t.upsertSQL, t.id, ds.Stock[i], ds.TopAskPrice[i], ds.TopBidPrice[i], ds.Timestamp[i])
	}

	results := t.engine.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert row %d (%s): %w", i, ds.Stock[i], err)
		}
	}
	return nil
}

// Close marks the table closed. Stored rows are kept.
func (t *Table) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.engine.drop(t)
	return nil
}

var columnTypes = map[model.ColumnType]string{
	model.TypeString: "TEXT",
	model.TypeFloat:  "DOUBLE PRECISION",
	model.TypeDate:   "TIMESTAMPTZ",
}

// createTableSQL derives the DDL for schema. The schema must carry the
// stock and timestamp key columns.
func createTableSQL(table string, schema model.Schema) (string, error) {
	types := schema.Map()
	if types[model.ColStock] != string(model.TypeString) {
		return "", fmt.Errorf("schema: %s must be a %s column", model.ColStock, model.TypeString)
	}
	if types[model.ColTimestamp] != string(model.TypeDate) {
		return "", fmt.Errorf("schema: %s must be a %s column", model.ColTimestamp, model.TypeDate)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pgx.Identifier{table}.Sanitize())
	b.WriteString("\ttable_id UUID NOT NULL,\n")
	for _, c := range schema {
		sqlType, ok := columnTypes[c.Type]
		if !ok {
			return "", fmt.Errorf("schema: column %s has unsupported type %q", c.Name, c.Type)
		}
		fmt.Fprintf(&b, "\t%s %s NOT NULL,\n", pgx.Identifier{c.Name}.Sanitize(), sqlType)
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (table_id, %s, %s)\n)",
		pgx.Identifier{model.ColStock}.Sanitize(),
		pgx.Identifier{model.ColTimestamp}.Sanitize(),
	)
	return b.String(), nil
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (table_id, "stock", "top_ask_price", "top_bid_price", "timestamp")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (table_id, "stock", "timestamp") DO UPDATE
		SET "top_ask_price" = EXCLUDED."top_ask_price", "top_bid_price" = EXCLUDED."top_bid_price"
	`, pgx.Identifier{table}.Sanitize())
}

const createViewsSQL = `
	CREATE TABLE IF NOT EXISTS quote_views (
		table_id UUID PRIMARY KEY,
		config JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`

const upsertViewSQL = `
	INSERT INTO quote_views (table_id, config, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (table_id) DO UPDATE
	SET config = EXCLUDED.config, updated_at = EXCLUDED.updated_at
`
