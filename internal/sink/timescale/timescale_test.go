package timescale

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/quote-graph/internal/model"
	"github.com/rickgao/quote-graph/internal/sink"
)

type execCall struct {
	sql  string
	args []any
}

// fakeDB records statements instead of talking to a database.
type fakeDB struct {
	mu       sync.Mutex
	pingErr  error
	execErr  error
	batchErr error
	execs    []execCall
	batches  []*pgx.Batch
}

func (f *fakeDB) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b)
	return &fakeResults{n: b.Len(), err: f.batchErr}
}

type fakeResults struct {
	n      int
	read   int
	err    error
	closed bool
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	if r.read >= r.n {
		return pgconn.CommandTag{}, errors.New("no more results")
	}
	r.read++
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeResults) QueryRow() pgx.Row {
	return nil
}

func (r *fakeResults) Close() error {
	r.closed = true
	return nil
}

func sampleDataset() model.Dataset {
	ts := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	ds := model.NewDataset(2)
	ds.Append("ABC", 10, 9, ts)
	ds.Append("DEF", 20, 19, ts)
	return ds
}

func TestCreateTableSQL_QuoteSchema(t *testing.T) {
	got, err := createTableSQL("quote_aggregates", model.QuoteSchema())
	if err != nil {
		t.Fatalf("createTableSQL failed: %v", err)
	}

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "quote_aggregates"`,
		"table_id UUID NOT NULL",
		`"stock" TEXT NOT NULL`,
		`"top_ask_price" DOUBLE PRECISION NOT NULL`,
		`"top_bid_price" DOUBLE PRECISION NOT NULL`,
		`"timestamp" TIMESTAMPTZ NOT NULL`,
		`PRIMARY KEY (table_id, "stock", "timestamp")`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("DDL missing %q:\n%s", want, got)
		}
	}
}

func TestCreateTableSQL_RejectsSchema(t *testing.T) {
	tests := []struct {
		name   string
		schema model.Schema
	}{
		{"missing stock", model.Schema{{Name: model.ColTimestamp, Type: model.TypeDate}}},
		{"timestamp not date", model.Schema{
			{Name: model.ColStock, Type: model.TypeString},
			{Name: model.ColTimestamp, Type: model.TypeString},
		}},
		{"unknown type", model.Schema{
			{Name: model.ColStock, Type: model.TypeString},
			{Name: model.ColTimestamp, Type: model.TypeDate},
			{Name: "flag", Type: model.ColumnType("boolean")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := createTableSQL("q", tt.schema); err == nil {
				t.Error("createTableSQL() expected error, got nil")
			}
		})
	}
}

func TestEngine_Ready(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("connection refused")}
	e := New(db, "quote_aggregates")

	if err := e.Ready(context.Background()); err == nil {
		t.Error("Ready() expected error, got nil")
	}

	db.pingErr = nil
	if err := e.Ready(context.Background()); err != nil {
		t.Errorf("Ready() unexpected error: %v", err)
	}
}

func TestEngine_CreateTable(t *testing.T) {
	db := &fakeDB{}
	e := New(db, "quote_aggregates")

	tbl, err := e.CreateTable(context.Background(), model.QuoteSchema())
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if len(db.execs) != 2 {
		t.Fatalf("got %d statements, want 2", len(db.execs))
	}
	if !strings.Contains(db.execs[1].sql, "quote_views") {
		t.Errorf("second statement = %q, want quote_views DDL", db.execs[1].sql)
	}

	other, err := e.CreateTable(context.Background(), model.QuoteSchema())
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if tbl.ID() == other.ID() {
		t.Error("tables share an ID")
	}
}

func TestEngine_CreateTableExecError(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	e := New(db, "quote_aggregates")

	if _, err := e.CreateTable(context.Background(), model.QuoteSchema()); err == nil {
		t.Error("CreateTable() expected error, got nil")
	}
}

func TestTable_Update(t *testing.T) {
	db := &fakeDB{}
	e := New(db, "quote_aggregates")
	tbl, err := e.CreateTable(context.Background(), model.QuoteSchema())
	if err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	ds := sampleDataset()
	if err := tbl.Update(context.Background(), ds); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if len(db.batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(db.batches))
	}
	queued := db.batches[0].QueuedQueries
	if len(queued) != 2 {
		t.Fatalf("got %d queued queries, want 2", len(queued))
	}
	if !strings.Contains(queued[0].SQL, "ON CONFLICT (table_id, \"stock\", \"timestamp\") DO UPDATE") {
		t.Errorf("upsert SQL = %q", queued[0].SQL)
	}
	args := queued[1].Arguments
	if args[0] != tbl.ID() || args[1] != "DEF" || args[2] != 20.0 || args[3] != 19.0 {
		t.Errorf("row args = %v", args)
	}
	if !args[4].(time.Time).Equal(ds.Timestamp[1]) {
		t.Errorf("timestamp arg = %v, want %v", args[4], ds.Timestamp[1])
	}
}

func TestTable_UpdateEmpty(t *testing.T) {
	db := &fakeDB{}
	e := New(db, "quote_aggregates")
	tbl, _ := e.CreateTable(context.Background(), model.QuoteSchema())

	if err := tbl.Update(context.Background(), model.Dataset{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(db.batches) != 0 {
		t.Errorf("got %d batches for empty dataset, want 0", len(db.batches))
	}
}

func TestTable_UpdateErrors(t *testing.T) {
	t.Run("batch error", func(t *testing.T) {
		db := &fakeDB{batchErr: errors.New("deadlock detected")}
		e := New(db, "quote_aggregates")
		tbl, _ := e.CreateTable(context.Background(), model.QuoteSchema())

		err := tbl.Update(context.Background(), sampleDataset())
		if err == nil || !strings.Contains(err.Error(), "deadlock detected") {
			t.Errorf("Update() error = %v, want deadlock", err)
		}
	})

	t.Run("ragged dataset", func(t *testing.T) {
		db := &fakeDB{}
		e := New(db, "quote_aggregates")
		tbl, _ := e.CreateTable(context.Background(), model.QuoteSchema())

		ds := sampleDataset()
		ds.TopBidPrice = ds.TopBidPrice[:1]
		if err := tbl.Update(context.Background(), ds); !errors.Is(err, model.ErrRaggedDataset) {
			t.Errorf("Update() error = %v, want ErrRaggedDataset", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		db := &fakeDB{}
		e := New(db, "quote_aggregates")
		tbl, _ := e.CreateTable(context.Background(), model.QuoteSchema())

		if err := tbl.Close(context.Background()); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := tbl.Close(context.Background()); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
		if err := tbl.Update(context.Background(), sampleDataset()); !errors.Is(err, ErrClosed) {
			t.Errorf("Update() error = %v, want ErrClosed", err)
		}
	})
}

func TestEngine_ConfigureView(t *testing.T) {
	db := &fakeDB{}
	e := New(db, "quote_aggregates")
	ctx := context.Background()

	if err := e.ConfigureView(ctx, sink.DefaultViewConfig()); err == nil {
		t.Error("ConfigureView() without attached table expected error, got nil")
	}

	tbl, _ := e.CreateTable(ctx, model.QuoteSchema())
	if err := e.Attach(ctx, tbl); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := e.ConfigureView(ctx, sink.DefaultViewConfig()); err != nil {
		t.Fatalf("ConfigureView failed: %v", err)
	}

	last := db.execs[len(db.execs)-1]
	if !strings.Contains(last.sql, "INSERT INTO quote_views") {
		t.Fatalf("last statement = %q, want quote_views upsert", last.sql)
	}
	if last.args[0] != tbl.ID() {
		t.Errorf("table_id arg = %v, want %v", last.args[0], tbl.ID())
	}
	var attrs map[string]string
	if err := json.Unmarshal(last.args[1].([]byte), &attrs); err != nil {
		t.Fatalf("unmarshal config arg: %v", err)
	}
	if attrs[sink.AttrView] != sink.ViewYLine {
		t.Errorf("view attr = %q, want %q", attrs[sink.AttrView], sink.ViewYLine)
	}
	if attrs[sink.AttrColumnPivots] != `["stock"]` {
		t.Errorf("column-pivots attr = %q", attrs[sink.AttrColumnPivots])
	}

	// Closing the attached table detaches it.
	if err := tbl.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.ConfigureView(ctx, sink.DefaultViewConfig()); err == nil {
		t.Error("ConfigureView() after Close expected error, got nil")
	}
}

func TestEngine_AttachForeignTable(t *testing.T) {
	a := New(&fakeDB{}, "quote_aggregates")
	b := New(&fakeDB{}, "quote_aggregates")

	tbl, _ := b.CreateTable(context.Background(), model.QuoteSchema())
	if err := a.Attach(context.Background(), tbl); err == nil {
		t.Error("Attach() with another engine's table expected error, got nil")
	}
}

func TestEngine_AttachClosedTable(t *testing.T) {
	e := New(&fakeDB{}, "quote_aggregates")
	ctx := context.Background()

	tbl, _ := e.CreateTable(ctx, model.QuoteSchema())
	if err := tbl.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := e.Attach(ctx, tbl); err == nil {
		t.Error("Attach() with a closed table expected error, got nil")
	}
}

func TestEngine_DrivenByAdapter(t *testing.T) {
	db := &fakeDB{}
	a := sink.NewAdapter(New(db, "quote_aggregates"))
	ctx := context.Background()

	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if a.State() != sink.StateReady {
		t.Fatalf("State() = %v, want ready (err %v)", a.State(), a.Err())
	}

	ts := model.TimestampFromString("2024-01-02 15:04:05")
	updates := []model.QuoteUpdate{
		{Stock: "ABC", TopAsk: &model.Price{Price: 10}, TopBid: &model.Price{Price: 8}, Timestamp: ts},
		{Stock: "ABC", TopAsk: &model.Price{Price: 20}, TopBid: &model.Price{Price: 10}, Timestamp: ts},
	}
	if err := a.OnDataArrived(ctx, updates); err != nil {
		t.Fatalf("OnDataArrived failed: %v", err)
	}

	if len(db.batches) != 1 || db.batches[0].Len() != 1 {
		t.Fatalf("want one batch with one row, got %d batches", len(db.batches))
	}
	if got := db.batches[0].QueuedQueries[0].Arguments[2]; got != 15.0 {
		t.Errorf("ask price arg = %v, want 15", got)
	}

	if err := a.Teardown(ctx); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
}

func TestEngine_DatabaseDownDegradesAdapter(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("connection refused")}
	a := sink.NewAdapter(New(db, "quote_aggregates"))

	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize returned error: %v", err)
	}
	if a.State() != sink.StateDegraded {
		t.Errorf("State() = %v, want degraded", a.State())
	}
	if !errors.Is(a.Err(), sink.ErrSinkUnavailable) {
		t.Errorf("Err() = %v, want ErrSinkUnavailable", a.Err())
	}
}
