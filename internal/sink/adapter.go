package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/quote-graph/internal/aggregate"
	"github.com/rickgao/quote-graph/internal/metrics"
	"github.com/rickgao/quote-graph/internal/model"
)

// Errors
var (
	ErrSinkUnavailable    = errors.New("sink unavailable")
	ErrAlreadyInitialized = errors.New("sink adapter already initialized")
	ErrTornDown           = errors.New("sink adapter torn down")
)

// State is the adapter lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDegraded
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateTornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Adapter owns a table on an injected Capability and feeds it aggregated
// quote data.
type Adapter struct {
	capability Capability
	schema     model.Schema
	view       ViewConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu    sync.Mutex
	state State
	table Table
	err   error // degradation cause
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) AdapterOption {
	return func(a *Adapter) {
		a.metrics = m
	}
}

// NewAdapter creates an adapter. capability may be nil, in which case
// Initialize degrades.
func NewAdapter(capability Capability, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		capability: capability,
		schema:     model.QuoteSchema(),
		view:       DefaultViewConfig(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.metrics.SetState(int(StateUninitialized))
	return a
}

// Initialize creates the table, attaches it and applies the view config.
// Engine failures degrade the adapter and return nil.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateUninitialized {
		return ErrAlreadyInitialized
	}

	table, err := a.setup(ctx)
	if err != nil {
		a.err = fmt.Errorf("%w: %w", ErrSinkUnavailable, err)
		a.setState(StateDegraded)
		a.logger.Warn("sink unavailable, updates will be ignored", "error", err)
		return nil
	}

	a.table = table
	a.setState(StateReady)
	a.logger.Info("sink adapter ready", "table_id", table.ID())
	return nil
}

// setup runs the one-time engine calls. Must be called with lock held.
func (a *Adapter) setup(ctx context.Context) (Table, error) {
	if a.capability == nil {
		return nil, errors.New("no engine capability")
	}
	if err := a.capability.Ready(ctx); err != nil {
		return nil, fmt.Errorf("engine not ready: %w", err)
	}

	table, err := a.capability.CreateTable(ctx, a.schema)
	if err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	if err := a.capability.Attach(ctx, table); err != nil {
		a.closeQuietly(ctx, table)
		return nil, fmt.Errorf("attach table: %w", err)
	}
	if err := a.capability.ConfigureView(ctx, a.view); err != nil {
		a.closeQuietly(ctx, table)
		return nil, fmt.Errorf("configure view: %w", err)
	}
	return table, nil
}

func (a *Adapter) closeQuietly(ctx context.Context, t Table) {
	if err := t.Close(ctx); err != nil {
		a.logger.Warn("failed to close table", "table_id", t.ID(), "error", err)
	}
}

// OnDataArrived aggregates updates and pushes the dataset to the table.
// It is a no-op unless the adapter is Ready. On error nothing is pushed
// and the table keeps its previous contents.
func (a *Adapter) OnDataArrived(ctx context.Context, updates []model.QuoteUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateReady:
	case StateTornDown:
		return ErrTornDown
	default:
		a.metrics.ObserveBatch(metrics.ResultSkipped, len(updates), 0, 0)
		return nil
	}

	start := time.Now()

	ds, err := aggregate.Aggregate(updates)
	if err != nil {
		a.metrics.ObserveBatch(metrics.ResultMalformed, len(updates), 0, 0)
		return err
	}
	if err := ds.Validate(); err != nil {
		a.metrics.ObserveBatch(metrics.ResultSinkError, len(updates), 0, 0)
		return err
	}

	if err := a.table.Update(ctx, ds); err != nil {
		a.metrics.ObserveBatch(metrics.ResultSinkError, len(updates), 0, 0)
		return fmt.Errorf("update table %s: %w", a.table.ID(), err)
	}

	a.metrics.ObserveBatch(metrics.ResultOK, len(updates), ds.Len(), time.Since(start))
	a.logger.Debug("pushed dataset",
		"updates", len(updates),
		"rows", ds.Len(),
		"duration", time.Since(start),
	)
	return nil
}

// Teardown releases the table. It is safe to call more than once.
func (a *Adapter) Teardown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateTornDown {
		return nil
	}

	var err error
	if a.table != nil {
		if cerr := a.table.Close(ctx); cerr != nil {
			err = fmt.Errorf("close table %s: %w", a.table.ID(), cerr)
		}
		a.table = nil
	}

	a.setState(StateTornDown)
	a.logger.Info("sink adapter torn down")
	return err
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns why the adapter degraded, or nil.
func (a *Adapter) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// setState must be called with lock held.
func (a *Adapter) setState(s State) {
	a.state = s
	a.metrics.SetState(int(s))
}
