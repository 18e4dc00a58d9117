package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rickgao/quote-graph/internal/aggregate"
	"github.com/rickgao/quote-graph/internal/feed"
	"github.com/rickgao/quote-graph/internal/metrics"
	"github.com/rickgao/quote-graph/internal/model"
)

// Config controls accumulation.
type Config struct {
	MaxUpdates int // 0 = unbounded
	QueueSize  int
}

// Source yields quote batches. Next returns io.EOF when exhausted. An
// error wrapping feed.ErrBadBatch skips that batch; any other error ends
// reading.
type Source interface {
	Next() ([]model.QuoteUpdate, error)
}

// Sink receives the accumulated updates. *sink.Adapter implements it.
type Sink interface {
	Initialize(ctx context.Context) error
	OnDataArrived(ctx context.Context, updates []model.QuoteUpdate) error
	Teardown(ctx context.Context) error
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Batches     int64 `json:"batches"`     // batches applied
	Dropped     int64 `json:"dropped"`     // batches discarded as malformed, in the feed or by the sink
	Discarded   int64 `json:"discarded"`   // batches still queued when Stop was called
	SinkErrors  int64 `json:"sink_errors"`
	Accumulated int   `json:"accumulated"`

	// Feed queue
	QueueDepth int `json:"queue_depth"`
	QueuePeak  int `json:"queue_peak"`
	QueueGrows int `json:"queue_grows"`
}

// Graph owns the accumulated updates and drives the sink.
type Graph struct {
	cfg     Config
	sink    Sink
	source  Source
	logger  *slog.Logger
	metrics *metrics.Metrics

	queue *feed.Queue[[]model.QuoteUpdate]

	// Loop state, only touched by the loop goroutine.
	state []model.QuoteUpdate

	mu      sync.Mutex
	stats   Stats
	readErr error
	started bool

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

// Option configures a Graph.
type Option func(*Graph)

// WithMetrics records loop metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Graph) {
		g.metrics = m
	}
}

// New creates a graph. Nothing runs until Start.
func New(cfg Config, s Sink, src Source, logger *slog.Logger, opts ...Option) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{
		cfg:    cfg,
		sink:   s,
		source: src,
		logger: logger,
		queue:  feed.NewQueue[[]model.QuoteUpdate](cfg.QueueSize),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start initializes the sink and begins reading and applying batches.
func (g *Graph) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return errors.New("graph already started")
	}
	g.started = true
	g.mu.Unlock()

	if err := g.sink.Initialize(ctx); err != nil {
		g.closeDone()
		return fmt.Errorf("initialize sink: %w", err)
	}

	g.ctx, g.cancel = context.WithCancel(ctx)

	// Reader goroutine. It is not waited on by Stop: a Source blocked on
	// stdin cannot be interrupted, and it exits on its next Send.
	go g.readLoop()

	g.wg.Add(1)
	go g.updateLoop()

	g.logger.Info("graph started",
		"max_updates", g.cfg.MaxUpdates,
		"queue_size", g.cfg.QueueSize,
	)
	return nil
}

// Stop halts the update loop and tears the sink down. Batches still
// queued are discarded.
func (g *Graph) Stop(ctx context.Context) error {
	g.logger.Info("stopping graph")

	if g.cancel != nil {
		g.cancel()
	}
	g.queue.Close()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.discardQueued()
	case <-ctx.Done():
		g.logger.Warn("graph stop timed out")
	}

	if err := g.sink.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown sink: %w", err)
	}
	g.logger.Info("graph stopped", "batches", g.Stats().Batches)
	return nil
}

// Done is closed when the update loop exits, either because the source
// was exhausted and every batch applied or because Stop was called. It is
// also closed when Start fails. Before Start it stays open.
func (g *Graph) Done() <-chan struct{} {
	return g.done
}

func (g *Graph) closeDone() {
	g.doneOnce.Do(func() { close(g.done) })
}

// discardQueued drops batches the loop never reached. Called after the
// loop has exited.
func (g *Graph) discardQueued() {
	var n int64
	for {
		if _, ok := g.queue.TryReceive(); !ok {
			break
		}
		n++
	}
	if n > 0 {
		g.addDiscarded(n)
	}
}

func (g *Graph) addDiscarded(n int64) {
	g.mu.Lock()
	g.stats.Discarded += n
	g.mu.Unlock()
	g.logger.Info("discarded queued batches", "batches", n)
}

// Err returns the source error that ended reading, if any. A clean end of
// input is not an error.
func (g *Graph) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.readErr
}

// Stats returns current counters.
func (g *Graph) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	qs := g.queue.Stats()
	s.QueueDepth = qs.Depth
	s.QueuePeak = qs.Peak
	s.QueueGrows = qs.Grows
	return s
}

func (g *Graph) readLoop() {
	defer g.queue.Close()

	for {
		batch, err := g.source.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				g.logger.Info("feed exhausted")
				return
			}
			if errors.Is(err, feed.ErrBadBatch) {
				g.mu.Lock()
				g.stats.Dropped++
				g.mu.Unlock()
				g.logger.Warn("dropped undecodable batch", "error", err)
				g.metrics.ObserveGraph(g.Stats().Accumulated, g.queue.Len(), true)
				continue
			}
			g.mu.Lock()
			g.readErr = err
			g.mu.Unlock()
			g.logger.Error("feed read failed", "error", err)
			return
		}
		if !g.queue.Send(batch) {
			return
		}
	}
}

func (g *Graph) updateLoop() {
	defer g.wg.Done()
	defer g.closeDone()

	for {
		batch, ok := g.queue.Receive()
		if !ok {
			return
		}
		if g.ctx.Err() != nil {
			g.addDiscarded(1)
			return
		}
		g.apply(batch)
	}
}

// apply delivers the accumulation plus batch to the sink and keeps the
// result unless the batch could not be aggregated.
func (g *Graph) apply(batch []model.QuoteUpdate) {
	// Capped so append always copies; the sink may hold on to next.
	next := append(g.state[:len(g.state):len(g.state)], batch...)
	if g.cfg.MaxUpdates > 0 && len(next) > g.cfg.MaxUpdates {
		next = next[len(next)-g.cfg.MaxUpdates:]
	}

	err := g.sink.OnDataArrived(g.ctx, next)

	dropped := false
	g.mu.Lock()
	switch {
	case err == nil:
		g.state = next
		g.stats.Batches++
	case errors.Is(err, aggregate.ErrMalformedTimestamp):
		dropped = true
		g.stats.Dropped++
	default:
		// The sink failed, not the data. Keep it for the next push.
		g.state = next
		g.stats.SinkErrors++
	}
	g.stats.Accumulated = len(g.state)
	g.mu.Unlock()

	switch {
	case dropped:
		g.logger.Warn("dropped batch with malformed timestamp", "updates", len(batch), "error", err)
	case err != nil:
		g.logger.Error("sink update failed", "updates", len(batch), "error", err)
	}
	g.metrics.ObserveGraph(len(g.state), g.queue.Len(), dropped)
}
