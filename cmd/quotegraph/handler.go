package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/quote-graph/internal/graph"
	"github.com/rickgao/quote-graph/internal/metrics"
	"github.com/rickgao/quote-graph/internal/model"
	"github.com/rickgao/quote-graph/internal/sink"
	"github.com/rickgao/quote-graph/internal/sink/memory"
	"github.com/rickgao/quote-graph/internal/version"
	"github.com/rickgao/quote-graph/internal/viewer"
)

const debugRowLimit = 100

type pinger interface {
	Ping(ctx context.Context) error
}

// unavailable stands in for an engine that could not be constructed.
type unavailable struct {
	name string
	err  error
}

func (u unavailable) Ready(ctx context.Context) error {
	return fmt.Errorf("%s: %w", u.name, u.err)
}

func (u unavailable) CreateTable(ctx context.Context, schema model.Schema) (sink.Table, error) {
	return nil, u.Ready(ctx)
}

func (u unavailable) Attach(ctx context.Context, t sink.Table) error {
	return u.Ready(ctx)
}

func (u unavailable) ConfigureView(ctx context.Context, cfg sink.ViewConfig) error {
	return u.Ready(ctx)
}

// handlerDeps are the optional pieces exposed over HTTP. Nil fields
// disable their endpoint or health component.
type handlerDeps struct {
	adapter     *sink.Adapter
	graph       *graph.Graph
	db          pinger
	memory      *memory.Engine
	hub         *viewer.Hub
	gatherer    prometheus.Gatherer
	metricsPath string
	viewerPath  string
}

// newHandler creates the HTTP handler for health, metrics, viewers and debugging.
func newHandler(d handlerDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Build      version.Info   `json:"build"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Build:      version.Get(),
			Components: make(map[string]any),
		}

		// Check sink adapter
		if d.adapter != nil {
			state := d.adapter.State()
			comp := map[string]any{"state": state.String()}
			if err := d.adapter.Err(); err != nil {
				comp["error"] = err.Error()
			}
			health.Components["sink"] = comp
			switch state {
			case sink.StateDegraded:
				health.Status = "degraded"
			case sink.StateTornDown:
				health.Status = "unhealthy"
			}
		}

		// Check database
		if d.db != nil {
			if err := d.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["timescaledb"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["timescaledb"] = "connected"
			}
		}

		if d.graph != nil {
			health.Components["graph"] = d.graph.Stats()
		}
		if d.hub != nil {
			health.Components["viewer"] = map[string]any{
				"clients": d.hub.ClientCount(),
				"dropped": d.hub.Dropped(),
			}
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	if d.gatherer != nil && d.metricsPath != "" {
		mux.Handle(d.metricsPath, metrics.Handler(d.gatherer))
	}

	if d.hub != nil && d.viewerPath != "" {
		mux.Handle(d.viewerPath, d.hub)
	}

	if d.memory != nil {
		mux.HandleFunc("/debug/table", func(w http.ResponseWriter, r *http.Request) {
			tbl := d.memory.Attached()
			if tbl == nil {
				http.Error(w, "no table attached", http.StatusNotFound)
				return
			}

			rows := tbl.Rows()
			count := len(rows)

			// Limit to first 100 for debugging
			if len(rows) > debugRowLimit {
				rows = rows[:debugRowLimit]
			}

			resp := map[string]any{
				"table_id": tbl.ID(),
				"schema":   tbl.Schema().Map(),
				"updates":  tbl.Updates(),
				"count":    count,
				"showing":  len(rows),
				"rows":     rows,
			}
			if view, ok := d.memory.View(); ok {
				if attrs, err := view.Attributes(); err == nil {
					resp["view"] = attrs
				}
			}

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		})
	}

	return mux
}
