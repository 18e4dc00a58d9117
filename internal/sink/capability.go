package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/rickgao/quote-graph/internal/model"
)

// Engine creates tables.
type Engine interface {
	// Ready reports whether the engine can serve requests.
	Ready(ctx context.Context) error

	// CreateTable creates a table bound to schema.
	CreateTable(ctx context.Context, schema model.Schema) (Table, error)
}

// Table receives columnar updates.
type Table interface {
	ID() uuid.UUID

	// Update merges ds into the table.
	Update(ctx context.Context, ds model.Dataset) error

	// Close releases the table. Update must not be called afterwards.
	Close(ctx context.Context) error
}

// Viewer is the rendering surface a table is displayed on.
type Viewer interface {
	Attach(ctx context.Context, t Table) error
	ConfigureView(ctx context.Context, cfg ViewConfig) error
}

// Capability is everything the Adapter needs from an engine.
type Capability interface {
	Engine
	Viewer
}

// AggregateFunc is how a viewer collapses a column within a pivot cell.
type AggregateFunc string

const (
	AggDistinctCount AggregateFunc = "distinct count"
	AggAvg           AggregateFunc = "avg"
)

// Plugin names.
const (
	ViewYLine = "y_line"
)

// ViewConfig is declarative display metadata applied once per table.
type ViewConfig struct {
	View         string
	ColumnPivots []string
	RowPivots    []string
	Columns      []string
	Aggregates   map[string]AggregateFunc
}

// DefaultViewConfig plots the ask price per stock over time.
func DefaultViewConfig() ViewConfig {
	return ViewConfig{
		View:         ViewYLine,
		ColumnPivots: []string{model.ColStock},
		RowPivots:    []string{model.ColTimestamp},
		Columns:      []string{model.ColTopAskPrice},
		Aggregates: map[string]AggregateFunc{
			model.ColStock:       AggDistinctCount,
			model.ColTopAskPrice: AggAvg,
			model.ColTopBidPrice: AggAvg,
			model.ColTimestamp:   AggDistinctCount,
		},
	}
}

// Attribute names on the rendering element.
const (
	AttrView         = "view"
	AttrColumnPivots = "column-pivots"
	AttrRowPivots    = "row-pivots"
	AttrColumns      = "columns"
	AttrAggregates   = "aggregates"
)

// Attributes renders the config as element attributes: the view name as
// plain text, everything else as JSON.
func (c ViewConfig) Attributes() (map[string]string, error) {
	attrs := map[string]string{AttrView: c.View}

	fields := []struct {
		name  string
		value any
	}{
		{AttrColumnPivots, nonNil(c.ColumnPivots)},
		{AttrRowPivots, nonNil(c.RowPivots)},
		{AttrColumns, nonNil(c.Columns)},
		{AttrAggregates, c.Aggregates},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", f.name, err)
		}
		attrs[f.name] = string(b)
	}
	return attrs, nil
}

// nonNil keeps empty lists rendering as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
