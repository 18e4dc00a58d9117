package model

import (
	"errors"
	"fmt"
	"time"
)

// -----------------------------------------------------------------------------
// Input Types
// -----------------------------------------------------------------------------

// Price is one side of the top of book.
type Price struct {
	Price float64 `json:"price"`
	Size  int     `json:"size"` // Informational, not aggregated
}

// QuoteUpdate is one observation of an instrument's best ask and bid.
type QuoteUpdate struct {
	Stock     string    `json:"stock"`   // Instrument id (e.g., "ABC")
	TopAsk    *Price    `json:"top_ask"` // nil when the ask side is empty
	TopBid    *Price    `json:"top_bid"` // nil when the bid side is empty
	Timestamp Timestamp `json:"timestamp"`
}

// AskPrice returns the ask price, or 0 when there is no ask.
func (q QuoteUpdate) AskPrice() float64 {
	if q.TopAsk == nil {
		return 0
	}
	return q.TopAsk.Price
}

// BidPrice returns the bid price, or 0 when there is no bid.
func (q QuoteUpdate) BidPrice() float64 {
	if q.TopBid == nil {
		return 0
	}
	return q.TopBid.Price
}

// -----------------------------------------------------------------------------
// Output Types
// -----------------------------------------------------------------------------

// Dataset is the columnar form pushed to a sink table.
// Row i is (Stock[i], TopAskPrice[i], TopBidPrice[i], Timestamp[i]).
type Dataset struct {
	Stock       []string    `json:"stock"`
	TopAskPrice []float64   `json:"top_ask_price"`
	TopBidPrice []float64   `json:"top_bid_price"`
	Timestamp   []time.Time `json:"timestamp"`
}

// ErrRaggedDataset is returned when dataset columns differ in length.
var ErrRaggedDataset = errors.New("dataset columns differ in length")

// NewDataset returns an empty dataset with room for n rows.
func NewDataset(n int) Dataset {
	return Dataset{
		Stock:       make([]string, 0, n),
		TopAskPrice: make([]float64, 0, n),
		TopBidPrice: make([]float64, 0, n),
		Timestamp:   make([]time.Time, 0, n),
	}
}

// Append adds one row to every column.
func (d *Dataset) Append(stock string, ask, bid float64, ts time.Time) {
	d.Stock = append(d.Stock, stock)
	d.TopAskPrice = append(d.TopAskPrice, ask)
	d.TopBidPrice = append(d.TopBidPrice, bid)
	d.Timestamp = append(d.Timestamp, ts)
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Stock)
}

// Validate checks that all four columns have the same length.
func (d Dataset) Validate() error {
	n := len(d.Stock)
	if len(d.TopAskPrice) != n || len(d.TopBidPrice) != n || len(d.Timestamp) != n {
		return fmt.Errorf("%w: stock=%d top_ask_price=%d top_bid_price=%d timestamp=%d",
			ErrRaggedDataset, n, len(d.TopAskPrice), len(d.TopBidPrice), len(d.Timestamp))
	}
	return nil
}

// -----------------------------------------------------------------------------
// Schema
// -----------------------------------------------------------------------------

// ColumnType is a primitive column type understood by visualization engines.
type ColumnType string

const (
	TypeString ColumnType = "string"
	TypeFloat  ColumnType = "float"
	TypeDate   ColumnType = "date"
)

// Column names of the quote table.
const (
	ColStock       = "stock"
	ColTopAskPrice = "top_ask_price"
	ColTopBidPrice = "top_bid_price"
	ColTimestamp   = "timestamp"
)

// Column is a single named, typed column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered list of columns.
type Schema []Column

var quoteColumns = [...]Column{
	{Name: ColStock, Type: TypeString},
	{Name: ColTopAskPrice, Type: TypeFloat},
	{Name: ColTopBidPrice, Type: TypeFloat},
	{Name: ColTimestamp, Type: TypeDate},
}

// QuoteSchema returns the table shape every Dataset conforms to. Each call
// returns a fresh slice, so callers may keep or modify it.
func QuoteSchema() Schema {
	s := make(Schema, len(quoteColumns))
	copy(s, quoteColumns[:])
	return s
}

// Map returns the schema as a name -> type object, the form engines take.
func (s Schema) Map() map[string]string {
	m := make(map[string]string, len(s))
	for _, c := range s {
		m[c.Name] = string(c.Type)
	}
	return m
}

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}
