package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestQuoteUpdate_Prices(t *testing.T) {
	tests := []struct {
		name    string
		update  QuoteUpdate
		wantAsk float64
		wantBid float64
	}{
		{
			name:    "both sides",
			update:  QuoteUpdate{TopAsk: &Price{Price: 121.2}, TopBid: &Price{Price: 120.8}},
			wantAsk: 121.2,
			wantBid: 120.8,
		},
		{
			name:    "missing ask",
			update:  QuoteUpdate{TopBid: &Price{Price: 5}},
			wantAsk: 0,
			wantBid: 5,
		},
		{
			name:    "empty book",
			update:  QuoteUpdate{},
			wantAsk: 0,
			wantBid: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.update.AskPrice(); got != tt.wantAsk {
				t.Errorf("AskPrice() = %v, want %v", got, tt.wantAsk)
			}
			if got := tt.update.BidPrice(); got != tt.wantBid {
				t.Errorf("BidPrice() = %v, want %v", got, tt.wantBid)
			}
		})
	}
}

func TestQuoteUpdate_UnmarshalJSON(t *testing.T) {
	data := `{
		"stock": "ABC",
		"top_ask": {"price": 121.2, "size": 36},
		"top_bid": {"price": 120.48, "size": 109},
		"timestamp": "2019-02-11 22:06:30.572453"
	}`

	var q QuoteUpdate
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if q.Stock != "ABC" {
		t.Errorf("Stock = %q, want %q", q.Stock, "ABC")
	}
	if q.TopAsk == nil || q.TopAsk.Price != 121.2 || q.TopAsk.Size != 36 {
		t.Errorf("TopAsk = %+v, want {121.2 36}", q.TopAsk)
	}
	if q.TopBid == nil || q.TopBid.Price != 120.48 {
		t.Errorf("TopBid = %+v, want price 120.48", q.TopBid)
	}
	if !q.Timestamp.IsString() {
		t.Fatal("Timestamp.IsString() = false, want true")
	}

	got, err := q.Timestamp.Time()
	if err != nil {
		t.Fatalf("Timestamp.Time() error = %v", err)
	}
	want := time.Date(2019, 2, 11, 22, 6, 30, 572453000, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Timestamp.Time() = %v, want %v", got, want)
	}
}

func TestQuoteUpdate_UnmarshalJSON_MissingSides(t *testing.T) {
	var q QuoteUpdate
	if err := json.Unmarshal([]byte(`{"stock":"DEF","top_ask":null,"timestamp":"2023-01-01T00:00:00Z"}`), &q); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if q.TopAsk != nil {
		t.Errorf("TopAsk = %+v, want nil", q.TopAsk)
	}
	if q.TopBid != nil {
		t.Errorf("TopBid = %+v, want nil", q.TopBid)
	}
}

func TestDataset_AppendAndValidate(t *testing.T) {
	ds := NewDataset(2)
	ts := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	ds.Append("ABC", 10, 9, ts)
	ds.Append("DEF", 20, 19, ts)

	if ds.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ds.Len())
	}
	if err := ds.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}

	ds.TopBidPrice = ds.TopBidPrice[:1]
	if err := ds.Validate(); !errors.Is(err, ErrRaggedDataset) {
		t.Errorf("Validate() error = %v, want ErrRaggedDataset", err)
	}
}

func TestDataset_MarshalJSON_ColumnNames(t *testing.T) {
	ds := NewDataset(1)
	ds.Append("ABC", 1.5, 1.25, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

	data, err := json.Marshal(ds)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var cols map[string]json.RawMessage
	if err := json.Unmarshal(data, &cols); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, name := range QuoteSchema().Names() {
		if _, ok := cols[name]; !ok {
			t.Errorf("column %q missing from %s", name, data)
		}
	}
	if len(cols) != len(QuoteSchema()) {
		t.Errorf("got %d columns, want %d", len(cols), len(QuoteSchema()))
	}
}

func TestQuoteSchema(t *testing.T) {
	m := QuoteSchema().Map()
	want := map[string]string{
		"stock":         "string",
		"top_ask_price": "float",
		"top_bid_price": "float",
		"timestamp":     "date",
	}
	if len(m) != len(want) {
		t.Fatalf("len(Map()) = %d, want %d", len(m), len(want))
	}
	for k, v := range want {
		if m[k] != v {
			t.Errorf("Map()[%q] = %q, want %q", k, m[k], v)
		}
	}

	names := QuoteSchema().Names()
	if names[0] != "stock" || names[3] != "timestamp" {
		t.Errorf("Names() = %v, want stock first and timestamp last", names)
	}
}

func TestQuoteSchema_ReturnsCopy(t *testing.T) {
	s := QuoteSchema()
	s[0] = Column{Name: "ticker", Type: TypeFloat}
	s = append(s, Column{Name: "extra", Type: TypeString})

	got := QuoteSchema()
	if len(got) != 4 {
		t.Fatalf("len(QuoteSchema()) = %d after caller append, want 4", len(got))
	}
	if got[0].Name != ColStock || got[0].Type != TypeString {
		t.Errorf("QuoteSchema()[0] = %+v after caller write, want stock/string", got[0])
	}
}
