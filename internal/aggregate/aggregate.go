package aggregate

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/quote-graph/internal/model"
)

// ErrMalformedTimestamp is returned when an update's timestamp cannot be
// normalized. The whole pass fails; no partial dataset is produced.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// key identifies one output row.
type key struct {
	stock string
	ts    string // model.CanonicalString of the normalized time
}

type entry struct {
	stock     string
	askPrice  float64
	bidPrice  float64
	timestamp time.Time
}

// Aggregate merges updates into one row per (stock, instant), in order of
// first occurrence. It has no side effects.
func Aggregate(updates []model.QuoteUpdate) (model.Dataset, error) {
	index := make(map[key]int, len(updates))
	entries := make([]entry, 0, len(updates))

	for i, u := range updates {
		ts, err := u.Timestamp.Time()
		if err != nil {
			return model.Dataset{}, fmt.Errorf("%w: update %d (%s): %w", ErrMalformedTimestamp, i, u.Stock, err)
		}

		k := key{stock: u.Stock, ts: model.CanonicalString(ts)}
		pos, seen := index[k]
		if !seen {
			index[k] = len(entries)
			entries = append(entries, entry{
				stock:     u.Stock,
				askPrice:  u.AskPrice(),
				bidPrice:  u.BidPrice(),
				timestamp: ts,
			})
			continue
		}

		// First-seen timestamp wins; only prices move.
		e := &entries[pos]
		e.askPrice = (e.askPrice + u.AskPrice()) / 2
		e.bidPrice = (e.bidPrice + u.BidPrice()) / 2
	}

	ds := model.NewDataset(len(entries))
	for _, e := range entries {
		ds.Append(e.stock, e.askPrice, e.bidPrice, e.timestamp)
	}
	return ds, nil
}
