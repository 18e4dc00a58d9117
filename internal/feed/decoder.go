package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rickgao/quote-graph/internal/model"
)

// ErrBadBatch is returned when a well-formed JSON value is not a quote or
// an array of quotes. The stream is still positioned at the next value, so
// callers may skip the batch and keep reading. Any other error from Next
// leaves the stream unusable.
var ErrBadBatch = errors.New("feed: value is not a quote or quote array")

// Decoder reads quote batches from a stream.
type Decoder struct {
	dec     *json.Decoder
	batches int
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// Next returns the next batch. It returns io.EOF when the stream ends
// cleanly between values.
func (d *Decoder) Next() ([]model.QuoteUpdate, error) {
	var raw json.RawMessage
	if err := d.dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("decode batch %d: %w", d.batches+1, err)
	}
	d.batches++

	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("batch %d: %w", d.batches, ErrBadBatch)
	}

	switch trimmed[0] {
	case '[':
		var batch []model.QuoteUpdate
		if err := json.Unmarshal(raw, &batch); err != nil {
			return nil, fmt.Errorf("batch %d: %w: %w", d.batches, ErrBadBatch, err)
		}
		return batch, nil
	case '{':
		var u model.QuoteUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("batch %d: %w: %w", d.batches, ErrBadBatch, err)
		}
		return []model.QuoteUpdate{u}, nil
	default:
		return nil, fmt.Errorf("batch %d: %w", d.batches, ErrBadBatch)
	}
}

// Batches returns how many values have been read so far.
func (d *Decoder) Batches() int {
	return d.batches
}
