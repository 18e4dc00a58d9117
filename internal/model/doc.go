// Package model defines the data types shared by the aggregator, the sink
// adapter and the engines.
//
// Conventions:
//   - Prices: float64 in quote currency, 0 when a side is missing
//   - Timestamps: time.Time; inputs may arrive as ISO-8601 strings
//   - Datasets: columnar, one slice per column, equal lengths
package model
