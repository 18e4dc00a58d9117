// Package feed reads quote batches and hands them to the graph loop.
//
// A feed is a stream of JSON values. Each value is either one quote
// update object or an array of them, the shape a quote server returns
// per poll:
//
//	[{"stock":"ABC","top_ask":{"price":10.5,"size":3},"top_bid":{"price":10.1,"size":1},"timestamp":"2024-01-02 15:04:05.123456"}]
//
// Values may be separated by any whitespace, so newline-delimited JSON
// and a single concatenated stream both work.
package feed
