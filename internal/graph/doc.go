// Package graph hosts the sink adapter for the lifetime of a feed.
//
// Start mounts the graph: the adapter is initialized, a reader goroutine
// decodes batches from the Source into a queue, and the update loop
// appends each batch to the accumulated updates and hands the whole
// accumulation to the adapter. Every adapter call happens on the loop
// goroutine.
//
// A batch the adapter cannot aggregate is discarded so one bad timestamp
// does not poison every later update. MaxUpdates bounds the accumulation
// by dropping the oldest updates first.
//
// Stop unmounts: the loop exits and the adapter is torn down.
package graph
