// Package sink drives an external visualization engine.
//
// The Adapter owns one table for its whole lifetime:
//
//	Uninitialized --Initialize--> Ready | Degraded
//	any           --Teardown----> TornDown
//
// Engines are injected as a Capability; a missing or failing capability
// degrades the adapter instead of failing the host. In Ready, every
// OnDataArrived call re-aggregates the full batch it is given and pushes
// the resulting dataset through Table.Update. Merge semantics of Update
// (append or upsert) belong to the engine.
package sink
