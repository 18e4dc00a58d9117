// Package viewer streams the attached table to browser viewers over WebSocket.
//
// The Hub is both a visualization engine (it implements sink.Capability)
// and an http.Handler. Each engine call becomes a JSON message:
//
//	load       table id and schema, sent on Attach
//	configure  view attributes, sent on ConfigureView
//	update     the full aggregated dataset, sent on Table.Update
//	delete     sent when the attached table is closed
//
// Viewers that connect late are replayed load, configure and the last
// update so they render the current state immediately. Every client has
// a bounded send queue; messages to a client whose queue is full are
// dropped rather than blocking the producer.
package viewer
