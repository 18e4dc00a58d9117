// Package database provides connection pool management for TimescaleDB.
//
// The pool backs the timescale visualization engine, which keeps every
// aggregated quote dataset as queryable history.
package database
