// Package timescale is a visualization engine backed by TimescaleDB.
//
// Every table created by the engine shares one physical hypertable-ready
// table, partitioned by a table_id column. Updates are upserted with
// pgx.Batch so repeated (stock, timestamp) keys overwrite in place. View
// configurations land in quote_views as JSONB so dashboards can rebuild
// the chart from the database alone.
//
// Closing a table never deletes rows; the data is history.
package timescale
