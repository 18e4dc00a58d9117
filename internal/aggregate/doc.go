// Package aggregate folds a batch of quote updates into a deduplicated
// columnar dataset keyed by (stock, timestamp).
//
// Repeated keys are merged by pairwise averaging: each new price is
// blended 50/50 with the current aggregate, so later updates weigh more
// than a cumulative mean would give them. Missing sides contribute 0.
package aggregate
