// Package engine orchestrates one processing run: it expands the configured
// area and zoom range into task batches, picks an execution strategy from
// the shape of the run and the chosen backend, drives the executor and
// applies the output write policy.
//
// Strategies, in decision order: a single zoom batch with no preprocessing
// runs as one flat unordered batch; a graph-capable backend with graph mode
// requested receives the whole dependency graph in one call; everything
// else runs batch by batch in strict order, each batch fully resolved and
// written before the next is submitted, because baselevel interpolation at
// zoom z reads output of neighbouring zoom levels.
//
// Results are exposed as a lazy, finite, non-restartable Stream of
// task.Info records with a known total and cooperative cancellation, and
// as a synchronous single-tile call deduplicated through the cache
// coordinator.
package engine
