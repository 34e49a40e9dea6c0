// Package exec provides the execution backends of a processing run.
//
// Every backend implements Executor: lazy bounded-in-flight submission with
// AsCompleted, an eager ordered Map, and cooperative Cancel. Sequential runs
// tasks inline, Pool on shared-memory goroutine workers, Subprocess on
// isolated worker processes crossing a gob serialization boundary, and Graph
// resolves a whole dependency graph honoring its edges. New selects a
// backend from a Config.
package exec
