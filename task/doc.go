// Package task models the units of work of a processing run.
//
// A Task is one executable unit with an id, optional bounds and a dependency
// map of prior results. TileTask binds a task to a pyramid tile and its
// per-zoom parameters. Batches group tasks of equal dependency rank; Tasks
// orders batches so that batch i+1 may depend only on batch i. ToGraph wires
// those single-hop dependencies into a Graph that Levels groups for
// execution with Kahn's algorithm.
package task
