// Package output defines the driver contract for persisting tile results
// and ships two built-in drivers: a concurrent in-memory store and a
// filesystem store of gob-encoded grids.
//
// Drivers are looked up through an explicit Registry constructed at process
// start; there are no package-level driver globals. The registry tracks
// every driver it opens and closes them in reverse order on shutdown.
package output
