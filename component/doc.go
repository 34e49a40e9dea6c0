// Package component defines the lifecycle interface of long-running
// services hosted by a tilekit process: the HTTP server, the progress hub
// and opened output drivers.
//
// Components register with a Registry, start in registration order and stop
// in reverse order. The Registry also aggregates health for the serving
// surface.
package component
