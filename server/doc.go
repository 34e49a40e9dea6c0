// Package server exposes an engine over HTTP: on-demand tile computation
// deduplicated through the cache coordinator, processing-run management
// with Server-Sent-Events progress, health and version endpoints.
//
// Routes:
//
//	GET    /tiles/:zoom/:row/:col   compute (or read back) one tile
//	GET    /runs                    list runs
//	POST   /runs                    start a processing run
//	GET    /runs/:id                run status
//	DELETE /runs/:id                cancel a running run
//	GET    /progress                SSE progress stream (?run=<id>)
//	GET    /healthz                 component health
//	GET    /version                 build information
//
// Tile requests pass a rate limiter and a bulkhead bounding concurrent
// computations; overload answers 429 or 503 rather than queueing without
// bound.
package server
