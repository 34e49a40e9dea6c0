// Package sse streams processing-run progress to HTTP clients over
// Server-Sent Events.
//
// A Hub fans run progress events out to subscribed clients. Clients
// subscribe to one run ID or, with an empty run ID, to every run. The hub
// runs its own event loop; Publish never blocks the producing run, slow
// clients drop events instead.
package sse
