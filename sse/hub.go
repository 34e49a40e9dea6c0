package sse

import (
	"sync"

	"github.com/kbukum/tilekit/logger"
)

// Event is one framed message ready to be written to an SSE stream.
type Event struct {
	Type string
	Data []byte
}

// Client is one connected progress consumer.
type Client struct {
	id     string
	runID  string
	events chan Event
	once   sync.Once
}

// NewClient creates a client subscribed to one run. An empty runID
// subscribes to every run.
func NewClient(id, runID string) *Client {
	return &Client{
		id:     id,
		runID:  runID,
		events: make(chan Event, 64),
	}
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

// RunID returns the subscribed run, empty for all runs.
func (c *Client) RunID() string { return c.runID }

// Events returns the channel events are delivered on. It is closed when
// the client is unregistered or the hub stops.
func (c *Client) Events() <-chan Event { return c.events }

// send delivers without blocking; a full client drops the event.
func (c *Client) send(e Event) bool {
	select {
	case c.events <- e:
		return true
	default:
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() { close(c.events) })
}

// Hub fans run progress out to subscribed clients.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	publish    chan publication
	done       chan struct{}
	log        *logger.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	stopped bool
}

type publication struct {
	runID string
	event Event
}

// NewHub creates a hub. Call Run in a goroutine before registering
// clients.
func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan publication, 256),
		done:       make(chan struct{}),
		log:        logger.Get("sse"),
		clients:    make(map[string]*Client),
	}
}

// Run drives the hub until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			h.log.Debug("Progress client registered", map[string]interface{}{
				"client_id": client.id,
				"run_id":    client.runID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.Close()
			}
			h.mu.Unlock()

		case p := <-h.publish:
			h.deliver(p)
		}
	}
}

// Stop shuts the hub down and disconnects every client. Safe to call more
// than once.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		h.stopped = true
		close(h.done)
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues one progress event for a run. It never blocks the caller;
// with a saturated hub the event is dropped.
func (h *Hub) Publish(e ProgressEvent) {
	h.enqueue(e.RunID, Event{Type: EventTypeProgress, Data: e.marshal()})
}

// PublishDone queues the terminal event for a run.
func (h *Hub) PublishDone(e DoneEvent) {
	h.enqueue(e.RunID, Event{Type: EventTypeDone, Data: e.marshal()})
}

func (h *Hub) enqueue(runID string, e Event) {
	select {
	case h.publish <- publication{runID: runID, event: e}:
	default:
	}
}

func (h *Hub) deliver(p publication) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.runID == "" || client.runID == p.runID {
			client.send(p.event)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
