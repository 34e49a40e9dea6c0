package server

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/kbukum/tilekit/engine"
	"github.com/kbukum/tilekit/sse"
)

// runState tracks one background pyramid run.
type runState struct {
	id        string
	stream    *engine.Stream
	count     atomic.Int64
	cancelled atomic.Bool
	done      chan struct{}
}

// RunStatus is the client-facing view of a run.
type RunStatus struct {
	ID        string `json:"id"`
	Count     int    `json:"count"`
	Total     int    `json:"total"`
	Running   bool   `json:"running"`
	Cancelled bool   `json:"cancelled,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r *runState) status() RunStatus {
	st := RunStatus{
		ID:        r.id,
		Count:     int(r.count.Load()),
		Total:     r.stream.Total(),
		Cancelled: r.cancelled.Load(),
	}
	select {
	case <-r.done:
	default:
		st.Running = true
	}
	if err := r.stream.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// runManager owns the set of active and finished runs.
type runManager struct {
	mu   sync.RWMutex
	runs map[string]*runState
}

func newRunManager() *runManager {
	return &runManager{runs: make(map[string]*runState)}
}

func (m *runManager) get(id string) (*runState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	return r, ok
}

func (m *runManager) list() []RunStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RunStatus, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.status())
	}
	return out
}

// start launches a run on eng and pumps its records into the hub until the
// stream is exhausted.
func (m *runManager) start(eng *engine.Engine, hub *sse.Hub) (*runState, error) {
	stream, err := eng.Stream(context.Background())
	if err != nil {
		return nil, err
	}

	r := &runState{
		id:     uuid.NewString(),
		stream: stream,
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.runs[r.id] = r
	m.mu.Unlock()

	go func() {
		defer close(r.done)
		ctx := context.Background()
		for {
			info, ok := stream.Next(ctx)
			if !ok {
				break
			}
			n := int(r.count.Add(1))
			hub.Publish(sse.Progress(r.id, info, n, stream.Total()))
		}
		hub.PublishDone(sse.Done(
			r.id, int(r.count.Load()), stream.Total(),
			r.cancelled.Load(), stream.Err(),
		))
	}()

	return r, nil
}

// cancel stops a run. It returns false when the id is unknown.
func (m *runManager) cancel(id string) (*runState, bool) {
	r, ok := m.get(id)
	if !ok {
		return nil, false
	}
	r.cancelled.Store(true)
	r.stream.Cancel()
	return r, true
}

// stopAll cancels every active run and waits for the pumps to drain.
func (m *runManager) stopAll() {
	m.mu.RLock()
	runs := make([]*runState, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	for _, r := range runs {
		r.cancelled.Store(true)
		r.stream.Cancel()
	}
	for _, r := range runs {
		<-r.done
	}
}
