package task

import (
	"fmt"
	"iter"
)

// Tasks is the ordered batch list of one processing run. Batch i+1 may
// depend only on batch i; ToGraph wires exactly that single-hop lookback.
type Tasks struct {
	batches []Batch
}

// NewTasks assembles a run from its batches in submission order.
func NewTasks(batches ...Batch) *Tasks {
	return &Tasks{batches: batches}
}

// Len returns the total task count across all batches.
func (t *Tasks) Len() int {
	n := 0
	for _, b := range t.batches {
		n += b.Len()
	}
	return n
}

// ToBatches yields each batch in submission order.
func (t *Tasks) ToBatches() []Batch {
	return t.batches
}

// ToBatch flattens all batches into one unordered collection. It fails when
// any cross-batch dependency exists, since flattening would lose ordering.
func (t *Tasks) ToBatch() ([]Task, error) {
	var out []Task
	var prev Batch
	for _, b := range t.batches {
		for tk := range b.All() {
			if prev != nil && len(prev.Intersection(tk)) > 0 {
				return nil, fmt.Errorf("task: cannot flatten, %s depends on the previous batch", tk.ID())
			}
			out = append(out, tk)
		}
		prev = b
	}
	return out, nil
}

// AllTasks iterates every task in batch order.
func (t *Tasks) AllTasks() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, b := range t.batches {
			for tk := range b.All() {
				if !yield(tk) {
					return
				}
			}
		}
	}
}

// ToGraph materializes the dependency graph: each task's inputs are exactly
// the intersecting tasks of the immediately preceding batch.
func (t *Tasks) ToGraph() (*Graph, error) {
	g := NewGraph()
	var prev Batch
	for _, b := range t.batches {
		for tk := range b.All() {
			if err := g.AddNode(tk); err != nil {
				return nil, err
			}
			if prev == nil {
				continue
			}
			for _, dep := range prev.Intersection(tk) {
				g.AddEdge(dep.ID(), tk.ID())
			}
		}
		prev = b
	}
	return g, nil
}
