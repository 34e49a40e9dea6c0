package task

import (
	"fmt"
	"iter"
)

// Batch groups tasks of equal dependency rank. Iteration follows insertion
// order; ids are unique within a batch.
type Batch interface {
	Len() int
	All() iter.Seq[Task]
	Get(id string) (Task, bool)
	// Intersection returns the tasks of this batch a task from the next
	// batch depends on.
	Intersection(t Task) []Task
}

// BasicBatch holds plain tasks and wires dependencies by bound overlap.
type BasicBatch struct {
	order []string
	tasks map[string]Task
}

// NewBatch creates an empty batch of plain tasks.
func NewBatch() *BasicBatch {
	return &BasicBatch{tasks: make(map[string]Task)}
}

// Add appends a task, rejecting duplicate ids.
func (b *BasicBatch) Add(t Task) error {
	if _, ok := b.tasks[t.ID()]; ok {
		return fmt.Errorf("task: duplicate id %q in batch", t.ID())
	}
	b.order = append(b.order, t.ID())
	b.tasks[t.ID()] = t
	return nil
}

func (b *BasicBatch) Len() int { return len(b.order) }

func (b *BasicBatch) All() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, id := range b.order {
			if !yield(b.tasks[id]) {
				return
			}
		}
	}
}

func (b *BasicBatch) Get(id string) (Task, bool) {
	t, ok := b.tasks[id]
	return t, ok
}

// Intersection scans for tasks whose footprints overlap t's. Global tasks
// on either side always match.
func (b *BasicBatch) Intersection(t Task) []Task {
	var out []Task
	for _, id := range b.order {
		if intersects(b.tasks[id], t) {
			out = append(out, b.tasks[id])
		}
	}
	return out
}

// TileBatch holds the tile tasks of one zoom level.
type TileBatch struct {
	Zoom int

	order []string
	tasks map[string]*TileTask
}

// NewTileBatch creates an empty batch for one zoom level.
func NewTileBatch(zoom int) *TileBatch {
	return &TileBatch{Zoom: zoom, tasks: make(map[string]*TileTask)}
}

// Add appends a tile task, rejecting zoom mismatches and duplicate tiles.
func (b *TileBatch) Add(t *TileTask) error {
	if t.Tile.Zoom != b.Zoom {
		return fmt.Errorf("task: tile %s does not belong to zoom %d batch", t.Tile.ID(), b.Zoom)
	}
	if _, ok := b.tasks[t.ID()]; ok {
		return fmt.Errorf("task: duplicate tile %s in batch", t.ID())
	}
	b.order = append(b.order, t.ID())
	b.tasks[t.ID()] = t
	return nil
}

func (b *TileBatch) Len() int { return len(b.order) }

func (b *TileBatch) All() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, id := range b.order {
			if !yield(b.tasks[id]) {
				return
			}
		}
	}
}

// Tiles iterates the batch's tasks with their concrete type.
func (b *TileBatch) Tiles() iter.Seq[*TileTask] {
	return func(yield func(*TileTask) bool) {
		for _, id := range b.order {
			if !yield(b.tasks[id]) {
				return
			}
		}
	}
}

func (b *TileBatch) Get(id string) (Task, bool) {
	t, ok := b.tasks[id]
	return t, ok
}

// Intersection resolves dependencies for a task of the next batch. For a
// tile task one zoom level above this batch the lookup is the direct
// children of its tile; anything else falls back to a bound scan.
func (b *TileBatch) Intersection(t Task) []Task {
	if tt, ok := t.(*TileTask); ok && tt.Tile.Zoom == b.Zoom-1 {
		var out []Task
		for _, child := range tt.Tile.Children() {
			if dep, ok := b.tasks[child.ID()]; ok {
				out = append(out, dep)
			}
		}
		return out
	}

	var out []Task
	for _, id := range b.order {
		if intersects(b.tasks[id], t) {
			out = append(out, b.tasks[id])
		}
	}
	return out
}
