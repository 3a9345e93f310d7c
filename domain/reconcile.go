package domain

import "sort"

// Move describes a completed drag gesture. A cancelled drop carries an empty
// DestColumn.
type Move struct {
	TaskID       string `json:"taskId"`
	SourceColumn Column `json:"sourceColumn"`
	SourceIndex  int    `json:"sourceIndex"`
	DestColumn   Column `json:"destColumn"`
	DestIndex    int    `json:"destIndex"`
}

// Cancelled reports whether the drag was dropped outside any column.
func (m Move) Cancelled() bool {
	return m.DestColumn == ""
}

// NoOp reports whether the drop landed exactly where the drag started.
func (m Move) NoOp() bool {
	return m.DestColumn == m.SourceColumn && m.DestIndex == m.SourceIndex
}

// Patch is one remote write produced by reconciling a move: the task's new
// rank and, when the move crossed columns, its new status.
type Patch struct {
	TaskID string  `json:"taskId"`
	Order  int     `json:"order"`
	Status *Column `json:"status,omitempty"`
}

// PlanMove reconciles a drag-and-drop gesture against the current snapshot
// and returns the minimal set of patches that re-rank the affected columns
// to dense positional orders (0..n-1).
//
// The moved task always receives a patch; every other task is patched only
// when its stored order disagrees with its positional index. Ties between
// equal stored orders keep snapshot arrival order, which is all the backing
// channel guarantees.
func PlanMove(tasks []Task, mv Move) []Patch {
	if mv.Cancelled() || mv.NoOp() {
		return nil
	}

	var moved *Task
	for i := range tasks {
		if tasks[i].ID == mv.TaskID {
			moved = &tasks[i]
			break
		}
	}
	if moved == nil {
		return nil
	}

	crossColumn := mv.DestColumn != mv.SourceColumn

	dest := columnTasks(tasks, mv.DestColumn, mv.TaskID)
	idx := mv.DestIndex
	if idx < 0 {
		idx = 0
	}
	if idx > len(dest) {
		idx = len(dest)
	}
	dest = append(dest, Task{})
	copy(dest[idx+1:], dest[idx:])
	dest[idx] = *moved

	patches := make([]Patch, 0, len(dest))
	for i, t := range dest {
		if t.ID == mv.TaskID {
			p := Patch{TaskID: t.ID, Order: i}
			if crossColumn {
				status := mv.DestColumn
				p.Status = &status
			}
			patches = append(patches, p)
			continue
		}
		if t.Order != i {
			patches = append(patches, Patch{TaskID: t.ID, Order: i})
		}
	}

	if crossColumn {
		for i, t := range columnTasks(tasks, mv.SourceColumn, mv.TaskID) {
			if t.Order != i {
				patches = append(patches, Patch{TaskID: t.ID, Order: i})
			}
		}
	}

	return patches
}

// columnTasks returns the tasks of one column, minus the excluded id, sorted
// ascending by stored order. The sort is stable so equal orders keep their
// snapshot position.
func columnTasks(tasks []Task, col Column, excludeID string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == col && t.ID != excludeID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// NextOrder returns the rank a freshly created task takes in col: one past
// the current maximum, or zero for an empty column.
func NextOrder(tasks []Task, col Column) int {
	next := 0
	for _, t := range tasks {
		if t.Status == col && t.Order+1 > next {
			next = t.Order + 1
		}
	}
	return next
}
