package domain

import "errors"

// Column identifies a status bucket on the board.
type Column string

const (
	ColumnTodo       Column = "todo"
	ColumnInProgress Column = "in-progress"
	ColumnDone       Column = "done"
	ColumnReview     Column = "review"
)

// Columns lists every board column in display order.
var Columns = []Column{ColumnTodo, ColumnInProgress, ColumnDone, ColumnReview}

// Valid reports whether c names a known board column.
func (c Column) Valid() bool {
	switch c {
	case ColumnTodo, ColumnInProgress, ColumnDone, ColumnReview:
		return true
	}
	return false
}

// Priority ranks a task's urgency.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority level.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

var (
	// ErrEmptyTitle is returned when a task is created or renamed with a blank title.
	ErrEmptyTitle = errors.New("task title must not be empty")
	// ErrUnknownColumn is returned when a task references a column that does not exist.
	ErrUnknownColumn = errors.New("unknown board column")
	// ErrUnknownPriority is returned for a priority outside low/medium/high.
	ErrUnknownPriority = errors.New("unknown task priority")
)

// Task represents a single board card in the read model.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Column   `json:"status"`
	Priority    Priority `json:"priority"`
	Labels      []string `json:"labels,omitempty"`
	AssignedTo  string   `json:"assignedTo,omitempty"`
	Order       int      `json:"order"`
	CreatedAt   int64    `json:"createdAt,omitempty"`
	UpdatedAt   int64    `json:"updatedAt,omitempty"`
}

// TaskDraft carries the caller-supplied fields for a new task. Defaults are
// filled in by the task store before the draft reaches the channel.
type TaskDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      Column   `json:"status"`
	Priority    Priority `json:"priority,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	AssignedTo  string   `json:"assignedTo,omitempty"`
	Order       int      `json:"order"`
}

// TaskPatch carries a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Status      *Column   `json:"status,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Labels      *[]string `json:"labels,omitempty"`
	AssignedTo  *string   `json:"assignedTo,omitempty"`
	Order       *int      `json:"order,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.Labels == nil && p.AssignedTo == nil && p.Order == nil
}
