package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"boardly/domain"
)

// TaskChannel is the slice of the remote data channel the task store needs.
type TaskChannel interface {
	SubscribeTasks(ctx context.Context, fn func([]domain.Task)) (func(), error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (string, error)
	PatchTask(ctx context.Context, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, id string) error
}

// Tasks holds the in-memory task list. Every remote snapshot replaces the
// whole list; there is no incremental merging, so the local copy can never
// diverge from the channel between deliveries.
type Tasks struct {
	channel TaskChannel
	logger  *log.Logger

	mu    sync.RWMutex
	tasks []domain.Task

	changeMu sync.Mutex
	onChange []func()
}

// NewTasks creates a task store over the given channel.
func NewTasks(channel TaskChannel, logger *log.Logger) *Tasks {
	if channel == nil {
		panic("store.NewTasks: channel is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Tasks{channel: channel, logger: logger}
}

// OnChange registers a callback fired after every snapshot replacement.
func (s *Tasks) OnChange(fn func()) {
	s.changeMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.changeMu.Unlock()
}

// Subscribe attaches the store to the channel until the returned cancel is
// called. Each delivery replaces the full in-memory list.
func (s *Tasks) Subscribe(ctx context.Context) (func(), error) {
	return s.channel.SubscribeTasks(ctx, s.replace)
}

func (s *Tasks) replace(tasks []domain.Task) {
	s.mu.Lock()
	s.tasks = tasks
	s.mu.Unlock()

	s.changeMu.Lock()
	callbacks := s.onChange
	s.changeMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Snapshot returns a copy of the current task list in snapshot order.
func (s *Tasks) Snapshot() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// Column returns one column's tasks sorted ascending by stored order. Ties
// keep snapshot arrival order.
func (s *Tasks) Column(col domain.Column) []domain.Task {
	out := []domain.Task{}
	for _, t := range s.Snapshot() {
		if t.Status == col {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Add creates a task from the draft. The title must be non-blank, the status
// must name a real column, priority defaults to medium, and the new task
// ranks one past the destination column's current maximum.
func (s *Tasks) Add(ctx context.Context, draft domain.TaskDraft) (string, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return "", domain.ErrEmptyTitle
	}
	if !draft.Status.Valid() {
		return "", domain.ErrUnknownColumn
	}
	if draft.Priority == "" {
		draft.Priority = domain.PriorityMedium
	}
	if !draft.Priority.Valid() {
		return "", domain.ErrUnknownPriority
	}
	if draft.Labels == nil {
		draft.Labels = []string{}
	}
	draft.Order = domain.NextOrder(s.Snapshot(), draft.Status)
	return s.channel.CreateTask(ctx, draft)
}

// Update merges the patch into the remote record.
func (s *Tasks) Update(ctx context.Context, id string, patch domain.TaskPatch) error {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return domain.ErrEmptyTitle
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return domain.ErrUnknownColumn
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return domain.ErrUnknownPriority
	}
	if patch.Empty() {
		return nil
	}
	return s.channel.PatchTask(ctx, id, patch)
}

// Remove deletes the remote record outright. No soft delete, no undo.
func (s *Tasks) Remove(ctx context.Context, id string) error {
	return s.channel.DeleteTask(ctx, id)
}

// Move reconciles a drag gesture against the current snapshot and applies
// the resulting patches concurrently. A failed patch is logged and left as
// is; there is no transaction and no rollback, the next snapshot simply
// reflects whichever writes landed.
func (s *Tasks) Move(ctx context.Context, mv domain.Move) ([]domain.Patch, error) {
	if !mv.Cancelled() && !mv.DestColumn.Valid() {
		return nil, domain.ErrUnknownColumn
	}
	patches := domain.PlanMove(s.Snapshot(), mv)
	if len(patches) == 0 {
		return nil, nil
	}

	var wg sync.WaitGroup
	for _, p := range patches {
		wg.Add(1)
		go func(p domain.Patch) {
			defer wg.Done()
			order := p.Order
			patch := domain.TaskPatch{Order: &order, Status: p.Status}
			if err := s.channel.PatchTask(ctx, p.TaskID, patch); err != nil {
				s.logger.WithFields(log.Fields{
					"task":  p.TaskID,
					"order": p.Order,
				}).Errorf("move patch failed: %v", err)
			}
		}(p)
	}
	wg.Wait()
	return patches, nil
}
