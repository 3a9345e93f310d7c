package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"boardly/domain"
)

// Queue is the notification trigger queue consumed by the worker.
type Queue interface {
	DequeueNotificationEvent(ctx context.Context) (*domain.NotificationEvent, string, string, error)
	DeleteNotificationEvent(ctx context.Context, id, receipt string) error
}

// Inbox persists notification rows for recipients.
type Inbox interface {
	InsertNotification(ctx context.Context, n domain.AppNotification) (string, error)
}

// Worker drains the trigger queue into the notifications table. One trigger
// becomes one inbox row; the subscriber broadcast rides on the insert.
type Worker struct {
	queue    Queue
	inbox    Inbox
	logger   *log.Logger
	idleWait time.Duration
}

// NewWorker creates a queue worker. idleWait throttles polling when the
// queue is empty.
func NewWorker(queue Queue, inbox Inbox, logger *log.Logger, idleWait time.Duration) *Worker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if idleWait <= 0 {
		idleWait = time.Second
	}
	return &Worker{queue: queue, inbox: inbox, logger: logger, idleWait: idleWait}
}

// Run polls the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.Step(ctx)
		if err != nil {
			w.logger.Errorf("notification worker: %v", err)
		}
		if !processed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.idleWait):
			}
		}
	}
}

// Step processes at most one queued trigger. It reports whether a message
// was consumed. A malformed or unprocessable message is deleted rather than
// redelivered forever.
func (w *Worker) Step(ctx context.Context) (bool, error) {
	ev, msgID, receipt, err := w.queue.DequeueNotificationEvent(ctx)
	if err != nil {
		return false, err
	}
	if ev == nil && msgID == "" {
		return false, nil
	}

	if ev != nil && ev.RecipientID != "" {
		createdAt := ev.Timestamp
		if createdAt == 0 {
			createdAt = time.Now().UnixMilli()
		}
		n := domain.AppNotification{
			UserID:    ev.RecipientID,
			Type:      ev.Type,
			Title:     ev.Title,
			Message:   ev.Message,
			ActorID:   ev.ActorID,
			CreatedAt: createdAt,
		}
		if _, err := w.inbox.InsertNotification(ctx, n); err != nil {
			// Leave the message for redelivery after the visibility timeout.
			return true, err
		}
	}

	if err := w.queue.DeleteNotificationEvent(ctx, msgID, receipt); err != nil {
		return true, err
	}
	return true, nil
}

// StatusChangeEvents builds the trigger events for a cross-column move: one
// per recipient, skipping the actor themselves.
func StatusChangeEvents(task domain.Task, actorID string, dest domain.Column, recipients []string) []domain.NotificationEvent {
	events := make([]domain.NotificationEvent, 0, len(recipients))
	eventType := domain.NotifyTaskStatusChanged
	if dest == domain.ColumnDone {
		eventType = domain.NotifyTaskCompleted
	}
	now := time.Now().UnixMilli()
	for _, recipient := range recipients {
		if recipient == actorID || recipient == "" {
			continue
		}
		events = append(events, domain.NotificationEvent{
			RecipientID: recipient,
			Type:        eventType,
			Title:       "Task moved: " + task.Title,
			Message:     "\"" + task.Title + "\" moved to " + string(dest),
			ActorID:     actorID,
			TaskID:      task.ID,
			Timestamp:   now,
		})
	}
	return events
}

// AssignmentEvent builds the trigger for assigning a task to a user, or nil
// when the assignee is the actor or empty.
func AssignmentEvent(task domain.Task, actorID, assigneeID string) []domain.NotificationEvent {
	if assigneeID == "" || assigneeID == actorID {
		return nil
	}
	return []domain.NotificationEvent{{
		RecipientID: assigneeID,
		Type:        domain.NotifyTaskAssigned,
		Title:       "Task assigned: " + task.Title,
		Message:     "You were assigned \"" + task.Title + "\"",
		ActorID:     actorID,
		TaskID:      task.ID,
		Timestamp:   time.Now().UnixMilli(),
	}}
}
