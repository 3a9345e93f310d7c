package api

import (
	"context"

	"boardly/domain"
)

// Tasks is the board-wide task store consumed by handlers.
type Tasks interface {
	Snapshot() []domain.Task
	Add(ctx context.Context, draft domain.TaskDraft) (string, error)
	Update(ctx context.Context, id string, patch domain.TaskPatch) error
	Remove(ctx context.Context, id string) error
	Move(ctx context.Context, mv domain.Move) ([]domain.Patch, error)
	OnChange(fn func())
}

// Presence is the board-wide presence store consumed by handlers.
type Presence interface {
	Snapshot() map[string]domain.PresenceEntry
	Viewers(selfUserID string) map[string][]domain.Viewer
	SetOnline(ctx context.Context, userID, displayName string) error
	SetOffline(ctx context.Context, userID string) error
	Remove(ctx context.Context, userID string) error
	SetViewing(ctx context.Context, userID, taskID string, isViewing bool) error
	OnChange(fn func())
}

// Notifications is the per-recipient slice of the remote data channel used
// by the notification endpoints.
type Notifications interface {
	SubscribeNotifications(ctx context.Context, userID string, fn func([]domain.AppNotification)) (func(), error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

// Authenticator is implemented by types able to extract user IDs from
// Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate move submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the move fails.
	Remove(ctx context.Context, userID, key string) error
}

// Notifier fans out notification trigger events from board activity.
type Notifier interface {
	Send(ctx context.Context, events []domain.NotificationEvent)
}
