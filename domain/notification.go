package domain

// NotificationType names the trigger that produced a notification.
type NotificationType string

const (
	NotifyTaskAssigned        NotificationType = "task_assigned"
	NotifyTaskStatusChanged   NotificationType = "task_status_changed"
	NotifyTaskPriorityUpdated NotificationType = "task_priority_updated"
	NotifyTaskMentioned       NotificationType = "task_mentioned"
	NotifyTaskCompleted       NotificationType = "task_completed"
	NotifyUserJoinedBoard     NotificationType = "user_joined_board"
	NotifyUserLeftBoard       NotificationType = "user_left_board"
	NotifyUserEditingTask     NotificationType = "user_editing_task"
)

// AppNotification is a per-recipient inbox row. Clients only ever flip the
// read flag; rows are never deleted from the client side.
type AppNotification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	ActorID   string           `json:"actorId,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt int64            `json:"createdAt"`
}

// NotificationEvent is a trigger enqueued for the notification worker. The
// worker turns it into an AppNotification row for the recipient.
type NotificationEvent struct {
	RecipientID string           `json:"recipientId"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	ActorID     string           `json:"actorId,omitempty"`
	TaskID      string           `json:"taskId,omitempty"`
	Timestamp   int64            `json:"timestamp"`
}
