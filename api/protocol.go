package api

const moveRequestMaxSize = 16 * 1024 // 16 KiB
const taskRequestMaxSize = 64 * 1024 // 64 KiB

// POST /api/tasks/:id/move request body.
type moveRequest struct {
	SourceColumn string `json:"sourceColumn"`
	SourceIndex  int    `json:"sourceIndex"`
	DestColumn   string `json:"destColumn"`
	DestIndex    int    `json:"destIndex"`
}

// POST /api/tasks/:id/move response body.
type moveResponse struct {
	IdempotencyKey string `json:"idempotencyKey"`
	Patches        int    `json:"patches"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	Error          string `json:"error,omitempty"`
}

// POST /api/tasks response body.
type createTaskResponse struct {
	ID string `json:"id"`
}

// POST /api/presence/online request body.
type presenceOnlineRequest struct {
	DisplayName string `json:"displayName"`
}

// POST /api/presence/viewing request body.
type viewingRequest struct {
	TaskID  string `json:"taskId"`
	Viewing bool   `json:"viewing"`
}

// Payload framing for the presence SSE stream.
type presencePayload struct {
	Presence map[string]presenceEntryJSON `json:"presence"`
	Viewers  map[string][]viewerJSON      `json:"viewers"`
}

type presenceEntryJSON struct {
	DisplayName        string `json:"displayName"`
	Online             bool   `json:"online"`
	LastSeen           int64  `json:"lastSeen"`
	CurrentTaskViewing string `json:"currentTaskViewing,omitempty"`
}

type viewerJSON struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// Payload framing for the notifications SSE stream.
type notificationsPayload struct {
	Notifications []notificationJSON `json:"notifications"`
	Unread        int                `json:"unread"`
}

type notificationJSON struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ActorID   string `json:"actorId,omitempty"`
	Read      bool   `json:"read"`
	CreatedAt int64  `json:"createdAt"`
}
