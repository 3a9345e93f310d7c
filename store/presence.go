package store

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"boardly/domain"
)

// PresenceChannel is the slice of the remote data channel the presence store
// needs.
type PresenceChannel interface {
	SubscribePresence(ctx context.Context, fn func(map[string]domain.PresenceEntry)) (func(), error)
	WritePresence(ctx context.Context, userID string, fields domain.PresenceWrite) error
	DeletePresence(ctx context.Context, userID string) error
}

// Presence holds the in-memory presence map. Writes are best effort: session
// lifecycle signals fire them with no delivery guarantee and no retry, so a
// hard disconnect leaves a stale online entry behind.
type Presence struct {
	channel PresenceChannel
	logger  *log.Logger
	now     func() time.Time

	mu      sync.RWMutex
	entries map[string]domain.PresenceEntry

	changeMu sync.Mutex
	onChange []func()
}

// NewPresence creates a presence store over the given channel.
func NewPresence(channel PresenceChannel, logger *log.Logger) *Presence {
	if channel == nil {
		panic("store.NewPresence: channel is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Presence{channel: channel, logger: logger, now: time.Now}
}

// OnChange registers a callback fired after every snapshot replacement.
func (s *Presence) OnChange(fn func()) {
	s.changeMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.changeMu.Unlock()
}

// Subscribe attaches the store to the channel until cancel is called. Each
// delivery replaces the full map.
func (s *Presence) Subscribe(ctx context.Context) (func(), error) {
	return s.channel.SubscribePresence(ctx, s.replace)
}

func (s *Presence) replace(entries map[string]domain.PresenceEntry) {
	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.changeMu.Lock()
	callbacks := s.onChange
	s.changeMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Snapshot returns a copy of the current presence map.
func (s *Presence) Snapshot() map[string]domain.PresenceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.PresenceEntry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Viewers projects the current map into taskID -> other users viewing it.
func (s *Presence) Viewers(selfUserID string) map[string][]domain.Viewer {
	return domain.Viewers(s.Snapshot(), selfUserID)
}

// SetOnline marks the user online with a fresh lastSeen stamp.
func (s *Presence) SetOnline(ctx context.Context, userID, displayName string) error {
	online := true
	lastSeen := s.now().UnixMilli()
	return s.channel.WritePresence(ctx, userID, domain.PresenceWrite{
		DisplayName: &displayName,
		Online:      &online,
		LastSeen:    &lastSeen,
	})
}

// SetOffline writes a soft offline marker. The slot survives so lastSeen
// stays readable.
func (s *Presence) SetOffline(ctx context.Context, userID string) error {
	online := false
	lastSeen := s.now().UnixMilli()
	return s.channel.WritePresence(ctx, userID, domain.PresenceWrite{
		Online:   &online,
		LastSeen: &lastSeen,
	})
}

// Remove hard-deletes the user's presence slot, used on logout.
func (s *Presence) Remove(ctx context.Context, userID string) error {
	return s.channel.DeletePresence(ctx, userID)
}

// SetViewing points the user's own slot at the task whose dialog they have
// open, or clears the pointer when the dialog closes.
func (s *Presence) SetViewing(ctx context.Context, userID, taskID string, isViewing bool) error {
	if isViewing {
		return s.channel.WritePresence(ctx, userID, domain.PresenceWrite{Viewing: &taskID})
	}
	return s.channel.WritePresence(ctx, userID, domain.PresenceWrite{ClearViewing: true})
}
