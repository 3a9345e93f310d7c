package store

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"boardly/domain"
)

// NotificationChannel is the slice of the remote data channel the
// notification store needs.
type NotificationChannel interface {
	SubscribeNotifications(ctx context.Context, userID string, fn func([]domain.AppNotification)) (func(), error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
}

// Notifications holds one recipient's inbox. Rows arrive from external
// triggers; the only client-side mutation is flipping the read flag.
type Notifications struct {
	userID  string
	channel NotificationChannel
	logger  *log.Logger

	mu    sync.RWMutex
	items []domain.AppNotification

	changeMu sync.Mutex
	onChange []func()
}

// NewNotifications creates a notification store for one recipient.
func NewNotifications(userID string, channel NotificationChannel, logger *log.Logger) *Notifications {
	if channel == nil {
		panic("store.NewNotifications: channel is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Notifications{userID: userID, channel: channel, logger: logger}
}

// OnChange registers a callback fired after every snapshot replacement.
func (s *Notifications) OnChange(fn func()) {
	s.changeMu.Lock()
	s.onChange = append(s.onChange, fn)
	s.changeMu.Unlock()
}

// Subscribe attaches the store to the recipient's channel until cancel is
// called.
func (s *Notifications) Subscribe(ctx context.Context) (func(), error) {
	return s.channel.SubscribeNotifications(ctx, s.userID, s.replace)
}

func (s *Notifications) replace(items []domain.AppNotification) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()

	s.changeMu.Lock()
	callbacks := s.onChange
	s.changeMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// Snapshot returns a copy of the inbox, newest first.
func (s *Notifications) Snapshot() []domain.AppNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.AppNotification, len(s.items))
	copy(out, s.items)
	return out
}

// Unread counts notifications not yet marked read.
func (s *Notifications) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, item := range s.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead flips the read flag locally before the remote write and flips it
// back if the write fails. This is the one optimistic update in the system;
// every other mutation waits for the next snapshot.
func (s *Notifications) MarkRead(ctx context.Context, id string) error {
	if !s.setRead(id, true) {
		return nil
	}
	if err := s.channel.MarkNotificationRead(ctx, s.userID, id); err != nil {
		s.setRead(id, false)
		s.logger.Errorf("mark notification read: %v", err)
		return err
	}
	return nil
}

func (s *Notifications) setRead(id string, read bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id && s.items[i].Read != read {
			s.items[i].Read = read
			return true
		}
	}
	return false
}
