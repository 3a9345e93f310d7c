package storage

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"boardly/domain"
)

const (
	kindTasks         = "tasks"
	kindPresence      = "presence"
	kindNotifications = "notifications"
)

// updateEvent is the broadcast published after every mutation. Subscribers
// re-fetch a full snapshot on receipt; the event itself carries no data.
type updateEvent struct {
	Kind   string `json:"kind"`
	UserID string `json:"userId,omitempty"`
}

// publishUpdate is best effort: a lost broadcast only delays subscribers
// until the next one, so failures are logged and dropped.
func (s *Storage) publishUpdate(ctx context.Context, ev updateEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("marshal update event: %v", err)
		return
	}
	if err := s.redis.Publish(ctx, s.updatesChannel, payload).Err(); err != nil {
		log.Errorf("publish update: %v", err)
	}
}

// SubscribeTasks delivers the current task snapshot, then a fresh snapshot
// after every task mutation, until the returned cancel func is called.
func (s *Storage) SubscribeTasks(ctx context.Context, fn func([]domain.Task)) (func(), error) {
	return s.subscribe(ctx, func(ev updateEvent) bool {
		return ev.Kind == kindTasks
	}, func(ctx context.Context) error {
		tasks, err := s.FetchTasks(ctx)
		if err != nil {
			return err
		}
		fn(tasks)
		return nil
	})
}

// SubscribePresence delivers the full presence map initially and after every
// presence write.
func (s *Storage) SubscribePresence(ctx context.Context, fn func(map[string]domain.PresenceEntry)) (func(), error) {
	return s.subscribe(ctx, func(ev updateEvent) bool {
		return ev.Kind == kindPresence
	}, func(ctx context.Context) error {
		presence, err := s.FetchPresence(ctx)
		if err != nil {
			return err
		}
		fn(presence)
		return nil
	})
}

// SubscribeNotifications delivers the recipient's inbox initially and after
// every notification write addressed to them.
func (s *Storage) SubscribeNotifications(ctx context.Context, userID string, fn func([]domain.AppNotification)) (func(), error) {
	return s.subscribe(ctx, func(ev updateEvent) bool {
		return ev.Kind == kindNotifications && ev.UserID == userID
	}, func(ctx context.Context) error {
		notifications, err := s.FetchNotifications(ctx, userID)
		if err != nil {
			return err
		}
		fn(notifications)
		return nil
	})
}

// subscribe runs the pub/sub loop: one initial delivery, then one re-fetch
// per matching broadcast. A failed fetch is logged and skipped; the listener
// keeps running on the stale snapshot. The loop reconnects if the pub/sub
// channel closes underneath it.
func (s *Storage) subscribe(ctx context.Context, match func(updateEvent) bool, deliver func(context.Context) error) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	sub := s.redis.Subscribe(ctx, s.updatesChannel)
	// Confirm the subscription before the initial snapshot so no update
	// published after it can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, err
	}

	go func() {
		defer func() {
			if err := sub.Close(); err != nil {
				log.Errorf("close subscription: %v", err)
			}
		}()

		if err := deliver(ctx); err != nil && ctx.Err() == nil {
			log.Errorf("initial snapshot: %v", err)
		}

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					if ctx.Err() != nil {
						return
					}
					log.Error("pubsub channel closed, reconnecting")
					time.Sleep(time.Second)
					sub = s.redis.Subscribe(ctx, s.updatesChannel)
					ch = sub.Channel()
					continue
				}
				var ev updateEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Errorf("unable to parse update: %v", err)
					continue
				}
				if !match(ev) {
					continue
				}
				if err := deliver(ctx); err != nil && ctx.Err() == nil {
					log.Errorf("fetch snapshot: %v", err)
				}
			}
		}
	}()

	return cancel, nil
}
