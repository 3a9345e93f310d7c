// Package notify turns board activity into per-recipient inbox rows. The
// sender hands trigger events to a worker pool feeding the notification
// queue; the worker drains that queue into the notifications table.
package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"boardly/domain"
)

// Enqueuer sends trigger events to the notification queue.
type Enqueuer interface {
	EnqueueNotificationEvents(ctx context.Context, events []domain.NotificationEvent) error
}

// Sender buffers trigger events and forwards them to the queue from a pool
// of workers, so request handlers never wait on queue round trips. When the
// buffer is saturated the caller falls back to enqueueing inline.
type Sender struct {
	enqueuer Enqueuer
	logger   *log.Logger

	jobs           chan []domain.NotificationEvent
	enqueueTimeout time.Duration
	handoffTimeout time.Duration

	closeOnce sync.Once
	workerWG  sync.WaitGroup
}

// SenderConfig sizes the sender pool. Zero values fall back to defaults.
type SenderConfig struct {
	Workers        int
	Buffer         int
	EnqueueTimeout time.Duration
	HandoffTimeout time.Duration
}

// NewSender starts the worker pool.
func NewSender(enqueuer Enqueuer, logger *log.Logger, cfg SenderConfig) *Sender {
	if enqueuer == nil {
		panic("notify.NewSender: enqueuer is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 60 * time.Second
	}
	if cfg.HandoffTimeout < 0 {
		cfg.HandoffTimeout = 0
	}

	s := &Sender{
		enqueuer:       enqueuer,
		logger:         logger,
		jobs:           make(chan []domain.NotificationEvent, cfg.Buffer),
		enqueueTimeout: cfg.EnqueueTimeout,
		handoffTimeout: cfg.HandoffTimeout,
	}
	for i := 0; i < cfg.Workers; i++ {
		s.workerWG.Add(1)
		go s.worker(i)
	}
	logger.Infof("notification sender started, workers: %d, buffer: %d", cfg.Workers, cfg.Buffer)
	return s
}

func (s *Sender) worker(id int) {
	defer s.workerWG.Done()
	for events := range s.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), s.enqueueTimeout)
		err := s.enqueuer.EnqueueNotificationEvents(ctx, events)
		cancel()
		if err != nil {
			s.logger.Errorf("notification enqueue failed, err: %v, count: %d, worker: %d", err, len(events), id)
		}
	}
}

// Send hands the events to the pool, waiting at most the handoff timeout for
// buffer space. When the pool is saturated it enqueues inline so triggers
// are not silently dropped.
func (s *Sender) Send(ctx context.Context, events []domain.NotificationEvent) {
	if len(events) == 0 {
		return
	}
	if s.trySend(events) {
		return
	}

	s.logger.Warn("notification buffer saturated; enqueueing inline")
	enqueueCtx, cancel := context.WithTimeout(ctx, s.enqueueTimeout)
	defer cancel()
	if err := s.enqueuer.EnqueueNotificationEvents(enqueueCtx, events); err != nil {
		s.logger.Errorf("inline notification enqueue failed: %v", err)
	}
}

func (s *Sender) trySend(events []domain.NotificationEvent) (ok bool) {
	// Send on a closed channel panics; treat it as a failed handoff.
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	select {
	case s.jobs <- events:
		return true
	default:
	}

	if s.handoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(s.handoffTimeout)
	defer timer.Stop()
	select {
	case s.jobs <- events:
		return true
	case <-timer.C:
		return false
	}
}

// Close stops accepting work and waits for the workers to drain the buffer.
func (s *Sender) Close() {
	s.closeOnce.Do(func() {
		close(s.jobs)
	})
	s.workerWG.Wait()
}
