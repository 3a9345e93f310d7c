package store

import (
	"context"
	"errors"
	"sync"

	"boardly/domain"
)

// fakeChannel implements the three channel slices in memory. Subscriptions
// deliver whatever push() hands them; mutations are recorded for assertions
// and can be made to fail.
type fakeChannel struct {
	mu sync.Mutex

	taskFn         func([]domain.Task)
	presenceFn     func(map[string]domain.PresenceEntry)
	notificationFn func([]domain.AppNotification)

	created        []domain.TaskDraft
	patched        []recordedPatch
	deleted        []string
	presenceWrites []recordedPresenceWrite
	presenceDels   []string
	markedRead     []string

	failPatch    bool
	failMarkRead bool
	cancelled    int
}

type recordedPatch struct {
	id    string
	patch domain.TaskPatch
}

type recordedPresenceWrite struct {
	userID string
	fields domain.PresenceWrite
}

var errFakeWrite = errors.New("injected write failure")

func (f *fakeChannel) SubscribeTasks(ctx context.Context, fn func([]domain.Task)) (func(), error) {
	f.mu.Lock()
	f.taskFn = fn
	f.mu.Unlock()
	return func() { f.mu.Lock(); f.cancelled++; f.taskFn = nil; f.mu.Unlock() }, nil
}

func (f *fakeChannel) CreateTask(ctx context.Context, draft domain.TaskDraft) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, draft)
	return "task-new", nil
}

func (f *fakeChannel) PatchTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPatch {
		return errFakeWrite
	}
	f.patched = append(f.patched, recordedPatch{id: id, patch: patch})
	return nil
}

func (f *fakeChannel) DeleteTask(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeChannel) SubscribePresence(ctx context.Context, fn func(map[string]domain.PresenceEntry)) (func(), error) {
	f.mu.Lock()
	f.presenceFn = fn
	f.mu.Unlock()
	return func() { f.mu.Lock(); f.cancelled++; f.presenceFn = nil; f.mu.Unlock() }, nil
}

func (f *fakeChannel) WritePresence(ctx context.Context, userID string, fields domain.PresenceWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presenceWrites = append(f.presenceWrites, recordedPresenceWrite{userID: userID, fields: fields})
	return nil
}

func (f *fakeChannel) DeletePresence(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presenceDels = append(f.presenceDels, userID)
	return nil
}

func (f *fakeChannel) SubscribeNotifications(ctx context.Context, userID string, fn func([]domain.AppNotification)) (func(), error) {
	f.mu.Lock()
	f.notificationFn = fn
	f.mu.Unlock()
	return func() { f.mu.Lock(); f.cancelled++; f.notificationFn = nil; f.mu.Unlock() }, nil
}

func (f *fakeChannel) MarkNotificationRead(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMarkRead {
		return errFakeWrite
	}
	f.markedRead = append(f.markedRead, id)
	return nil
}

func (f *fakeChannel) pushTasks(tasks []domain.Task) {
	f.mu.Lock()
	fn := f.taskFn
	f.mu.Unlock()
	if fn != nil {
		fn(tasks)
	}
}

func (f *fakeChannel) pushPresence(entries map[string]domain.PresenceEntry) {
	f.mu.Lock()
	fn := f.presenceFn
	f.mu.Unlock()
	if fn != nil {
		fn(entries)
	}
}

func (f *fakeChannel) pushNotifications(items []domain.AppNotification) {
	f.mu.Lock()
	fn := f.notificationFn
	f.mu.Unlock()
	if fn != nil {
		fn(items)
	}
}
