package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/google/uuid"

	"boardly/domain"
)

type notificationEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Type          string `json:"Type"`
	Title         string `json:"Title"`
	Message       string `json:"Message,omitempty"`
	ActorID       string `json:"ActorId,omitempty"`
	Read          bool   `json:"Read"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
}

// escapeFilterValue doubles single quotes so a value can be embedded in an
// OData filter string literal.
func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

// FetchNotifications returns the recipient's inbox, newest first. The user id
// comes from the JWT sub claim, so it is escaped before it reaches the filter.
func (s *Storage) FetchNotifications(ctx context.Context, userID string) ([]domain.AppNotification, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(userID) + "'"
	pager := s.notificationTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	notifications := []domain.AppNotification{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent notificationEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			notifications = append(notifications, domain.AppNotification{
				ID:        ent.RowKey,
				UserID:    ent.PartitionKey,
				Type:      domain.NotificationType(ent.Type),
				Title:     ent.Title,
				Message:   ent.Message,
				ActorID:   ent.ActorID,
				Read:      ent.Read,
				CreatedAt: ent.CreatedAt,
			})
		}
	}
	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt > notifications[j].CreatedAt
	})
	return notifications, nil
}

// InsertNotification writes a new inbox row for the recipient and broadcasts
// the recipient's notification channel.
func (s *Storage) InsertNotification(ctx context.Context, n domain.AppNotification) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = s.now().UnixMilli()
	}
	ent := notificationEntity{
		PartitionKey:  n.UserID,
		RowKey:        n.ID,
		Type:          string(n.Type),
		Title:         n.Title,
		Message:       n.Message,
		ActorID:       n.ActorID,
		Read:          n.Read,
		CreatedAt:     n.CreatedAt,
		CreatedAtType: edmInt64,
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	if _, err := s.notificationTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindNotifications, UserID: n.UserID})
	return n.ID, nil
}

// MarkNotificationRead flips the read flag on one inbox row. The read flag is
// the only field clients ever mutate.
func (s *Storage) MarkNotificationRead(ctx context.Context, userID, id string) error {
	ent := struct {
		PartitionKey string `json:"PartitionKey"`
		RowKey       string `json:"RowKey"`
		Read         bool   `json:"Read"`
	}{PartitionKey: userID, RowKey: id, Read: true}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.notificationTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		return translateTableError(err)
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindNotifications, UserID: userID})
	return nil
}

// EnqueueNotificationEvents sends trigger events to the notification queue
// for the worker to turn into inbox rows.
func (s *Storage) EnqueueNotificationEvents(ctx context.Context, events []domain.NotificationEvent) error {
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

// DequeueNotificationEvent retrieves a single trigger event, or nil when the
// queue is empty. Delete must be called once the event is processed.
func (s *Storage) DequeueNotificationEvent(ctx context.Context) (*domain.NotificationEvent, string, string, error) {
	resp, err := s.eventQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, "", "", err
	}
	if len(resp.Messages) == 0 {
		return nil, "", "", nil
	}
	msg := resp.Messages[0]
	var ev domain.NotificationEvent
	if err := json.Unmarshal([]byte(*msg.MessageText), &ev); err != nil {
		// Malformed payloads are returned without an event so the caller
		// deletes them instead of redelivering them forever.
		return nil, *msg.MessageID, *msg.PopReceipt, nil
	}
	return &ev, *msg.MessageID, *msg.PopReceipt, nil
}

// DeleteNotificationEvent removes a processed trigger from the queue.
func (s *Storage) DeleteNotificationEvent(ctx context.Context, id, receipt string) error {
	_, err := s.eventQueue.DeleteMessage(ctx, id, receipt, nil)
	return err
}
