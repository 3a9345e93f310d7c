package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"boardly/domain"
)

// boardPartition keys every task row; the board is shared by all users.
const boardPartition = "board"

const (
	edmInt64 = "Edm.Int64"
)

// ErrNotFound is returned when a task or notification row does not exist.
var ErrNotFound = errors.New("storage: entity not found")

// Storage is the remote data channel: tasks and notifications live in Azure
// Tables, the notification trigger queue in Azure Queue Storage, and the
// ephemeral presence map plus the update broadcast channel in Redis.
type Storage struct {
	taskTable         *aztables.Client
	notificationTable *aztables.Client
	eventQueue        *azqueue.QueueClient
	redis             *redis.Client
	updatesChannel    string

	// now is swapped out in tests.
	now func() time.Time
}

// New creates a Storage from an Azure connection string, table/queue names,
// a Redis client for presence and broadcasts, and the pub/sub channel name.
func New(connStr, tasksTable, notificationsTable, eventQueue string, rc *redis.Client, updatesChannel string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:         svc.NewClient(tasksTable),
		notificationTable: svc.NewClient(notificationsTable),
		eventQueue:        eq,
		redis:             rc,
		updatesChannel:    updatesChannel,
		now:               time.Now,
	}, nil
}

type taskEntity struct {
	PartitionKey  string `json:"PartitionKey"`
	RowKey        string `json:"RowKey"`
	Title         string `json:"Title"`
	Description   string `json:"Description,omitempty"`
	Status        string `json:"Status"`
	Priority      string `json:"Priority"`
	Labels        string `json:"Labels,omitempty"`
	AssignedTo    string `json:"AssignedTo,omitempty"`
	Order         int    `json:"Order"`
	CreatedAt     int64  `json:"CreatedAt,string"`
	CreatedAtType string `json:"CreatedAt@odata.type"`
	UpdatedAt     int64  `json:"UpdatedAt,string"`
	UpdatedAtType string `json:"UpdatedAt@odata.type"`
}

type taskMergeEntity struct {
	PartitionKey  string  `json:"PartitionKey"`
	RowKey        string  `json:"RowKey"`
	Title         *string `json:"Title,omitempty"`
	Description   *string `json:"Description,omitempty"`
	Status        *string `json:"Status,omitempty"`
	Priority      *string `json:"Priority,omitempty"`
	Labels        *string `json:"Labels,omitempty"`
	AssignedTo    *string `json:"AssignedTo,omitempty"`
	Order         *int    `json:"Order,omitempty"`
	UpdatedAt     int64   `json:"UpdatedAt,string"`
	UpdatedAtType string  `json:"UpdatedAt@odata.type"`
}

func decodeTaskEntity(data []byte) (domain.Task, error) {
	var ent taskEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Status:      domain.Column(ent.Status),
		Priority:    domain.Priority(ent.Priority),
		AssignedTo:  ent.AssignedTo,
		Order:       ent.Order,
		CreatedAt:   ent.CreatedAt,
		UpdatedAt:   ent.UpdatedAt,
	}
	if ent.Labels != "" {
		if err := json.Unmarshal([]byte(ent.Labels), &t.Labels); err != nil {
			return domain.Task{}, err
		}
	}
	return t, nil
}

// FetchTasks returns the full board snapshot ordered by creation time, the
// same ordering every subscriber observes.
func (s *Storage) FetchTasks(ctx context.Context) ([]domain.Task, error) {
	filter := "PartitionKey eq '" + boardPartition + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			t, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt < tasks[j].CreatedAt })
	return tasks, nil
}

// CreateTask inserts a new task row, stamping server-side timestamps, and
// broadcasts a task update.
func (s *Storage) CreateTask(ctx context.Context, draft domain.TaskDraft) (string, error) {
	id := uuid.NewString()
	now := s.now().UnixMilli()
	ent := taskEntity{
		PartitionKey:  boardPartition,
		RowKey:        id,
		Title:         draft.Title,
		Description:   draft.Description,
		Status:        string(draft.Status),
		Priority:      string(draft.Priority),
		AssignedTo:    draft.AssignedTo,
		Order:         draft.Order,
		CreatedAt:     now,
		CreatedAtType: edmInt64,
		UpdatedAt:     now,
		UpdatedAtType: edmInt64,
	}
	if len(draft.Labels) > 0 {
		labels, err := json.Marshal(draft.Labels)
		if err != nil {
			return "", err
		}
		ent.Labels = string(labels)
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return "", err
	}
	if _, err := s.taskTable.AddEntity(ctx, payload, nil); err != nil {
		return "", err
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindTasks})
	return id, nil
}

// PatchTask merges the non-nil patch fields into the task row, refreshes the
// server-side UpdatedAt stamp, and broadcasts a task update.
func (s *Storage) PatchTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	ent := taskMergeEntity{
		PartitionKey:  boardPartition,
		RowKey:        id,
		Title:         patch.Title,
		Description:   patch.Description,
		Priority:      (*string)(patch.Priority),
		AssignedTo:    patch.AssignedTo,
		Order:         patch.Order,
		UpdatedAt:     s.now().UnixMilli(),
		UpdatedAtType: edmInt64,
	}
	if patch.Status != nil {
		status := string(*patch.Status)
		ent.Status = &status
	}
	if patch.Labels != nil {
		labels, err := json.Marshal(*patch.Labels)
		if err != nil {
			return err
		}
		encoded := string(labels)
		ent.Labels = &encoded
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeMerge,
	})
	if err != nil {
		return translateTableError(err)
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindTasks})
	return nil
}

// DeleteTask removes the task row outright and broadcasts a task update.
// There is no soft delete.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.taskTable.DeleteEntity(ctx, boardPartition, id, nil); err != nil {
		return translateTableError(err)
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindTasks})
	return nil
}

func translateTableError(err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == 404 {
		return ErrNotFound
	}
	return err
}
