package storage

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"boardly/domain"
)

const (
	presenceKeyPrefix = "presence:"
	presenceIndexKey  = "presence:index"

	fieldDisplayName = "displayName"
	fieldOnline      = "online"
	fieldLastSeen    = "lastSeen"
	fieldViewing     = "currentTaskViewing"
)

// WritePresence merges fields into the user's presence slot. Each field is
// last-write-wins; no history is kept.
func (s *Storage) WritePresence(ctx context.Context, userID string, fields domain.PresenceWrite) error {
	key := presenceKeyPrefix + userID
	hset := map[string]any{}
	if fields.DisplayName != nil {
		hset[fieldDisplayName] = *fields.DisplayName
	}
	if fields.Online != nil {
		hset[fieldOnline] = strconv.FormatBool(*fields.Online)
	}
	if fields.LastSeen != nil {
		hset[fieldLastSeen] = strconv.FormatInt(*fields.LastSeen, 10)
	}
	if fields.Viewing != nil {
		hset[fieldViewing] = *fields.Viewing
	}

	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(hset) > 0 {
			pipe.HSet(ctx, key, hset)
		}
		if fields.ClearViewing {
			pipe.HDel(ctx, key, fieldViewing)
		}
		pipe.SAdd(ctx, presenceIndexKey, userID)
		return nil
	})
	if err != nil {
		return err
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindPresence})
	return nil
}

// DeletePresence hard-deletes the user's presence slot (logout).
func (s *Storage) DeletePresence(ctx context.Context, userID string) error {
	_, err := s.redis.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, presenceKeyPrefix+userID)
		pipe.SRem(ctx, presenceIndexKey, userID)
		return nil
	})
	if err != nil {
		return err
	}
	s.publishUpdate(ctx, updateEvent{Kind: kindPresence})
	return nil
}

// FetchPresence returns the full presence map keyed by user id.
func (s *Storage) FetchPresence(ctx context.Context) (map[string]domain.PresenceEntry, error) {
	userIDs, err := s.redis.SMembers(ctx, presenceIndexKey).Result()
	if err != nil {
		return nil, err
	}
	entries := make(map[string]domain.PresenceEntry, len(userIDs))
	for _, userID := range userIDs {
		fields, err := s.redis.HGetAll(ctx, presenceKeyPrefix+userID).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// Slot expired or deleted between SMEMBERS and HGETALL.
			continue
		}
		entry := domain.PresenceEntry{
			UserID:             userID,
			DisplayName:        fields[fieldDisplayName],
			CurrentTaskViewing: fields[fieldViewing],
		}
		entry.Online, _ = strconv.ParseBool(fields[fieldOnline])
		entry.LastSeen, _ = strconv.ParseInt(fields[fieldLastSeen], 10, 64)
		entries[userID] = entry
	}
	return entries, nil
}
