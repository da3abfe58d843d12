package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

const (
	presenceKeyPrefix = "presence:"
	onlineSetKey      = "online_users"
)

// PresenceService stores last-known presence in Redis: one TTL'd key per
// user plus a set of online user ids. Socket connects refresh the key;
// the TTL covers crashed servers that never report a disconnect.
type PresenceService struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

func NewPresenceService(redisClient *redis.Client, logger *zap.Logger) *PresenceService {
	return &PresenceService{
		redis:  redisClient,
		logger: logger,
		ttl:    120 * time.Second,
	}
}

func (ps *PresenceService) SetTTL(ttl time.Duration) {
	ps.ttl = ttl
}

// SetOnline records a user as online.
func (ps *PresenceService) SetOnline(ctx context.Context, userID string) error {
	now := time.Now()
	return ps.write(ctx, model.Presence{UserID: userID, Status: model.PresenceOnline, LastSeen: &now}, true)
}

// SetOffline records a user as offline, keeping the last-seen timestamp.
func (ps *PresenceService) SetOffline(ctx context.Context, userID string) error {
	now := time.Now()
	return ps.write(ctx, model.Presence{UserID: userID, Status: model.PresenceOffline, LastSeen: &now}, false)
}

func (ps *PresenceService) write(ctx context.Context, presence model.Presence, online bool) error {
	data, err := json.Marshal(presence)
	if err != nil {
		return fmt.Errorf("failed to marshal presence data: %w", err)
	}

	key := presenceKeyPrefix + presence.UserID

	// Pipeline so the key and the online set move together.
	pipe := ps.redis.Pipeline()
	pipe.Set(ctx, key, data, ps.ttl)
	if online {
		pipe.SAdd(ctx, onlineSetKey, presence.UserID)
		pipe.Expire(ctx, onlineSetKey, ps.ttl*2)
	} else {
		pipe.SRem(ctx, onlineSetKey, presence.UserID)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update presence: %w", err)
	}

	ps.logger.Debug("presence updated",
		zap.String("user_id", presence.UserID),
		zap.String("status", presence.Status),
	)
	return nil
}

// Get returns the last-known presence for a user. Unknown or expired users
// read as offline.
func (ps *PresenceService) Get(ctx context.Context, userID string) (model.Presence, error) {
	key := presenceKeyPrefix + userID

	data, err := ps.redis.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return model.Presence{UserID: userID, Status: model.PresenceOffline}, nil
		}
		return model.Presence{}, fmt.Errorf("failed to get presence: %w", err)
	}

	var presence model.Presence
	if err := json.Unmarshal([]byte(data), &presence); err != nil {
		return model.Presence{}, fmt.Errorf("failed to unmarshal presence data: %w", err)
	}

	// A stale record past its refresh window reads as offline.
	if presence.LastSeen != nil && time.Since(*presence.LastSeen) > ps.ttl {
		presence.Status = model.PresenceOffline
	}
	return presence, nil
}
