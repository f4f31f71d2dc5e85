package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"teamassist/internal/models"
	"teamassist/internal/platform"
)

const (
	rosterKeyPrefix  = "roster:"
	defaultRosterTTL = 30 * time.Minute
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RosterCache caches conversation member lists in redis in front of a slower
// roster source. Cache failures fall through to the source; source results
// are written back best effort.
type RosterCache struct {
	kv     kvStore
	source platform.Roster
	ttl    time.Duration
	logger *zap.Logger
}

// NewRosterCache wraps source with a redis-backed cache. ttl <= 0 uses the
// default.
func NewRosterCache(kv kvStore, source platform.Roster, ttl time.Duration, logger *zap.Logger) *RosterCache {
	if ttl <= 0 {
		ttl = defaultRosterTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterCache{kv: kv, source: source, ttl: ttl, logger: logger}
}

func (r *RosterCache) ListParticipants(ctx context.Context, conversationID string) ([]models.Participant, error) {
	key := rosterKeyPrefix + conversationID
	if raw, err := r.kv.Get(ctx, key); err == nil {
		var members []models.Participant
		if err := json.Unmarshal([]byte(raw), &members); err == nil {
			return members, nil
		}
		r.logger.Warn("corrupt roster cache entry", zap.String("key", key))
	} else if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("roster cache read failed", zap.String("key", key), zap.Error(err))
	}

	members, err := r.source.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(members); err == nil {
		if err := r.kv.Set(ctx, key, payload, r.ttl); err != nil {
			r.logger.Warn("roster cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return members, nil
}
