// Package store persists the last-known PriceRecord and RefreshState per
// tracked game in Redis, so a restart resumes with stale-but-available data
// instead of an empty slate. Everything here is best-effort: a lost
// snapshot only means the coordinator starts from Idle again.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"keywatch/internal/model"
)

const snapshotTTL = 7 * 24 * time.Hour

type SnapshotStore struct {
	Client *redis.Client
}

type snapshotDoc struct {
	Record *model.PriceRecord  `json:"record,omitempty"`
	State  *model.RefreshState `json:"state,omitempty"`
}

func key(game model.TrackedGame) string {
	return "keywatch:snapshot:" + game.ProductID + ":" + string(game.Currency)
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, game model.TrackedGame, rec *model.PriceRecord, state *model.RefreshState) error {
	b, err := json.Marshal(snapshotDoc{Record: rec, State: state})
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, key(game), b, snapshotTTL).Err()
}

// LoadSnapshot returns (nil, nil, nil) when no snapshot exists.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, game model.TrackedGame) (*model.PriceRecord, *model.RefreshState, error) {
	val, err := s.Client.Get(ctx, key(game)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	var doc snapshotDoc
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return nil, nil, err
	}
	return doc.Record, doc.State, nil
}
