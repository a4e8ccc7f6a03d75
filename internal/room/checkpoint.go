package room

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/Cheese-CardDuel/internal/match"
)

const (
	defaultCheckpointTTL = 24 * time.Hour
	checkpointRetries    = 3
)

// Checkpoint is everything needed to rebuild an in-match room: the seats, the
// initial state and the commit log.
type Checkpoint struct {
	RoomID    string         `json:"room_id"`
	CreatorID string         `json:"creator_id"`
	MatchID   string         `json:"match_id"`
	Sequence  uint64         `json:"sequence"`
	Seats     []Session      `json:"seats"`
	Initial   *match.State   `json:"initial"`
	Commits   []match.Commit `json:"commits"`
	Frozen    bool           `json:"frozen,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	SavedAt   time.Time      `json:"saved_at"`
}

// CheckpointStore persists the latest checkpoint per room.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, roomID string) (*Checkpoint, error)
	Delete(ctx context.Context, roomID string) error
	List(ctx context.Context) ([]*Checkpoint, error)
}

type RedisCheckpoints struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCheckpoints(rdb *redis.Client, ttl time.Duration) *RedisCheckpoints {
	if ttl <= 0 {
		ttl = defaultCheckpointTTL
	}
	return &RedisCheckpoints{rdb: rdb, ttl: ttl}
}

func (s *RedisCheckpoints) keyRoom(id string) string { return "duel:room:" + strings.TrimSpace(id) }
func (s *RedisCheckpoints) keyIndex() string         { return "duel:rooms" }

// Save writes cp unless a newer checkpoint of the same match is already stored.
func (s *RedisCheckpoints) Save(ctx context.Context, cp *Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	key := s.keyRoom(cp.RoomID)
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			var prev struct {
				MatchID  string `json:"match_id"`
				Sequence uint64 `json:"sequence"`
			}
			if json.Unmarshal(cur, &prev) == nil && prev.MatchID == cp.MatchID && prev.Sequence > cp.Sequence {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			pipe.SAdd(ctx, s.keyIndex(), cp.RoomID)
			pipe.Expire(ctx, s.keyIndex(), s.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < checkpointRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func (s *RedisCheckpoints) Load(ctx context.Context, roomID string) (*Checkpoint, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(roomID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *RedisCheckpoints) Delete(ctx context.Context, roomID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.keyRoom(roomID))
	pipe.SRem(ctx, s.keyIndex(), roomID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns every stored checkpoint. Index entries whose key expired are pruned.
func (s *RedisCheckpoints) List(ctx context.Context) ([]*Checkpoint, error) {
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []*Checkpoint
	for _, id := range ids {
		cp, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if cp == nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		out = append(out, cp)
	}
	return out, nil
}
