package archive

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryRepository keeps records in process. Used when no database is configured.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string][]byte)}
}

// 저장 시 JSON으로 복사해 호출자와 공유하지 않는다.
func (m *MemoryRepository) SaveMatch(_ context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.MatchID] = raw
	return nil
}

func (m *MemoryRepository) GetMatch(_ context.Context, matchID string) (*Record, error) {
	m.mu.RLock()
	raw, ok := m.records[matchID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *MemoryRepository) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*Record, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var out []*Record
	for _, id := range ids {
		rec, err := m.GetMatch(ctx, id)
		if err != nil {
			continue
		}
		if rec.Players[0] == playerID || rec.Players[1] == playerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FinishedAt.Equal(out[j].FinishedAt) {
			return out[i].FinishedAt.After(out[j].FinishedAt)
		}
		return out[i].MatchID > out[j].MatchID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
