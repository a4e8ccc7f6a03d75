package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestStaticEmbeddedPool(t *testing.T) {
	s, err := NewStatic("")
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	c, err := s.GetCard(context.Background(), "cinder_mage")
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if c.Kind != KindAlly || c.Cost != 2 || len(c.AbilitiesFor(OnPlay)) != 1 {
		t.Fatalf("unexpected definition: %+v", c)
	}
	if _, err := s.GetCard(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseStaticRejectsUnknownKind(t *testing.T) {
	_, err := ParseStatic([]byte("cards:\n  - id: x\n    kind: relic\n"))
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestSetJSONKeepsDefinitions(t *testing.T) {
	s := NewSet(&Card{ID: "b", Kind: KindAlly}, &Card{ID: "a", Kind: KindSpell})
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Set
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ids := back.IDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Fatalf("ids = %v", ids)
	}
}

type countingSource struct {
	calls int
	card  *Card
}

func (c *countingSource) GetCard(_ context.Context, id string) (*Card, error) {
	c.calls++
	if id != c.card.ID {
		return nil, ErrNotFound
	}
	return c.card, nil
}

func TestRedisCacheReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	src := &countingSource{card: &Card{ID: "ash_hound", Kind: KindAlly, Cost: 2, Attack: 2, Health: 2}}
	cache := NewRedisCache(rdb, src, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := cache.GetCard(ctx, "ash_hound")
		if err != nil { t.Fatalf("GetCard #%d: %v", i, err) }
		if c.Attack != 2 { t.Fatalf("attack = %d", c.Attack) }
	}
	if src.calls != 1 {
		t.Fatalf("backing source called %d times, want 1", src.calls)
	}
	if _, err := cache.GetCard(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := cache.Invalidate(ctx, "ash_hound"); err != nil { t.Fatalf("Invalidate: %v", err) }
	if _, err := cache.GetCard(ctx, "ash_hound"); err != nil { t.Fatalf("GetCard after invalidate: %v", err) }
	if src.calls != 3 {
		t.Fatalf("calls = %d, want 3", src.calls)
	}
}
