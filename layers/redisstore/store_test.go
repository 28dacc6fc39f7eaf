package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cachetower/cachetower"
)

func newTestLayer(t *testing.T) (*Layer[string], *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New[string](client), client
}

func TestLayerSetHashThenGetValue(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	entry := cachetower.NewCacheSetEntry(map[string]string{"a": "1", "b": "2"}, &expiry)
	if err := layer.SetHash(ctx, "k", entry); err != nil {
		t.Fatalf("SetHash: %v", err)
	}

	got, err := layer.GetValue(ctx, "k", "a")
	if err != nil {
		t.Fatalf("GetValue: %v", err)
	}
	if got == nil || got.Value != "1" {
		t.Fatalf("got %+v, want value 1", got)
	}
}

func TestLayerGetHashRoundTrip(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()
	expiry := cachetower.FloorToSecond(time.Now().Add(time.Hour))

	entry := cachetower.NewCacheSetEntry(map[string]string{"a": "1", "b": "2"}, &expiry)
	if err := layer.SetHash(ctx, "k", entry); err != nil {
		t.Fatalf("SetHash: %v", err)
	}

	got, err := layer.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a hit")
	}
	if v, ok := got.Get("a"); !ok || v != "1" {
		t.Fatalf("got (%v,%v), want (1,true)", v, ok)
	}
	if got.Expiry() == nil || !got.Expiry().Equal(expiry) {
		t.Fatalf("got expiry %v, want %v", got.Expiry(), expiry)
	}
}

func TestLayerSetHashPastExpiryIsNoop(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	entry := cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &past)
	if err := layer.SetHash(ctx, "k", entry); err != nil {
		t.Fatalf("SetHash: %v", err)
	}

	got, err := layer.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no entry for an already-past expiry, got %+v", got)
	}
}

func TestLayerEvictHashRemovesBothRecords(t *testing.T) {
	layer, client := newTestLayer(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	entry := cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &expiry)
	if err := layer.SetHash(ctx, "k", entry); err != nil {
		t.Fatalf("SetHash: %v", err)
	}
	if err := layer.EvictHash(ctx, "k"); err != nil {
		t.Fatalf("EvictHash: %v", err)
	}

	if n, _ := client.Exists(ctx, "k:hash").Result(); n != 0 {
		t.Fatalf("expected k:hash to be gone")
	}
	if n, _ := client.Exists(ctx, "k:info").Result(); n != 0 {
		t.Fatalf("expected k:info to be gone")
	}
}

func TestLayerGetHashSubsetOmitsMissing(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	if err := layer.SetHashSubset(ctx, "k", map[string]string{"1": "x", "2": "y", "3": "z"}); err != nil {
		t.Fatalf("SetHashSubset: %v", err)
	}

	got, err := layer.GetHashSubset(ctx, "k", []string{"1", "4"})
	if err != nil {
		t.Fatalf("GetHashSubset: %v", err)
	}
	want := map[string]string{"1": "x"}
	if len(got) != len(want) || got["1"] != "x" {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestLayerGetHashSubsetAbsentKeyReturnsNil(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	got, err := layer.GetHashSubset(ctx, "nope", []string{"1"})
	if err != nil {
		t.Fatalf("GetHashSubset: %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil for an absent key", got)
	}
}

func TestLayerSetHashExpiryOnAbsentKeyIsNoop(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()

	if err := layer.SetHashExpiry(ctx, "nope", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SetHashExpiry: %v", err)
	}
}

func TestLayerSetHashExpiryUpdatesInfo(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	entry := cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &expiry)
	if err := layer.SetHash(ctx, "k", entry); err != nil {
		t.Fatalf("SetHash: %v", err)
	}

	newExpiry := cachetower.FloorToSecond(time.Now().Add(2 * time.Hour))
	if err := layer.SetHashExpiry(ctx, "k", newExpiry); err != nil {
		t.Fatalf("SetHashExpiry: %v", err)
	}

	got, err := layer.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got == nil || got.Expiry() == nil || !got.Expiry().Equal(newExpiry) {
		t.Fatalf("got expiry %v, want %v", got.Expiry(), newExpiry)
	}
}

func TestLayerFlushClearsEverything(t *testing.T) {
	layer, _ := newTestLayer(t)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	entry := cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &expiry)
	if err := layer.SetHash(ctx, "k", entry); err != nil {
		t.Fatalf("SetHash: %v", err)
	}
	if err := layer.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, err := layer.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no entry after flush, got %+v", got)
	}
}

func TestLayerIsAvailable(t *testing.T) {
	layer, _ := newTestLayer(t)
	if !layer.IsAvailable(context.Background()) {
		t.Fatalf("expected a fresh miniredis-backed layer to be available")
	}
}
