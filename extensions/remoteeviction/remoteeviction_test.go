package remoteeviction

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cachetower/cachetower"
	"github.com/cachetower/cachetower/layers/localstore"
	"github.com/cachetower/cachetower/layers/memory"
)

func newClient(t *testing.T, addr string) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// buildNode wires one process's worth of state: a local memory layer, a
// remote-eviction extension bound to it, and a stack over just that layer
// (the tests care only about what the extension does to the local layer,
// not about a real Redis-backed far tier).
func buildNode(t *testing.T, addr string) (*cachetower.CacheStack[string], *memory.Layer[string]) {
	t.Helper()
	mem := memory.New[string](localstore.New())
	client := newClient(t, addr)
	ext := New[string](client, []cachetower.CacheLayer[string]{mem}, WithFlagTTL[string](time.Second))
	stack, err := cachetower.NewStack[string]([]cachetower.CacheLayer[string]{mem}, cachetower.WithExtensions[string](ext))
	if err != nil {
		t.Fatalf("NewStack: %v", err)
	}
	t.Cleanup(func() { _ = stack.Dispose() })
	return stack, mem
}

func TestOwnEvictionEchoIsSuppressed(t *testing.T) {
	mr := miniredis.RunT(t)
	stack, mem := buildNode(t, mr.Addr())
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	if err := stack.SetHash(ctx, "k", cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &expiry)); err != nil {
		t.Fatalf("SetHash: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	got, err := mem.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got == nil {
		t.Fatalf("expected the publisher's own local layer to still hold k: its echo should have been suppressed, not re-applied")
	}
}

func TestPeerEvictionIsApplied(t *testing.T) {
	mr := miniredis.RunT(t)
	stack1, _ := buildNode(t, mr.Addr())
	_, mem2 := buildNode(t, mr.Addr())
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	// Prime the peer's local layer, simulating a prior backfill from its own
	// earlier read, so eviction has something observable to remove.
	if err := mem2.SetHash(ctx, "k", cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &expiry)); err != nil {
		t.Fatalf("priming peer layer: %v", err)
	}

	if err := stack1.EvictHash(ctx, "k"); err != nil {
		t.Fatalf("EvictHash: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	got, err := mem2.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got != nil {
		t.Fatalf("expected the peer's local layer to have been evicted by the broadcast")
	}
}

func TestPeerElementEvictionPreservesOtherElements(t *testing.T) {
	mr := miniredis.RunT(t)
	stack1, _ := buildNode(t, mr.Addr())
	_, mem2 := buildNode(t, mr.Addr())
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	if err := mem2.SetHash(ctx, "k", cachetower.NewCacheSetEntry(map[string]string{"a": "1", "b": "2"}, &expiry)); err != nil {
		t.Fatalf("priming peer layer: %v", err)
	}

	if err := stack1.EvictValue(ctx, "k", "a"); err != nil {
		t.Fatalf("EvictValue: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	got, err := mem2.GetHash(ctx, "k")
	if err != nil {
		t.Fatalf("GetHash: %v", err)
	}
	if got == nil {
		t.Fatalf("expected the peer's hash to survive an element-grain eviction")
	}
	if _, ok := got.Get("a"); ok {
		t.Fatalf("expected element a to have been evicted on the peer")
	}
	if _, ok := got.Get("b"); !ok {
		t.Fatalf("expected element b to survive on the peer")
	}
}

func TestFlushEchoLeavesFlushedLayerEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	stack, mem := buildNode(t, mr.Addr())
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour)

	if err := mem.SetHash(ctx, "k", cachetower.NewCacheSetEntry(map[string]string{"a": "1"}, &expiry)); err != nil {
		t.Fatalf("priming: %v", err)
	}
	if err := stack.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	// The write-path flush already cleared mem directly; this only confirms
	// the echo didn't cause a second, redundant Flush call to error or hang.
	if n, err := mem.GetHash(ctx, "k"); err != nil || n != nil {
		t.Fatalf("expected k to be gone after flush, got (%v, %v)", n, err)
	}
}

func TestDoubleRegistrationFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(t, mr.Addr())
	mem1 := memory.New[string](localstore.New())
	ext := New[string](client, []cachetower.CacheLayer[string]{mem1})

	stack1, err := cachetower.NewStack[string]([]cachetower.CacheLayer[string]{mem1}, cachetower.WithExtensions[string](ext))
	if err != nil {
		t.Fatalf("first NewStack: %v", err)
	}
	t.Cleanup(func() { _ = stack1.Dispose() })

	mem2 := memory.New[string](localstore.New())
	_, err = cachetower.NewStack[string]([]cachetower.CacheLayer[string]{mem2}, cachetower.WithExtensions[string](ext))
	if err == nil {
		t.Fatalf("expected registering the same extension instance twice to fail")
	}
}

func TestHashKeyEvictionMessageOrderIndependentEquality(t *testing.T) {
	a := cachetower.NewHashKeyEvictionMessage("k", []string{"1", "2", "3"})
	b := cachetower.NewHashKeyEvictionMessage("k", []string{"3", "1", "2"})
	if !a.Equal(b) {
		t.Fatalf("expected order-independent equality")
	}
	if a.DedupeKey() != b.DedupeKey() {
		t.Fatalf("expected order-independent dedupe keys to match")
	}
}
