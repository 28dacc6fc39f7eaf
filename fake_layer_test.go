package cachetower

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeLayer is an in-memory CacheLayer[string] test double with
// controllable availability and failure injection, standing in for a real
// layer so stack_test.go can assert the stack's own algorithm (backfill
// ordering, write-all-then-notify, fail-fast on error) without depending on
// layers/memory or layers/redisstore.
type fakeLayer struct {
	mu         sync.Mutex
	available  bool
	failSet    bool
	values     map[string]map[string]string
	hashExpiry map[string]*time.Time

	setValueCalls      []string
	setHashCalls       []string
	setHashSubsetCalls []string
}

var errFakeLayer = errors.New("fakeLayer: forced failure")

func newFakeLayer() *fakeLayer {
	return &fakeLayer{
		available:  true,
		values:     map[string]map[string]string{},
		hashExpiry: map[string]*time.Time{},
	}
}

func (f *fakeLayer) GetValue(ctx context.Context, hashTableKey, elementKey string) (*CacheEntry[string], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.values[hashTableKey]
	if !ok {
		return nil, nil
	}
	v, ok := bucket[elementKey]
	if !ok {
		return nil, nil
	}
	return NewCacheEntry(v, f.hashExpiry[hashTableKey]), nil
}

func (f *fakeLayer) SetValue(ctx context.Context, hashTableKey, elementKey string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errFakeLayer
	}
	f.setValueCalls = append(f.setValueCalls, hashTableKey+"/"+elementKey)
	bucket, ok := f.values[hashTableKey]
	if !ok {
		bucket = map[string]string{}
		f.values[hashTableKey] = bucket
	}
	bucket[elementKey] = value
	return nil
}

func (f *fakeLayer) EvictValue(ctx context.Context, hashTableKey, elementKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bucket, ok := f.values[hashTableKey]; ok {
		delete(bucket, elementKey)
	}
	return nil
}

func (f *fakeLayer) GetHash(ctx context.Context, hashTableKey string) (*CacheSetEntry[string], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.values[hashTableKey]
	if !ok {
		return nil, nil
	}
	cp := make(map[string]string, len(bucket))
	for k, v := range bucket {
		cp[k] = v
	}
	return NewCacheSetEntry(cp, f.hashExpiry[hashTableKey]), nil
}

func (f *fakeLayer) SetHash(ctx context.Context, hashTableKey string, entry *CacheSetEntry[string]) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errFakeLayer
	}
	f.setHashCalls = append(f.setHashCalls, hashTableKey)
	f.values[hashTableKey] = entry.Snapshot()
	f.hashExpiry[hashTableKey] = entry.Expiry()
	return nil
}

func (f *fakeLayer) EvictHash(ctx context.Context, hashTableKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, hashTableKey)
	delete(f.hashExpiry, hashTableKey)
	return nil
}

func (f *fakeLayer) GetHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.values[hashTableKey]
	if !ok {
		return nil, nil
	}
	result := map[string]string{}
	for _, k := range elementKeys {
		if v, ok := bucket[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

func (f *fakeLayer) SetHashSubset(ctx context.Context, hashTableKey string, subset map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet {
		return errFakeLayer
	}
	f.setHashSubsetCalls = append(f.setHashSubsetCalls, hashTableKey)
	bucket, ok := f.values[hashTableKey]
	if !ok {
		bucket = map[string]string{}
		f.values[hashTableKey] = bucket
	}
	for k, v := range subset {
		bucket[k] = v
	}
	return nil
}

func (f *fakeLayer) EvictHashSubset(ctx context.Context, hashTableKey string, elementKeys []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.values[hashTableKey]
	if !ok {
		return nil
	}
	for _, k := range elementKeys {
		delete(bucket, k)
	}
	return nil
}

func (f *fakeLayer) SetHashExpiry(ctx context.Context, hashTableKey string, expiry time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[hashTableKey]; !ok {
		return nil
	}
	e := expiry
	f.hashExpiry[hashTableKey] = &e
	return nil
}

func (f *fakeLayer) Cleanup(ctx context.Context) error { return nil }

func (f *fakeLayer) IsAvailable(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeLayer) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = map[string]map[string]string{}
	f.hashExpiry = map[string]*time.Time{}
	return nil
}

func (f *fakeLayer) has(hashTableKey, elementKey string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	bucket, ok := f.values[hashTableKey]
	if !ok {
		return false
	}
	_, ok = bucket[elementKey]
	return ok
}

func (f *fakeLayer) setAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}
