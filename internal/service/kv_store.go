package service

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// KVStore is the key-value backend shared by the OTP session manager, the
// token ledger and the rate limiter. Every method may fail on the shared
// backend; the in-memory store never returns errors.
type KVStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetMulti(ctx context.Context, entries map[string]string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	GetDel(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, keys ...string) error
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	// IncrExisting increments an integer key only if it is still present.
	// The key keeps its remaining TTL.
	IncrExisting(ctx context.Context, key string) (int64, bool, error)
	// IncrWindow increments a counter, starting a window of the given length
	// on first use, and reports the remaining window.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Ping(ctx context.Context) error
	Shared() bool
}

const inMemorySweepEvery = 256

type kvEntry struct {
	value     string
	expiresAt time.Time
}

// InMemoryKVStore is the single-process fallback used when no Redis address
// is configured. Expiry is checked lazily on access, with an occasional sweep
// on writes so abandoned keys do not accumulate.
type InMemoryKVStore struct {
	mu     sync.Mutex
	data   map[string]kvEntry
	writes int
}

func NewInMemoryKVStore() *InMemoryKVStore {
	return &InMemoryKVStore{data: make(map[string]kvEntry)}
}

func (s *InMemoryKVStore) Shared() bool { return false }

func (s *InMemoryKVStore) Ping(context.Context) error { return nil }

func (s *InMemoryKVStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, value, ttl)
	return nil
}

func (s *InMemoryKVStore) SetMulti(_ context.Context, entries map[string]string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, value := range entries {
		s.putLocked(key, value, ttl)
	}
	return nil
}

func (s *InMemoryKVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key, time.Now().UTC())
	if !ok {
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *InMemoryKVStore) GetDel(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key, time.Now().UTC())
	if !ok {
		return "", false, nil
	}
	delete(s.data, key)
	return entry.value, true, nil
}

func (s *InMemoryKVStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *InMemoryKVStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key, now)
	if !ok {
		return 0, false, nil
	}
	return entry.expiresAt.Sub(now), true, nil
}

func (s *InMemoryKVStore) IncrExisting(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key, time.Now().UTC())
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, false, err
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	s.data[key] = entry
	return n, true, nil
}

func (s *InMemoryKVStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Second
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.liveLocked(key, now)
	if !ok {
		s.putLocked(key, "1", window)
		return 1, window, nil
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	s.data[key] = entry
	return n, entry.expiresAt.Sub(now), nil
}

func (s *InMemoryKVStore) putLocked(key, value string, ttl time.Duration) {
	now := time.Now().UTC()
	s.data[key] = kvEntry{value: value, expiresAt: now.Add(ttl)}
	s.writes++
	if s.writes%inMemorySweepEvery == 0 {
		for k, e := range s.data {
			if !now.Before(e.expiresAt) {
				delete(s.data, k)
			}
		}
	}
}

func (s *InMemoryKVStore) liveLocked(key string, now time.Time) (kvEntry, bool) {
	entry, ok := s.data[key]
	if !ok {
		return kvEntry{}, false
	}
	if !now.Before(entry.expiresAt) {
		delete(s.data, key)
		return kvEntry{}, false
	}
	return entry, true
}
