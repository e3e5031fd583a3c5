package repository

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

var ErrWrongKind = errors.New("operation against a key holding the wrong kind of value")

type memEntry struct {
	value     []byte
	list      [][]byte
	isList    bool
	expiresAt time.Time
	hasTTL    bool
}

func (e memEntry) isExpired(now time.Time) bool {
	return e.hasTTL && now.After(e.expiresAt)
}

type memoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStateStore() StateStore {
	return newMemoryStateStore(time.Now)
}

func newMemoryStateStore(now func() time.Time) *memoryStateStore {
	return &memoryStateStore{
		entries: make(map[string]memEntry),
		now:     now,
	}
}

// lookup returns the live entry for key, evicting it when expired. Caller holds mu.
func (s *memoryStateStore) lookup(key string) (memEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if entry.isExpired(s.now()) {
		delete(s.entries, key)
		return memEntry{}, false
	}
	return entry, true
}

func (s *memoryStateStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memEntry{value: value}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *memoryStateStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	if entry.isList {
		return nil, ErrWrongKind
	}
	return entry.value, nil
}

func (s *memoryStateStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStateStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(key)
	return ok, nil
}

func (s *memoryStateStore) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if ok && entry.isList {
		return 0, ErrWrongKind
	}

	var n int64
	if ok {
		parsed, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, ErrWrongKind
		}
		n = parsed
	}
	n++
	entry.value = []byte(strconv.FormatInt(n, 10))
	if n == 1 && ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return n, nil
}

func (s *memoryStateStore) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	switch {
	case !ok:
		return -2 * time.Nanosecond, nil
	case !entry.hasTTL:
		return -1 * time.Nanosecond, nil
	}
	return entry.expiresAt.Sub(s.now()), nil
}

func (s *memoryStateStore) PushCapped(_ context.Context, key string, value []byte, maxLen int, ttl time.Duration) error {
	if maxLen <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if ok && !entry.isList {
		return ErrWrongKind
	}
	entry.isList = true

	list := make([][]byte, 0, min(len(entry.list)+1, maxLen))
	list = append(list, value)
	for _, v := range entry.list {
		if len(list) == maxLen {
			break
		}
		list = append(list, v)
	}
	entry.list = list
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *memoryStateStore) Range(_ context.Context, key string, limit int) ([][]byte, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	if !entry.isList {
		return nil, ErrWrongKind
	}
	n := min(limit, len(entry.list))
	out := make([][]byte, n)
	copy(out, entry.list[:n])
	return out, nil
}
