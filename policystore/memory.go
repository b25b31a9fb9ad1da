package policystore

import (
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps entries in a plain map. Intended for tests and
// single-process setups where persistence across restarts is not needed.
type MemoryStore struct {
	mutex *sync.RWMutex
	db    map[string]Entry
}

func NewMemoryStore() MemoryStore {
	return MemoryStore{
		mutex: &sync.RWMutex{},
		db:    make(map[string]Entry),
	}
}

func (m MemoryStore) AllKeys(prefix string, cb func(string)) {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.db))
	for key := range m.db {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	m.mutex.RUnlock()
	for _, key := range keys {
		cb(key)
	}
}

func (m MemoryStore) Get(key string) (Entry, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entry, ok := m.db[key]
	return entry, ok, nil
}

func (m MemoryStore) Put(entry Entry) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.db[entry.Key] = entry
	return nil
}

func (m MemoryStore) Oldest(prefix string) (string, time.Time, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range m.db {
		if !strings.HasPrefix(key, prefix) || entry.Expires.IsZero() {
			continue
		}
		if oldestKey == "" || entry.Expires.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.Expires
		}
	}
	return oldestKey, oldestTime, nil
}

func (m MemoryStore) Purge(key string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, key)
}

func (m MemoryStore) Has(key string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.db[key]
	return ok
}
