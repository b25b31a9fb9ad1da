// Package policystore persists cached HTTP exchanges together with the
// policy snapshots that govern their reuse.
package policystore

import (
	"bytes"
	"encoding/gob"
	"time"
)

// Entry is one cached exchange: the flat policy snapshot produced by the
// decision engine, the stored response body, and an expiry hint.
//
// Expires is advisory. A stale entry may still be served after successful
// revalidation, so stores keep entries past their expiry and leave the
// freshness decision to the caller. Expires only orders eviction.
type Entry struct {
	Key     string
	Expires time.Time
	Policy  map[string]string
	Body    []byte
}

// Store is a persistence backend for cache entries.
// Operating on specific keys or prefixes is important in order for many
// origins to be able to share the same store.
//
// Implementations must be thread-safe!
type Store interface {
	// AllKeys calls the given callback for each key with the given prefix.
	// It calls the callback in order to enable very large lists of keys to be
	// processable (an implementation might use paging, for instance).
	AllKeys(prefix string, cb func(string))
	// Get returns the entry stored under the given key, if it exists.
	// It also returns a boolean indicating whether retrieval was successful.
	// Expired entries are still returned.
	Get(key string) (Entry, bool, error)
	// Put stores the given entry under its key, replacing any previous one.
	Put(entry Entry) error
	// Oldest returns the key and expiry of the entry with the earliest
	// expiry among those matching the prefix.
	// It does not return items where the expiry is zero.
	Oldest(prefix string) (string, time.Time, error)
	// Purge removes the entry for the given key.
	Purge(key string)
	// Has checks if the specified key exists in the store.
	Has(key string) bool
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
