package policystore

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists entries in a single SQLite table. The policy
// snapshot and body travel as one gob blob, the expiry is kept in its own
// indexed column so Oldest stays a query.
type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If the filename is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) SQLiteStore {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		expires INTEGER,
		blob BLOB
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS expires_idx ON entries (expires)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteStore) AllKeys(prefix string, cb func(string)) {
	rows, err := s.db.Query("SELECT key FROM entries WHERE key LIKE ? ORDER BY key", prefix+"%")
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return
		}
		cb(key)
	}
}

func (s SQLiteStore) Get(key string) (Entry, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT blob FROM entries WHERE key = ?", key).Scan(&blob)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var entry Entry
	if err := decodeGob(blob, &entry); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s SQLiteStore) Put(entry Entry) error {
	blob, err := encodeGob(entry)
	if err != nil {
		return err
	}
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err = s.db.Exec("INSERT OR REPLACE INTO entries (key, expires, blob) VALUES (?, ?, ?)",
		entry.Key, entry.Expires.Unix(), blob)
	return err
}

func (s SQLiteStore) Oldest(prefix string) (string, time.Time, error) {
	var key string
	var expires int64
	err := s.db.QueryRow(`SELECT key, expires FROM entries
		WHERE key LIKE ? AND expires > 0
		ORDER BY expires ASC LIMIT 1`, prefix+"%").Scan(&key, &expires)
	if err == sql.ErrNoRows {
		return "", time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return key, time.Unix(expires, 0), nil
}

func (s SQLiteStore) Purge(key string) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM entries WHERE key = ?", key)
	if err != nil {
		panic(err)
	}
}

func (s SQLiteStore) Has(key string) bool {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM entries WHERE key = ?", key).Scan(&one)
	return err == nil
}
