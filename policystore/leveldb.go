package policystore

import (
	"bytes"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore persists entries in a LevelDB database on disk.
// Each entry occupies two records: "e:<key>" holds the gob-encoded entry
// and "m:<key>" holds a small meta record, so Oldest can scan metas
// without decoding bodies.
type LevelDBStore struct {
	db         *leveldb.DB
	writeMutex *sync.Mutex
}

type levelMeta struct {
	Expires int64
}

func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDBStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (l *LevelDBStore) Close() error {
	return l.db.Close()
}

func (l *LevelDBStore) AllKeys(prefix string, cb func(string)) {
	it := l.db.NewIterator(util.BytesPrefix([]byte("e:"+prefix)), nil)
	defer it.Release()
	for it.Next() {
		cb(string(bytes.TrimPrefix(it.Key(), []byte("e:"))))
	}
}

func (l *LevelDBStore) Get(key string) (Entry, bool, error) {
	blob, err := l.db.Get([]byte("e:"+key), nil)
	if err == leveldb.ErrNotFound {
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

func (l *LevelDBStore) Put(entry Entry) error {
	blob, err := encodeGob(entry)
	if err != nil {
		return err
	}
	meta, err := encodeGob(levelMeta{Expires: entry.Expires.Unix()})
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte("e:"+entry.Key), blob)
	batch.Put([]byte("m:"+entry.Key), meta)
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	return l.db.Write(batch, nil)
}

func (l *LevelDBStore) Oldest(prefix string) (string, time.Time, error) {
	it := l.db.NewIterator(util.BytesPrefix([]byte("m:"+prefix)), nil)
	defer it.Release()
	var oldestKey string
	var oldestTime time.Time
	for it.Next() {
		var meta levelMeta
		if err := decodeGob(it.Value(), &meta); err != nil {
			continue
		}
		if meta.Expires <= 0 {
			continue
		}
		expires := time.Unix(meta.Expires, 0)
		if oldestKey == "" || expires.Before(oldestTime) {
			oldestKey = string(bytes.TrimPrefix(it.Key(), []byte("m:")))
			oldestTime = expires
		}
	}
	if err := it.Error(); err != nil {
		return "", time.Time{}, err
	}
	return oldestKey, oldestTime, nil
}

func (l *LevelDBStore) Purge(key string) {
	batch := new(leveldb.Batch)
	batch.Delete([]byte("e:" + key))
	batch.Delete([]byte("m:" + key))
	l.writeMutex.Lock()
	defer l.writeMutex.Unlock()
	_ = l.db.Write(batch, nil)
}

func (l *LevelDBStore) Has(key string) bool {
	ok, err := l.db.Has([]byte("e:"+key), nil)
	return err == nil && ok
}
