package cache

import (
	"database/sql"
	"errors"
	"sync"

	_ "github.com/glebarez/go-sqlite"
)

// Provider is an interface for versioned cache storage.
// It stores and retrieves []byte values, which represent HTTP responses,
// keyed by request URL inside a named bucket. One bucket holds all
// entries for one deployed version; invalidation happens by deleting a
// whole bucket, never per entry.
//
// Implementations must be thread-safe!
type Provider interface {
	// Match returns the stored response for the given URL in the given
	// bucket, if it exists. It also returns a boolean indicating whether
	// the lookup was a hit.
	Match(bucket, url string) ([]byte, bool, error)
	// Put stores the given response bytes under the given URL in the
	// given bucket, creating the bucket if needed. Puts are upserts.
	Put(bucket, url string, bytes []byte) error
	// Delete removes a single entry from a bucket.
	// It reports whether an entry was actually removed.
	Delete(bucket, url string) (bool, error)
	// Keys returns all URLs stored in the given bucket.
	Keys(bucket string) ([]string, error)
	// Buckets returns the names of all non-empty buckets.
	Buckets() ([]string, error)
	// DeleteBucket removes a bucket and every entry in it.
	DeleteBucket(bucket string) error
}

type MemCache struct {
	mutex *sync.RWMutex
	db    map[string]map[string][]byte
}

func NewMemCache() MemCache {
	return MemCache{
		mutex: &sync.RWMutex{},
		db:    make(map[string]map[string][]byte),
	}
}

func (m MemCache) Match(bucket, url string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	entries, ok := m.db[bucket]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := entries[url]
	if !ok {
		return nil, false, nil
	}
	return bytes, true, nil
}

func (m MemCache) Put(bucket, url string, bytes []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.db[bucket] == nil {
		m.db[bucket] = make(map[string][]byte)
	}
	m.db[bucket][url] = bytes
	return nil
}

func (m MemCache) Delete(bucket, url string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	entries, ok := m.db[bucket]
	if !ok {
		return false, nil
	}
	if _, ok := entries[url]; !ok {
		return false, nil
	}
	delete(entries, url)
	return true, nil
}

func (m MemCache) Keys(bucket string) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	keys := make([]string, 0, len(m.db[bucket]))
	for url := range m.db[bucket] {
		keys = append(keys, url)
	}
	return keys, nil
}

func (m MemCache) Buckets() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.db))
	for name, entries := range m.db {
		if len(entries) > 0 {
			names = append(names, name)
		}
	}
	return names, nil
}

func (m MemCache) DeleteBucket(bucket string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.db, bucket)
	return nil
}

type SQLiteCache struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteCache creates a new cache with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteCache(filename string) SQLiteCache {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS cache (
		bucket TEXT,
		key TEXT,
		bytes BLOB,
		PRIMARY KEY (bucket, key)
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS bucket_idx ON cache (bucket)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return SQLiteCache{
		db:         db,
		writeMutex: &sync.Mutex{},
	}
}

func (s SQLiteCache) Match(bucket, url string) ([]byte, bool, error) {
	var bytes []byte
	err := s.db.QueryRow("SELECT bytes FROM cache WHERE bucket = ? AND key = ?", bucket, url).Scan(&bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bytes, true, nil
}

func (s SQLiteCache) Put(bucket, url string, bytes []byte) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("INSERT OR REPLACE INTO cache (bucket, key, bytes) VALUES (?, ?, ?)", bucket, url, bytes)
	return err
}

func (s SQLiteCache) Delete(bucket, url string) (bool, error) {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	res, err := s.db.Exec("DELETE FROM cache WHERE bucket = ? AND key = ?", bucket, url)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (s SQLiteCache) Keys(bucket string) ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM cache WHERE bucket = ? ORDER BY key", bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s SQLiteCache) Buckets() ([]string, error) {
	rows, err := s.db.Query("SELECT DISTINCT bucket FROM cache ORDER BY bucket")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s SQLiteCache) DeleteBucket(bucket string) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	_, err := s.db.Exec("DELETE FROM cache WHERE bucket = ?", bucket)
	return err
}
