// Package store caches finished research reports in SQLite so repeat runs
// for the same topic and window are instant.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"litscout/internal/core"
	"litscout/internal/logger"
)

// DefaultTTL is how long a cached report stays fresh.
const DefaultTTL = 24 * time.Hour

// Store is the SQLite-backed report cache.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the cache database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "litscout.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	reportsTable := `
	CREATE TABLE IF NOT EXISTS reports (
		cache_key TEXT PRIMARY KEY,
		topic TEXT,
		payload TEXT,
		cached_at DATETIME
	);`

	if _, err := s.db.Exec(reportsTable); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CacheKey derives the lookup key for one (topic, window, sources)
// combination. Any change to the inputs produces a different key, so a new
// day or a different source filter never serves yesterday's report.
func CacheKey(topic, from, to, sourcesMode string) string {
	sum := sha256.Sum256([]byte(topic + "|" + from + "|" + to + "|" + sourcesMode))
	return hex.EncodeToString(sum[:])[:16]
}

// SaveReport stores a report under key, replacing any previous entry.
func (s *Store) SaveReport(key string, rs *core.ResultSet) error {
	payload, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO reports (cache_key, topic, payload, cached_at)
	VALUES (?, ?, ?, ?)`

	_, err = s.db.Exec(query, key, rs.Topic, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// GetReport retrieves a report no older than maxAge. A miss returns
// (nil, 0, nil); so does an entry that no longer decodes, which covers
// cache files written by older schema versions. Hits come back with
// FromCache set and the age filled in.
func (s *Store) GetReport(key string, maxAge time.Duration) (*core.ResultSet, float64, error) {
	query := `
	SELECT payload, cached_at FROM reports
	WHERE cache_key = ? AND cached_at > ?`

	cutoff := time.Now().UTC().Add(-maxAge)
	row := s.db.QueryRow(query, key, cutoff)

	var payload string
	var cachedAt time.Time
	err := row.Scan(&payload, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan report: %w", err)
	}

	var rs core.ResultSet
	if err := json.Unmarshal([]byte(payload), &rs); err != nil {
		logger.Debug("Ignoring undecodable cached report", "key", key, "error", err.Error())
		return nil, 0, nil
	}

	age := time.Since(cachedAt).Hours()
	rs.FromCache = true
	rs.CacheAgeHours = age
	return &rs, age, nil
}
