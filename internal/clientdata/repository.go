// Package clientdata persists the last good market snapshot of each feed in
// cache.db. The market service warms from it after a restart, so prices are
// available before the feed answers again.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotTTL is how long a stored snapshot counts as fresh. Expired rows are
// still served by Load until the cleanup job purges them.
const SnapshotTTL = 7 * 24 * time.Hour

// Entry describes one cached snapshot without its payload
type Entry struct {
	Feed       string    `json:"feed"`
	QuoteCount int       `json:"quote_count"`
	StoredAt   time.Time `json:"stored_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	Expired    bool      `json:"expired"`
}

// Repository reads and writes cached snapshots
type Repository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewRepository creates a snapshot cache over the cache database
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, ttl: SnapshotTTL, now: time.Now}
}

// Save replaces the snapshot stored for feed
func (r *Repository) Save(feed string, snapshot interface{}, quoteCount int) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for %s: %w", feed, err)
	}

	now := r.now()
	_, err = r.db.Exec(`
		INSERT INTO market_snapshots (feed, data, quote_count, stored_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(feed) DO UPDATE SET
			data = excluded.data,
			quote_count = excluded.quote_count,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at`,
		feed, string(payload), quoteCount, now.Unix(), now.Add(r.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot for %s: %w", feed, err)
	}
	return nil
}

// Load returns the stored snapshot for feed whether or not it expired.
// It returns nil, nil when nothing was ever stored.
func (r *Repository) Load(feed string) (json.RawMessage, error) {
	return r.load("SELECT data FROM market_snapshots WHERE feed = ?", feed)
}

// LoadFresh is Load restricted to snapshots that have not expired
func (r *Repository) LoadFresh(feed string) (json.RawMessage, error) {
	return r.load("SELECT data FROM market_snapshots WHERE feed = ? AND expires_at > ?", feed, r.now().Unix())
}

func (r *Repository) load(query string, args ...interface{}) (json.RawMessage, error) {
	var data string
	err := r.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %v: %w", args[0], err)
	}
	return json.RawMessage(data), nil
}

// List describes every cached snapshot, ordered by feed name
func (r *Repository) List() ([]Entry, error) {
	rows, err := r.db.Query(`
		SELECT feed, quote_count, stored_at, expires_at
		FROM market_snapshots
		ORDER BY feed`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached snapshots: %w", err)
	}
	defer rows.Close()

	now := r.now()
	var entries []Entry
	for rows.Next() {
		var (
			e                  Entry
			stored, expiration int64
		)
		if err := rows.Scan(&e.Feed, &e.QuoteCount, &stored, &expiration); err != nil {
			return nil, fmt.Errorf("failed to scan cached snapshot: %w", err)
		}
		e.StoredAt = time.Unix(stored, 0)
		e.ExpiresAt = time.Unix(expiration, 0)
		e.Expired = !e.ExpiresAt.After(now)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge deletes expired snapshots and returns how many were removed
func (r *Repository) Purge() (int64, error) {
	result, err := r.db.Exec("DELETE FROM market_snapshots WHERE expires_at <= ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired snapshots: %w", err)
	}
	return result.RowsAffected()
}
