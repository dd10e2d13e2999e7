package cache

import (
	"context"
	"database/sql"
	"time"

	"github.com/freebsd-sec/pysec2vuxml/internal/errors"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite-backed cache
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// mode=rwc: Read/Write/Create mode
	// _journal_mode=WAL: Write-Ahead Logging allows concurrent readers and a single writer
	// _busy_timeout=3000: Wait up to 3 seconds for locks so concurrent feed
	// workers don't fail on SQLITE_BUSY
	connStr := dbPath + "?mode=rwc&_journal_mode=WAL&_busy_timeout=3000"

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, errors.NewTransientf("failed to open sqlite cache: %w", err)
	}

	// WAL mode supports one writer and multiple concurrent readers
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, now: time.Now}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewPermanentf("failed to initialize cache schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER, -- unix seconds, NULL means no expiry
		created_at INTEGER NOT NULL DEFAULT (cast(strftime('%s', 'now') as integer))
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get returns the cached payload for key when present and not expired
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT value, expires_at FROM cache_entries WHERE key = ?
	`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewTransientf("failed to query cache entry: %w", err)
	}

	if expiresAt.Valid && expiresAt.Int64 < s.now().Unix() {
		return nil, false, nil
	}

	return value, true, nil
}

// Put stores a payload under key, replacing any previous entry
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt interface{}
	if ttl > 0 {
		expiresAt = s.now().Add(ttl).Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			created_at = cast(strftime('%s', 'now') as integer)
	`, key, value, expiresAt)
	if err != nil {
		return errors.NewTransientf("failed to store cache entry: %w", err)
	}

	return nil
}

// Sweep removes all expired entries
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at < ?
	`, s.now().Unix())
	if err != nil {
		return 0, errors.NewTransientf("failed to sweep cache: %w", err)
	}

	dropped, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewTransientf("failed to get swept rows count: %w", err)
	}

	return int(dropped), nil
}
