package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/tradelab/draudit/pkg/errclass"
	"github.com/tradelab/draudit/pkg/jsonutil"
	"github.com/tradelab/draudit/pkg/metrics"
	"github.com/tradelab/draudit/pkg/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    hash TEXT PRIMARY KEY,
    body BLOB NOT NULL
);
`

// SQLiteStore keeps snapshots as rows of a single SQLite table.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore creates or opens the snapshot database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging snapshot database: %w", err)
	}
	return initSQLite(db, path)
}

// OpenMemorySQLiteStore creates a private in-memory database.
func OpenMemorySQLiteStore() (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory snapshot database: %w", err)
	}
	// every pooled connection would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	return initSQLite(db, ":memory:")
}

func initSQLite(db *sql.DB, path string) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating snapshot schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database location.
func (s *SQLiteStore) Path() string { return s.path }

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, payload jsonutil.Value) (model.HashValue, error) {
	data, hash, err := Encode(payload)
	if err != nil {
		return "", err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO snapshots (hash, body) VALUES (?, ?)`, string(hash), data)
	if err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", hash, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", hash, err)
	}
	metrics.Default().RecordSnapshotPut(n > 0)
	return hash, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, hash model.HashValue) (jsonutil.Value, error) {
	if err := checkAddress(hash); err != nil {
		return jsonutil.Value{}, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE hash = ?`, string(hash)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return jsonutil.Value{}, errclass.ErrNotFound.WithMessagef("snapshot %s", hash)
	}
	if err != nil {
		return jsonutil.Value{}, fmt.Errorf("read snapshot %s: %w", hash, err)
	}
	return Decode(hash, data)
}

// Exists implements Store.
func (s *SQLiteStore) Exists(ctx context.Context, hash model.HashValue) (bool, error) {
	if !hash.Valid() {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM snapshots WHERE hash = ?`, string(hash)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup snapshot %s: %w", hash, err)
	}
	return true, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]model.HashValue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT hash FROM snapshots ORDER BY hash`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var hashes []model.HashValue
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		hashes = append(hashes, model.HashValue(h))
	}
	return hashes, rows.Err()
}
