package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteSchema holds both logical buckets in one table keyed by
// (bucket, key), with the secondary indexes as real columns.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	bucket          TEXT NOT NULL,
	key             TEXT NOT NULL,
	conversation_id TEXT,
	timestamp       TEXT,
	next_retry_at   TEXT,
	value           BLOB NOT NULL,
	PRIMARY KEY (bucket, key)
);
CREATE INDEX IF NOT EXISTS idx_records_conversation ON records(bucket, conversation_id);
CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(bucket, timestamp);
CREATE INDEX IF NOT EXISTS idx_records_next_retry ON records(bucket, next_retry_at);
`

// validIndexColumns whitelists index names against SQL injection through
// the trait's index argument.
var validIndexColumns = map[string]bool{
	IndexConversation: true,
	IndexTimestamp:    true,
	IndexNextRetry:    true,
}

// SQLiteBackend is a Backend persisted to a SQLite database file.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (creating if needed) the database at path and
// applies the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, &StorageError{Op: "open", Err: errors.New("database path is required")}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}
	// Synchronous writes: a successful Put must survive a crash.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=FULL;`); err != nil {
		db.Close()
		return nil, &StorageError{Op: "configure", Err: err}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &StorageError{Op: "migrate", Err: err}
	}

	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE bucket = ? AND key = ?`,
		bucket, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StorageError{Op: fmt.Sprintf("get %s/%s", bucket, key), Err: err}
	}
	return value, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, bucket string, rec Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (bucket, key, conversation_id, timestamp, next_retry_at, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket, key) DO UPDATE SET
			conversation_id = excluded.conversation_id,
			timestamp = excluded.timestamp,
			next_retry_at = excluded.next_retry_at,
			value = excluded.value`,
		bucket, rec.Key,
		nullableIndex(rec.Indexes, IndexConversation),
		nullableIndex(rec.Indexes, IndexTimestamp),
		nullableIndex(rec.Indexes, IndexNextRetry),
		rec.Value,
	)
	if err != nil {
		return &StorageError{Op: fmt.Sprintf("put %s/%s", bucket, rec.Key), Err: err}
	}
	return nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, bucket, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE bucket = ? AND key = ?`, bucket, key,
	); err != nil {
		return &StorageError{Op: fmt.Sprintf("delete %s/%s", bucket, key), Err: err}
	}
	return nil
}

func (s *SQLiteBackend) AllByIndex(ctx context.Context, bucket, index, value string) ([][]byte, error) {
	if !validIndexColumns[index] {
		return nil, &StorageError{Op: "query", Err: fmt.Errorf("unknown index %q", index)}
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT value FROM records WHERE bucket = ? AND %s = ?`, index),
		bucket, value,
	)
	if err != nil {
		return nil, &StorageError{Op: fmt.Sprintf("query %s by %s", bucket, index), Err: err}
	}
	return collectValues(rows)
}

func (s *SQLiteBackend) AllByIndexUpTo(ctx context.Context, bucket, index, max string) ([][]byte, error) {
	if !validIndexColumns[index] {
		return nil, &StorageError{Op: "query", Err: fmt.Errorf("unknown index %q", index)}
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT value FROM records WHERE bucket = ? AND %s <= ? ORDER BY %s ASC`, index, index),
		bucket, max,
	)
	if err != nil {
		return nil, &StorageError{Op: fmt.Sprintf("range query %s by %s", bucket, index), Err: err}
	}
	return collectValues(rows)
}

func (s *SQLiteBackend) Usage(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(value)), 0) FROM records`,
	).Scan(&total)
	if err != nil {
		return 0, &StorageError{Op: "usage", Err: err}
	}
	return total.Int64, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func collectValues(rows *sql.Rows) ([][]byte, error) {
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, &StorageError{Op: "scan row", Err: err}
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "iterate rows", Err: err}
	}
	return out, nil
}

func nullableIndex(indexes map[string]string, name string) interface{} {
	if v, ok := indexes[name]; ok {
		return v
	}
	return nil
}
