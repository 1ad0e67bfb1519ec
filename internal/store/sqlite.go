// ABOUTME: SQLite-backed Store implementation for persistent dev sessions
// ABOUTME: Uses modernc.org/sqlite with WAL mode; rows carry items as serialized JSON

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Tailen/chatkit-ui/internal/chatkit"
)

// SQLiteStore persists threads across restarts. Items are stored as JSON
// blobs keyed by (thread_id, id); insertion order rides on rowid, which
// upserts preserve.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path and applies the
// schema. Use ":memory:" for an ephemeral database in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS items (
		thread_id TEXT NOT NULL,
		id TEXT NOT NULL,
		item TEXT NOT NULL,
		PRIMARY KEY (thread_id, id),
		FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		mime_type TEXT NOT NULL DEFAULT '',
		preview_url TEXT NOT NULL DEFAULT '',
		upload_url TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadThread(ctx context.Context, rc RequestContext, threadID string) (*chatkit.Thread, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, created_at, title, metadata FROM threads WHERE id = ?", threadID)
	return scanThread(row, threadID)
}

func (s *SQLiteStore) SaveThread(ctx context.Context, rc RequestContext, thread *chatkit.Thread) error {
	metadata := "{}"
	if thread.Metadata != nil {
		data, err := json.Marshal(thread.Metadata)
		if err != nil {
			return fmt.Errorf("serializing thread metadata: %w", err)
		}
		metadata = string(data)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, created_at, title, metadata) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, metadata = excluded.metadata`,
		thread.ID, thread.CreatedAt.UTC().Format(time.RFC3339Nano), thread.Title, metadata)
	if err != nil {
		return fmt.Errorf("saving thread %s: %w", thread.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadThreads(ctx context.Context, rc RequestContext, limit int, after string, order chatkit.Order) (chatkit.Page[*chatkit.Thread], error) {
	direction := "ASC"
	if order == chatkit.OrderDesc {
		direction = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, title, metadata FROM threads ORDER BY rowid "+direction)
	if err != nil {
		return chatkit.Page[*chatkit.Thread]{}, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var ordered []*chatkit.Thread
	for rows.Next() {
		thread, err := scanThread(rows, "")
		if err != nil {
			return chatkit.Page[*chatkit.Thread]{}, err
		}
		ordered = append(ordered, thread)
	}
	if err := rows.Err(); err != nil {
		return chatkit.Page[*chatkit.Thread]{}, fmt.Errorf("listing threads: %w", err)
	}
	return paginate(ordered, after, normalizeLimit(limit), func(t *chatkit.Thread) string { return t.ID }), nil
}

func (s *SQLiteStore) DeleteThread(ctx context.Context, rc RequestContext, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM threads WHERE id = ?", threadID); err != nil {
		return fmt.Errorf("deleting thread %s: %w", threadID, err)
	}
	return nil
}

func (s *SQLiteStore) AddThreadItem(ctx context.Context, rc RequestContext, threadID string, item chatkit.ThreadItem) error {
	return s.putItem(ctx, threadID, item)
}

func (s *SQLiteStore) SaveItem(ctx context.Context, rc RequestContext, threadID string, item chatkit.ThreadItem) error {
	return s.putItem(ctx, threadID, item)
}

func (s *SQLiteStore) putItem(ctx context.Context, threadID string, item chatkit.ThreadItem) error {
	if err := s.requireThread(ctx, threadID); err != nil {
		return err
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("serializing item %s: %w", item.Base().ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (thread_id, id, item) VALUES (?, ?, ?)
		ON CONFLICT(thread_id, id) DO UPDATE SET item = excluded.item`,
		threadID, item.Base().ID, string(data))
	if err != nil {
		return fmt.Errorf("saving item %s: %w", item.Base().ID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadItem(ctx context.Context, rc RequestContext, threadID, itemID string) (chatkit.ThreadItem, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT item FROM items WHERE thread_id = ? AND id = ?", threadID, itemID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading item %s: %w", itemID, err)
	}
	return chatkit.UnmarshalItem([]byte(data))
}

func (s *SQLiteStore) LoadThreadItems(ctx context.Context, rc RequestContext, threadID string, after string, limit int, order chatkit.Order) (chatkit.Page[chatkit.ThreadItem], error) {
	direction := "ASC"
	if order == chatkit.OrderDesc {
		direction = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT item FROM items WHERE thread_id = ? ORDER BY rowid "+direction, threadID)
	if err != nil {
		return chatkit.Page[chatkit.ThreadItem]{}, fmt.Errorf("listing items for thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var ordered []chatkit.ThreadItem
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return chatkit.Page[chatkit.ThreadItem]{}, fmt.Errorf("scanning item row: %w", err)
		}
		item, err := chatkit.UnmarshalItem([]byte(data))
		if err != nil {
			return chatkit.Page[chatkit.ThreadItem]{}, err
		}
		ordered = append(ordered, item)
	}
	if err := rows.Err(); err != nil {
		return chatkit.Page[chatkit.ThreadItem]{}, fmt.Errorf("listing items for thread %s: %w", threadID, err)
	}
	return paginate(ordered, after, normalizeLimit(limit), func(i chatkit.ThreadItem) string { return i.Base().ID }), nil
}

func (s *SQLiteStore) DeleteThreadItem(ctx context.Context, rc RequestContext, threadID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM items WHERE thread_id = ? AND id = ?", threadID, itemID)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", itemID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveAttachment(ctx context.Context, rc RequestContext, attachment *chatkit.Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, name, mime_type, preview_url, upload_url) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, mime_type = excluded.mime_type,
			preview_url = excluded.preview_url, upload_url = excluded.upload_url`,
		attachment.ID, attachment.Name, attachment.MimeType, attachment.PreviewURL, attachment.UploadURL)
	if err != nil {
		return fmt.Errorf("saving attachment %s: %w", attachment.ID, err)
	}
	return nil
}

func (s *SQLiteStore) LoadAttachment(ctx context.Context, rc RequestContext, attachmentID string) (*chatkit.Attachment, error) {
	var a chatkit.Attachment
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, mime_type, preview_url, upload_url FROM attachments WHERE id = ?", attachmentID).
		Scan(&a.ID, &a.Name, &a.MimeType, &a.PreviewURL, &a.UploadURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("attachment %s: %w", attachmentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading attachment %s: %w", attachmentID, err)
	}
	return &a, nil
}

func (s *SQLiteStore) DeleteAttachment(ctx context.Context, rc RequestContext, attachmentID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = ?", attachmentID); err != nil {
		return fmt.Errorf("deleting attachment %s: %w", attachmentID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) requireThread(ctx context.Context, threadID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM threads WHERE id = ?", threadID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking thread %s: %w", threadID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThread(row rowScanner, threadID string) (*chatkit.Thread, error) {
	var t chatkit.Thread
	var createdAt, metadata string
	err := row.Scan(&t.ID, &createdAt, &t.Title, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning thread row: %w", err)
	}
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing thread timestamp: %w", err)
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
			return nil, fmt.Errorf("parsing thread metadata: %w", err)
		}
	}
	return &t, nil
}
