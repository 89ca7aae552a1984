package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/toolhop/internal/logger"
)

// SQLiteStore persists the log in a SQLite database. AUTOINCREMENT keeps
// sequence ids monotonic across the whole table, so every conversation
// partition is monotonic too.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates, if needed) the database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// A single writer connection serializes appends and keeps ids in commit order.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at INTEGER NOT NULL
    );`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}
	if _, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create messages index: %w", err)
	}
	logger.L.Info("sqlite history DB initialized", "path", dbPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, conversationID, role, payload string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO messages (session_id, role, content, created_at) VALUES (?,?,?,?);`,
		conversationID, role, payload, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) AppendBatch(ctx context.Context, conversationID string, records []Record) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		res, err := tx.ExecContext(ctx, `INSERT INTO messages (session_id, role, content, created_at) VALUES (?,?,?,?);`,
			conversationID, r.Role, r.Payload, now)
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) List(ctx context.Context, conversationID string, limit int) ([]Entry, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.db.QueryContext(ctx, `SELECT id, session_id, role, content, created_at FROM (
            SELECT id, session_id, role, content, created_at FROM messages
            WHERE session_id = ? ORDER BY id DESC LIMIT ?
        ) ORDER BY id ASC;`, conversationID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY id ASC;`, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.SequenceID, &e.ConversationID, &e.Role, &e.Payload, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, conversationID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id = ?;`, conversationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, conversationID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?;`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("delete messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	logger.L.Info("cleared conversation history", "conversation", conversationID, "deleted", n)
	return int(n), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
