// Package sqlite keeps chat history in a single local file for deployments
// without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/metrics"
	"telegram-ai-relay/internal/infra/security"
)

var _ repository.HistoryRepository = (*HistoryRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS chat_history (
	id         TEXT PRIMARY KEY,
	chat_id    INTEGER NOT NULL,
	role       TEXT    NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
	content    TEXT    NOT NULL,
	created_us INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_history_chat_created ON chat_history (chat_id, created_us DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_chat_history_created ON chat_history (created_us);
`

type HistoryRepo struct {
	db     *sql.DB
	sealer security.Sealer
}

// Open creates the database file if needed and applies the schema. Use
// ":memory:" for a throwaway store.
func Open(ctx context.Context, path string, sealer security.Sealer) (*HistoryRepo, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if sealer == nil {
		sealer = security.Plain{}
	}
	return &HistoryRepo{db: db, sealer: sealer}, nil
}

func (r *HistoryRepo) Close() error { return r.db.Close() }

func (r *HistoryRepo) FetchRecent(ctx context.Context, chatID int64, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}
	const q = `
SELECT id, role, content, created_us FROM (
	SELECT id, role, content, created_us
	FROM chat_history
	WHERE chat_id = ?
	ORDER BY created_us DESC, id DESC
	LIMIT ?
) ORDER BY created_us ASC, id ASC;`
	rows, err := r.db.QueryContext(ctx, q, chatID, limit)
	if err != nil {
		metrics.IncHistoryStoreError("fetch")
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	defer rows.Close()

	out := make([]model.Turn, 0, limit)
	for rows.Next() {
		var (
			t         model.Turn
			role      string
			content   string
			createdUS int64
		)
		if err := rows.Scan(&t.ID, &role, &content, &createdUS); err != nil {
			metrics.IncHistoryStoreError("fetch")
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		var ok bool
		if t.Role, ok = model.ParseRole(role); !ok {
			return nil, fmt.Errorf("unknown stored role %q", role)
		}
		if t.Content, err = r.sealer.Open(content); err != nil {
			return nil, fmt.Errorf("open turn %s: %w", t.ID, err)
		}
		t.ChatID = chatID
		t.CreatedAt = time.UnixMicro(createdUS).UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		metrics.IncHistoryStoreError("fetch")
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	return out, nil
}

func (r *HistoryRepo) AppendBatch(ctx context.Context, chatID int64, turns []model.Turn) (err error) {
	if len(turns) == 0 {
		return nil
	}
	defer func() {
		if err != nil {
			metrics.IncHistoryStoreError("append")
		}
	}()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chat_history (id, chat_id, role, content, created_us) VALUES (?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, t := range turns {
		if t.ID == "" {
			t.ID = ulid.Make().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		content, err := r.sealer.Seal(t.Content)
		if err != nil {
			return fmt.Errorf("seal turn: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, t.ID, chatID, string(t.Role), content, t.CreatedAt.UnixMicro()); err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Clear(ctx context.Context, chatID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM chat_history WHERE chat_id = ?`, chatID); err != nil {
		metrics.IncHistoryStoreError("clear")
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_history WHERE created_us < ?`, cutoff.UnixMicro())
	if err != nil {
		metrics.IncHistoryStoreError("prune")
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}
