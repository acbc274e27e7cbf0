// File: internal/infra/db/postgres/history_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"telegram-ai-relay/internal/domain"
	"telegram-ai-relay/internal/domain/model"
	"telegram-ai-relay/internal/domain/ports/repository"
	"telegram-ai-relay/internal/infra/metrics"
	"telegram-ai-relay/internal/infra/security"
)

var _ repository.HistoryRepository = (*HistoryRepo)(nil)

const uniqueViolation = "23505"

// HistoryRepo keeps turns in the chat_history table. Content passes through
// the sealer so it can be encrypted at rest.
type HistoryRepo struct {
	pool   *pgxpool.Pool
	tm     repository.TransactionManager
	sealer security.Sealer
}

func NewHistoryRepo(pool *pgxpool.Pool, sealer security.Sealer) *HistoryRepo {
	if sealer == nil {
		sealer = security.Plain{}
	}
	return &HistoryRepo{pool: pool, tm: NewTxManager(pool), sealer: sealer}
}

func (r *HistoryRepo) FetchRecent(ctx context.Context, chatID int64, limit int) ([]model.Turn, error) {
	if limit <= 0 {
		return []model.Turn{}, nil
	}
	const q = `
SELECT id, chat_id, role, content, created_at
FROM chat_history
WHERE chat_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, chatID, limit)
	if err != nil {
		metrics.IncHistoryStoreError("fetch")
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	defer rows.Close()

	out := make([]model.Turn, 0, limit)
	for rows.Next() {
		var (
			t       model.Turn
			role    string
			content string
		)
		if err := rows.Scan(&t.ID, &t.ChatID, &role, &content, &t.CreatedAt); err != nil {
			metrics.IncHistoryStoreError("fetch")
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if t.Role, err = decodeRole(role); err != nil {
			return nil, err
		}
		if t.Content, err = r.sealer.Open(content); err != nil {
			return nil, fmt.Errorf("open turn %s: %w", t.ID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		metrics.IncHistoryStoreError("fetch")
		return nil, fmt.Errorf("fetch recent: %w", err)
	}
	reverseTurns(out)
	return out, nil
}

func (r *HistoryRepo) AppendBatch(ctx context.Context, chatID int64, turns []model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	const q = `
INSERT INTO chat_history (id, chat_id, role, content, created_at)
VALUES ($1,$2,$3,$4,$5);`

	batch := &pgx.Batch{}
	for _, t := range prepareTurns(chatID, turns) {
		content, err := r.sealer.Seal(t.Content)
		if err != nil {
			return fmt.Errorf("seal turn: %w", err)
		}
		batch.Queue(q, t.ID, t.ChatID, string(t.Role), content, t.CreatedAt)
	}

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		pgTx, ok := tx.(pgx.Tx)
		if !ok {
			return fmt.Errorf("unexpected tx type %T", tx)
		}
		br := pgTx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return err
			}
		}
		return br.Close()
	})
	if err != nil {
		metrics.IncHistoryStoreError("append")
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: duplicate turn id: %v", domain.ErrInvalidArgument, err)
		}
		return fmt.Errorf("append turns: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Clear(ctx context.Context, chatID int64) error {
	const q = `DELETE FROM chat_history WHERE chat_id = $1;`
	if _, err := r.pool.Exec(ctx, q, chatID); err != nil {
		metrics.IncHistoryStoreError("clear")
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM chat_history WHERE created_at < $1;`
	tag, err := r.pool.Exec(ctx, q, cutoff.UTC())
	if err != nil {
		metrics.IncHistoryStoreError("prune")
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}

// prepareTurns fills ids and timestamps and pins every turn to chatID.
func prepareTurns(chatID int64, turns []model.Turn) []model.Turn {
	out := make([]model.Turn, len(turns))
	now := time.Now().UTC()
	for i, t := range turns {
		t.ChatID = chatID
		if t.ID == "" {
			t.ID = ulid.Make().String()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.CreatedAt = t.CreatedAt.UTC()
		out[i] = t
	}
	return out
}

func decodeRole(s string) (model.Role, error) {
	role, ok := model.ParseRole(s)
	if !ok {
		return "", fmt.Errorf("unknown stored role %q", s)
	}
	return role, nil
}

func reverseTurns(ts []model.Turn) {
	for i, j := 0, len(ts)-1; i < j; i, j = i+1, j-1 {
		ts[i], ts[j] = ts[j], ts[i]
	}
}
