package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"chatproxy/internal/models"
)

type ExchangeRepo struct {
	pool *pgxpool.Pool
}

func NewExchangeRepo(pool *pgxpool.Pool) *ExchangeRepo {
	return &ExchangeRepo{pool: pool}
}

func (r *ExchangeRepo) Create(ctx context.Context, e *models.Exchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO chat_exchanges
		(id, request_id, variant, provider, model, status, error_code, fingerprint, prompt_length, attempts, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.RequestID, e.Variant, e.Provider, e.Model, e.Status, e.ErrorCode,
		e.Fingerprint, e.PromptLength, e.Attempts, e.DurationMS, e.CreatedAt,
	)
	return err
}

// DeleteOlderThan removes exchanges created before cutoff and reports how many went.
func (r *ExchangeRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM chat_exchanges WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
