package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/aptitest-backend/internal/model"
)

var ErrDuplicateCode = errors.New("code already exists")

// CodeRepository handles one-time code data access.
type CodeRepository struct {
	pool *pgxpool.Pool
}

// NewCodeRepository creates a new CodeRepository.
func NewCodeRepository(pool *pgxpool.Pool) *CodeRepository {
	return &CodeRepository{pool: pool}
}

// GetByValue retrieves a code by its value.
func (r *CodeRepository) GetByValue(ctx context.Context, value string) (*model.Code, error) {
	c := &model.Code{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, code_value, is_used, created_at, used_at FROM codes WHERE code_value = $1`, value,
	).Scan(&c.ID, &c.CodeValue, &c.IsUsed, &c.CreatedAt, &c.UsedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return c, nil
}

// MarkUsed flags the code as used. Marking an already used code keeps the
// first used_at.
func (r *CodeRepository) MarkUsed(ctx context.Context, value string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE codes SET is_used = TRUE, used_at = COALESCE(used_at, $2) WHERE code_value = $1`,
		value, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateBatch inserts new unused codes in one transaction.
func (r *CodeRepository) CreateBatch(ctx context.Context, values []string) error {
	batch := &pgx.Batch{}
	for _, v := range values {
		batch.Queue(`INSERT INTO codes (code_value) VALUES ($1)`, v)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return tx.Commit(ctx)
}

// List returns codes newest first, optionally filtered by usage.
func (r *CodeRepository) List(ctx context.Context, used *bool, limit int) ([]model.Code, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code_value, is_used, created_at, used_at FROM codes
		 WHERE $1::boolean IS NULL OR is_used = $1
		 ORDER BY id DESC LIMIT $2`, used, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []model.Code
	for rows.Next() {
		var c model.Code
		if err := rows.Scan(&c.ID, &c.CodeValue, &c.IsUsed, &c.CreatedAt, &c.UsedAt); err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}
