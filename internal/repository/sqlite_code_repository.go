package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/aptitest-backend/internal/model"
)

// SQLiteCodeRepository is the SQLite twin of CodeRepository.
type SQLiteCodeRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteCodeRepository creates a new SQLiteCodeRepository.
func NewSQLiteCodeRepository(db *sql.DB) *SQLiteCodeRepository {
	return &SQLiteCodeRepository{db: db, now: time.Now}
}

func (r *SQLiteCodeRepository) GetByValue(ctx context.Context, value string) (*model.Code, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, code_value, is_used, created_at, used_at FROM codes WHERE code_value = ?`, value))
}

func (r *SQLiteCodeRepository) MarkUsed(ctx context.Context, value string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE codes SET is_used = 1, used_at = COALESCE(used_at, ?) WHERE code_value = ?`,
		toMillis(at), value,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteCodeRepository) CreateBatch(ctx context.Context, values []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := toMillis(r.now())
	for _, v := range values {
		if _, err := tx.ExecContext(ctx, `INSERT INTO codes (code_value, created_at) VALUES (?, ?)`, v, created); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return fmt.Errorf("%w: %s", ErrDuplicateCode, v)
			}
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteCodeRepository) List(ctx context.Context, used *bool, limit int) ([]model.Code, error) {
	query := `SELECT id, code_value, is_used, created_at, used_at FROM codes`
	args := []any{}
	if used != nil {
		query += ` WHERE is_used = ?`
		args = append(args, *used)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []model.Code
	for rows.Next() {
		c, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, *c)
	}
	return codes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteCodeRepository) scanOne(row rowScanner) (*model.Code, error) {
	var (
		c       model.Code
		created int64
		used    sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.CodeValue, &c.IsUsed, &created, &used); err != nil {
		return nil, mapNoRows(err)
	}
	c.CreatedAt = fromMillis(created)
	c.UsedAt = fromNullMillis(used)
	return &c, nil
}
