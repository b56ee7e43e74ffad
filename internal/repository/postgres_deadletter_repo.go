package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/opalizer/internal/database"
	"github.com/hitoshi/opalizer/internal/model"
)

// PostgresDeadLetterRepo は共有スキーマ上のデッドレターリポジトリ。
// イベント処理の失敗はここに記録され、後からの調査・再投入に使われる。
type PostgresDeadLetterRepo struct {
	db database.Queryer
}

// NewPostgresDeadLetterRepo はPostgresDeadLetterRepoを生成する。
// dbには共有スキーマに解決されるハンドル（通常は*sql.DB）を渡す。
func NewPostgresDeadLetterRepo(db database.Queryer) *PostgresDeadLetterRepo {
	return &PostgresDeadLetterRepo{db: db}
}

// Create はデッドレターを記録する。
func (r *PostgresDeadLetterRepo) Create(ctx context.Context, dl *model.DeadLetter) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_deadletters (id, tenant_schema, payload, reason, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		dl.ID, dl.TenantSchema, dl.Payload, dl.Reason, dl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

// DeleteOlderThan は指定時刻より古いデッドレターを削除し、件数を返す。
func (r *PostgresDeadLetterRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM event_deadletters WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete dead letters: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// compile-time interface check
var _ DeadLetterRepository = (*PostgresDeadLetterRepo)(nil)
