package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/opalizer/internal/database"
)

// PostgresImpressionRepo はテナントスキーマ内のインプレッションカウンター
// リポジトリ。カウンターは単調増加のみで、減算は存在しない。
type PostgresImpressionRepo struct {
	q database.Queryer
}

// NewPostgresImpressionRepo はPostgresImpressionRepoを生成する。
// qにはテナントスキーマに束縛された*database.SchemaConnを渡す。
func NewPostgresImpressionRepo(q database.Queryer) *PostgresImpressionRepo {
	return &PostgresImpressionRepo{q: q}
}

// Bump はuser_idのカウンターをアトミックに+1する。
// insert-or-incrementはストレージ側のON CONFLICT DO UPDATEで解決するため、
// 並行するN回の呼び出しは1行のcount=Nに収束し、呼び出し元が
// 一意制約違反を観測することはない。
func (r *PostgresImpressionRepo) Bump(ctx context.Context, id, userID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO impressions (id, user_id, count)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (user_id)
		 DO UPDATE SET count = impressions.count + 1`,
		id, userID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			// 冪等アップサートの競合は正常系
			return nil
		}
		return fmt.Errorf("failed to bump impression: %w", err)
	}
	return nil
}

// Count は指定user_idの現在値を返す。行が無い場合は0を返す。
func (r *PostgresImpressionRepo) Count(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.q.QueryRowContext(ctx,
		`SELECT count FROM impressions WHERE user_id = $1`,
		userID,
	).Scan(&count)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query impression count: %w", err)
	}

	return count, nil
}

// compile-time interface check
var _ ImpressionRepository = (*PostgresImpressionRepo)(nil)
