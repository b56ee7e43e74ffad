package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/opalizer/internal/database"
	"github.com/hitoshi/opalizer/internal/model"
)

// PostgresStoreRepo はテナントスキーマ内の店舗リポジトリ。
// リクエストごとにスキーマ束縛済みハンドルから構築する。
type PostgresStoreRepo struct {
	q database.Queryer
}

// NewPostgresStoreRepo はPostgresStoreRepoを生成する。
// qにはテナントスキーマに束縛された*database.SchemaConnを渡す。
func NewPostgresStoreRepo(q database.Queryer) *PostgresStoreRepo {
	return &PostgresStoreRepo{q: q}
}

// Create は店舗を作成する。名前の一意制約違反はStoreNameNotAvailableErrorとして返す。
func (r *PostgresStoreRepo) Create(ctx context.Context, store *model.Store) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO stores (id, name, owner, latitude, longitude, radius_m, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		store.ID, store.Name, store.Owner, store.Latitude, store.Longitude, store.RadiusM, store.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return &model.StoreNameNotAvailableError{Name: store.Name}
		}
		return fmt.Errorf("failed to insert store: %w", err)
	}
	return nil
}

// FindByID は指定IDの店舗を取得する。見つからない場合はnilを返す。
func (r *PostgresStoreRepo) FindByID(ctx context.Context, id string) (*model.Store, error) {
	return r.findOne(ctx,
		`SELECT id, name, owner, latitude, longitude, radius_m, created_at FROM stores WHERE id = $1`,
		id,
	)
}

// FindByName は指定名の店舗を取得する。見つからない場合はnilを返す。
func (r *PostgresStoreRepo) FindByName(ctx context.Context, name string) (*model.Store, error) {
	return r.findOne(ctx,
		`SELECT id, name, owner, latitude, longitude, radius_m, created_at FROM stores WHERE name = $1`,
		name,
	)
}

// ListAll は全店舗を作成日時順で返す。
func (r *PostgresStoreRepo) ListAll(ctx context.Context) ([]*model.Store, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, owner, latitude, longitude, radius_m, created_at FROM stores ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stores: %w", err)
	}
	defer rows.Close()

	var stores []*model.Store
	for rows.Next() {
		s := &model.Store{}
		if err := rows.Scan(&s.ID, &s.Name, &s.Owner, &s.Latitude, &s.Longitude, &s.RadiusM, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan store: %w", err)
		}
		stores = append(stores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stores: %w", err)
	}

	return stores, nil
}

// DeleteByID は指定IDの店舗を削除する。存在しない場合もエラーにしない。
func (r *PostgresStoreRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM stores WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete store: %w", err)
	}
	return nil
}

func (r *PostgresStoreRepo) findOne(ctx context.Context, query string, arg any) (*model.Store, error) {
	s := &model.Store{}
	err := r.q.QueryRowContext(ctx, query, arg).
		Scan(&s.ID, &s.Name, &s.Owner, &s.Latitude, &s.Longitude, &s.RadiusM, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find store: %w", err)
	}

	return s, nil
}

// compile-time interface check
var _ StoreRepository = (*PostgresStoreRepo)(nil)
