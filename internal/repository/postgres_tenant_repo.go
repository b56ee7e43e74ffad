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

// pqUniqueViolation は一意制約違反のSQLSTATE。
const pqUniqueViolation = pq.ErrorCode("23505")

// PostgresTenantRepo は共有スキーマ上のテナントメタデータリポジトリ。
type PostgresTenantRepo struct {
	db database.Queryer
}

// NewPostgresTenantRepo はPostgresTenantRepoを生成する。
// dbには共有スキーマに解決されるハンドル（通常は*sql.DB）を渡す。
func NewPostgresTenantRepo(db database.Queryer) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: db}
}

// Create はテナントメタデータを作成する。
// name/schema_name/api_keyの一意制約違反はTenantNameNotAvailableErrorとして返す。
func (r *PostgresTenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, schema_name, api_key, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		tenant.ID, tenant.Name, tenant.SchemaName, tenant.APIKey, tenant.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return &model.TenantNameNotAvailableError{Name: tenant.Name}
		}
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// FindByName は指定名のテナントを取得する。見つからない場合はnilを返す。
func (r *PostgresTenantRepo) FindByName(ctx context.Context, name string) (*model.Tenant, error) {
	return r.findOne(ctx,
		`SELECT id, name, schema_name, api_key, created_at FROM tenants WHERE name = $1`,
		name,
	)
}

// FindByAPIKey はAPIキーでテナントを検索する。見つからない場合はnilを返す。
func (r *PostgresTenantRepo) FindByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	return r.findOne(ctx,
		`SELECT id, name, schema_name, api_key, created_at FROM tenants WHERE api_key = $1`,
		apiKey,
	)
}

// ExistsByNameOrSchema は名前または正規化済みスキーマ名が衝突する
// テナントの有無を返す。名前は大文字小文字を無視して比較する。
func (r *PostgresTenantRepo) ExistsByNameOrSchema(ctx context.Context, name, schema string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM tenants WHERE lower(name) = lower($1) OR schema_name = $2
		 )`,
		name, schema,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return exists, nil
}

// ListAll は全テナントを作成日時順で返す。
func (r *PostgresTenantRepo) ListAll(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, schema_name, api_key, created_at FROM tenants ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		t := &model.Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.SchemaName, &t.APIKey, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, nil
}

// DeleteByID は指定IDのテナントメタデータを削除する。
func (r *PostgresTenantRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tenants WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}

func (r *PostgresTenantRepo) findOne(ctx context.Context, query string, arg any) (*model.Tenant, error) {
	t := &model.Tenant{}
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&t.ID, &t.Name, &t.SchemaName, &t.APIKey, &t.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant: %w", err)
	}

	return t, nil
}

// compile-time interface check
var _ TenantRepository = (*PostgresTenantRepo)(nil)
