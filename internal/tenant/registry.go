package tenant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/opalizer/internal/database"
	"github.com/hitoshi/opalizer/internal/model"
)

// Registry はプロビジョン済みスキーマとそのマイグレーションリビジョンの
// 永続的な台帳。共有スキーマのtenant_schemasテーブルに保存され、
// テナントコンテキストに依存せず参照できる。
type Registry struct {
	db database.Queryer
}

// NewRegistry はRegistryを生成する。dbは共有スキーマに解決されるハンドル
// （通常は*sql.DB）を渡す。
func NewRegistry(db database.Queryer) *Registry {
	return &Registry{db: db}
}

// Register はスキーマをレジストリに記録する。
// INSERT ... ON CONFLICTによる比較交換で行うため、並行呼び出しでも
// 二重登録は発生しない。既に登録済みの場合、allowUpdate=falseなら
// SchemaAlreadyExistsErrorを返し、trueならリビジョンを更新する。
func (r *Registry) Register(ctx context.Context, schema string, revision uint, allowUpdate bool) error {
	if allowUpdate {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO tenant_schemas (schema_name, revision)
			 VALUES ($1, $2)
			 ON CONFLICT (schema_name) DO UPDATE SET revision = EXCLUDED.revision`,
			schema, int64(revision),
		)
		if err != nil {
			return fmt.Errorf("failed to register schema: %w", err)
		}
		return nil
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO tenant_schemas (schema_name, revision)
		 VALUES ($1, $2)
		 ON CONFLICT (schema_name) DO NOTHING`,
		schema, int64(revision),
	)
	if err != nil {
		return fmt.Errorf("failed to register schema: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return &model.SchemaAlreadyExistsError{Schema: schema}
	}

	return nil
}

// Unregister はスキーマの記録を削除する。未登録の場合はエラーにしない。
func (r *Registry) Unregister(ctx context.Context, schema string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tenant_schemas WHERE schema_name = $1`,
		schema,
	)
	if err != nil {
		return fmt.Errorf("failed to unregister schema: %w", err)
	}
	return nil
}

// SchemaRecord はレジストリの1エントリ。
type SchemaRecord struct {
	Schema   string
	Revision uint
}

// List は登録済みの全スキーマとそのリビジョンを返す。
func (r *Registry) List(ctx context.Context) ([]SchemaRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT schema_name, revision FROM tenant_schemas ORDER BY schema_name`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	var records []SchemaRecord
	for rows.Next() {
		var rec SchemaRecord
		var revision int64
		if err := rows.Scan(&rec.Schema, &revision); err != nil {
			return nil, fmt.Errorf("failed to scan schema record: %w", err)
		}
		rec.Revision = uint(revision)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schema records: %w", err)
	}

	return records, nil
}

// CurrentRevision は登録済みスキーマのマイグレーションリビジョンを返す。
// 未登録の場合は第2戻り値がfalseになる。
func (r *Registry) CurrentRevision(ctx context.Context, schema string) (uint, bool, error) {
	var revision int64
	err := r.db.QueryRowContext(ctx,
		`SELECT revision FROM tenant_schemas WHERE schema_name = $1`,
		schema,
	).Scan(&revision)

	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query schema revision: %w", err)
	}

	return uint(revision), true, nil
}
