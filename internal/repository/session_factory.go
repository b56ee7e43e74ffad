package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/opalizer/internal/database"
)

// TenantSession は単一テナントスキーマに束縛された1セッション分の
// データアクセス。公開するリポジトリはすべて同じスキーマ束縛接続を共有する。
// 使用後は必ずClose()を呼ぶこと（すべての復帰経路でdefer推奨）。
type TenantSession interface {
	Stores() StoreRepository
	Events() EventRepository
	Impressions() ImpressionRepository
	Close() error
}

// SessionFactory はテナントスキーマ束縛セッションの生成インターフェース。
type SessionFactory interface {
	// Open は指定スキーマに束縛されたセッションを開く。
	Open(ctx context.Context, schema string) (TenantSession, error)
}

// PostgresSessionFactory はSessionFactoryのPostgreSQL実装。
// database.OpenSchemaで専有接続のsearch_pathを束縛する。
type PostgresSessionFactory struct {
	db *sql.DB
}

// NewPostgresSessionFactory はPostgresSessionFactoryを生成する。
func NewPostgresSessionFactory(db *sql.DB) *PostgresSessionFactory {
	return &PostgresSessionFactory{db: db}
}

// Open は指定スキーマに束縛されたセッションを開く。
func (f *PostgresSessionFactory) Open(ctx context.Context, schema string) (TenantSession, error) {
	conn, err := database.OpenSchema(ctx, f.db, schema)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema session: %w", err)
	}
	return &postgresTenantSession{conn: conn}, nil
}

// postgresTenantSession はTenantSessionのPostgreSQL実装。
type postgresTenantSession struct {
	conn *database.SchemaConn
}

func (s *postgresTenantSession) Stores() StoreRepository {
	return NewPostgresStoreRepo(s.conn)
}

func (s *postgresTenantSession) Events() EventRepository {
	return NewPostgresEventRepo(s.conn)
}

func (s *postgresTenantSession) Impressions() ImpressionRepository {
	return NewPostgresImpressionRepo(s.conn)
}

func (s *postgresTenantSession) Close() error {
	return s.conn.Close()
}

// compile-time interface check
var _ SessionFactory = (*PostgresSessionFactory)(nil)
