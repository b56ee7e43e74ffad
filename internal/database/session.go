package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
)

// PublicSchema は共有スキーマの名前。テナントメタデータとスキーマレジストリが
// ここに存在する。このスキーマへのDROPは常に禁止される。
const PublicSchema = "public"

// SchemaConn は単一テナントスキーマに束縛されたデータアクセスハンドル。
// プールから専有した1本の接続のsearch_pathを対象スキーマに固定するため、
// このハンドル経由の非修飾テーブル参照は構造的に当該スキーマ内でしか
// 解決されない。他テナントのテーブルはWHERE句の工夫ではなく名前解決の
// レベルで到達不能になる。
//
// 使用後は必ずClose()を呼び、接続をプールへ返却すること。
type SchemaConn struct {
	conn   *sql.Conn
	schema string
}

// OpenSchema は指定スキーマに束縛されたSchemaConnを開く。
// search_pathの設定はset_configのバインドパラメータ経由で行い、
// スキーマ名をSQL文字列へ連結することはない。
func OpenSchema(ctx context.Context, db *sql.DB, schema string) (*SchemaConn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	if _, err := conn.ExecContext(ctx,
		`SELECT set_config('search_path', $1, false)`, schema,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to bind search_path to schema: %w", err)
	}

	return &SchemaConn{conn: conn, schema: schema}, nil
}

// Schema は束縛先のスキーマ名を返す。
func (c *SchemaConn) Schema() string {
	return c.schema
}

// ExecContext は束縛スキーマ上でクエリを実行する。
func (c *SchemaConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.conn.ExecContext(ctx, query, args...)
}

// QueryContext は束縛スキーマ上でクエリを実行し行を返す。
func (c *SchemaConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext は束縛スキーマ上でクエリを実行し単一行を返す。
func (c *SchemaConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

// Close はsearch_pathを共有スキーマへ戻してから接続をプールへ返却する。
// リクエストコンテキストがキャンセル済みでも復元は実行する必要があるため、
// 独立したコンテキストを使用する。復元に失敗した接続をプールに戻すと
// 後続の利用者が他テナントのスキーマを見てしまうため、その場合は接続を
// 破棄対象としてマークする。
func (c *SchemaConn) Close() error {
	_, err := c.conn.ExecContext(context.Background(),
		`SELECT set_config('search_path', $1, false)`, PublicSchema,
	)
	if err != nil {
		// driver.ErrBadConnを返すことでプールに接続を破棄させる
		c.conn.Raw(func(driverConn any) error {
			return driver.ErrBadConn
		})
		c.conn.Close()
		return fmt.Errorf("failed to restore search_path, discarding connection: %w", err)
	}
	return c.conn.Close()
}

var _ Queryer = (*SchemaConn)(nil)
