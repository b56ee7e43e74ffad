// Package database はデータベース接続、スキーマ束縛セッション、
// マイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/public/*.sql migrations/tenant/*.sql
var migrationsFS embed.FS

// NewPublicMigrator は共有スキーマ（public）用のmigrateインスタンスを生成する。
// テナントメタデータ、スキーマレジストリ、デッドレターのテーブルを管理する。
func NewPublicMigrator(databaseURL string) (*migrate.Migrate, error) {
	return newMigrator(databaseURL, "migrations/public", PublicSchema)
}

// NewTenantMigrator は単一テナントスキーマ用のmigrateインスタンスを生成する。
// 接続のsearch_pathを対象スキーマに固定することでマイグレーションの適用範囲と
// バージョン管理テーブル（schema_migrations）を当該スキーマ内に閉じ込める。
// 他のスキーマには一切触れない。
func NewTenantMigrator(databaseURL, schema string) (*migrate.Migrate, error) {
	return newMigrator(databaseURL, "migrations/tenant", schema)
}

func newMigrator(databaseURL, dir, schema string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	u, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// search_pathはlib/pqが実行時パラメータとして接続に適用する。
	// スキーマ名がSQLテキストに混入することはない。
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()

	m, err := migrate.NewWithSourceInstance("iofs", source, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// PublicHeadRevision は埋め込まれた共有スキーマ用マイグレーション
// チェーンの最新リビジョン番号を返す。
func PublicHeadRevision() (uint, error) {
	return headRevision("migrations/public")
}

// TenantHeadRevision は埋め込まれたテナントスキーマ用マイグレーション
// チェーンの最新リビジョン番号を返す。
func TenantHeadRevision() (uint, error) {
	return headRevision("migrations/tenant")
}

// headRevision は埋め込みディレクトリ内のファイル名から最大の
// バージョン番号を読み取る。バイナリに焼き込まれたチェーンから
// 導出するため、定数との二重管理は発生しない。
func headRevision(dir string) (uint, error) {
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration dir %q: %w", dir, err)
	}

	var head uint64
	for _, entry := range entries {
		name := entry.Name()
		i := strings.IndexByte(name, '_')
		if i <= 0 {
			continue
		}
		v, err := strconv.ParseUint(name[:i], 10, 32)
		if err != nil {
			continue
		}
		if v > head {
			head = v
		}
	}
	if head == 0 {
		return 0, fmt.Errorf("no migrations found in %q", dir)
	}
	return uint(head), nil
}

// RunPublicMigrations は共有スキーマのマイグレーションをすべて適用する。
// すでに最新の場合はエラーなしで返る。サーバーはこの呼び出しが成功するまで
// トラフィックを受け付けてはならない。
func RunPublicMigrations(databaseURL string) error {
	m, err := NewPublicMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run public migrations: %w", err)
	}

	return nil
}
