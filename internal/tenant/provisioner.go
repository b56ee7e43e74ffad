package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/lib/pq"

	"github.com/hitoshi/opalizer/internal/database"
	"github.com/hitoshi/opalizer/internal/model"
)

// pqDependentObjectsStillExist はRESTRICT付きDROPが依存オブジェクトにより
// 拒否された際のSQLSTATE。
const pqDependentObjectsStillExist = pq.ErrorCode("2BP01")

// Provisioner はテナントスキーマの作成・削除とスキーマ単位の
// マイグレーション実行を担う唯一のコンポーネント。
// 各ステップは冪等であり、途中失敗後のProvision再試行は安全。
// スキーマ作成後のマイグレーションは中断不可として扱う
// （部分適用状態は安全でないため、呼び出しコンテキストのキャンセルを
// DDL実行には伝播させない）。
type Provisioner struct {
	db          *sql.DB
	databaseURL string
	registry    *Registry
	logger      *slog.Logger
}

// NewProvisioner はProvisionerを生成する。
func NewProvisioner(db *sql.DB, databaseURL string, registry *Registry, logger *slog.Logger) *Provisioner {
	return &Provisioner{
		db:          db,
		databaseURL: databaseURL,
		registry:    registry,
		logger:      logger,
	}
}

// Provision はテナントスキーマを作成し、マイグレーションを先頭から
// 最新リビジョンまで適用し、レジストリに記録する。
//
// 予約名の検査は他のあらゆる副作用より先に行う。スキーマ作成は
// IF NOT EXISTSによる比較作成であり、並行呼び出しの敗者はレジストリ登録で
// SchemaAlreadyExistsErrorを観測するが、スキーマが最新リビジョンに
// 到達していれば成功として扱う。
func (p *Provisioner) Provision(ctx context.Context, schema string) error {
	if IsReservedSchema(schema) {
		return &model.ReservedSchemaError{Schema: schema}
	}
	if !ValidSchemaName(schema) {
		return fmt.Errorf("不正なスキーマ名です: %q", schema)
	}

	// スキーマ名は正規化・検証済みの不透明トークン。DDLの識別子は
	// バインドできないため、QuoteIdentifierを通して埋め込む。
	_, err := p.db.ExecContext(ctx,
		`CREATE SCHEMA IF NOT EXISTS `+pq.QuoteIdentifier(schema),
	)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	revision, err := p.migrateToHead(schema)
	if err != nil {
		return err
	}

	err = p.registry.Register(ctx, schema, revision, false)
	if err != nil {
		var exists *model.SchemaAlreadyExistsError
		if errors.As(err, &exists) {
			// 並行Provisionの敗者側。スキーマが同一リビジョンで
			// ready状態なら勝者の結果をそのまま受け入れる。
			current, ok, revErr := p.registry.CurrentRevision(ctx, schema)
			if revErr != nil {
				return revErr
			}
			if ok && current == revision {
				p.logger.Info("スキーマは既にプロビジョン済みです",
					slog.String("schema", schema),
					slog.Uint64("revision", uint64(revision)),
				)
				return nil
			}
			// 登録済みリビジョンが古い場合は適用済みの最新値へ更新する
			return p.registry.Register(ctx, schema, revision, true)
		}
		return err
	}

	p.logger.Info("スキーマをプロビジョンしました",
		slog.String("schema", schema),
		slog.Uint64("revision", uint64(revision)),
	)
	return nil
}

// Deprovision はテナントスキーマを削除し、レジストリから登録を外す。
// cascade=trueの場合は内部の全オブジェクトごと無条件に削除する。
// cascade=falseの場合は依存オブジェクトが存在すると
// DependentObjectsExistErrorを返し、スキーマとデータは無傷のまま残る。
// 予約スキーマの削除は常に拒否する。
func (p *Provisioner) Deprovision(ctx context.Context, schema string, cascade bool) error {
	if IsReservedSchema(schema) {
		return &model.ReservedSchemaError{Schema: schema}
	}
	if !ValidSchemaName(schema) {
		return fmt.Errorf("不正なスキーマ名です: %q", schema)
	}

	mode := "RESTRICT"
	if cascade {
		mode = "CASCADE"
	}

	_, err := p.db.ExecContext(ctx,
		`DROP SCHEMA IF EXISTS `+pq.QuoteIdentifier(schema)+` `+mode,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqDependentObjectsStillExist {
			return &model.DependentObjectsExistError{Schema: schema}
		}
		return fmt.Errorf("failed to drop schema: %w", err)
	}

	if err := p.registry.Unregister(ctx, schema); err != nil {
		return err
	}

	p.logger.Info("スキーマを削除しました",
		slog.String("schema", schema),
		slog.Bool("cascade", cascade),
	)
	return nil
}

// Upgrade は単一スキーマのマイグレーションをtargetリビジョンまで適用する。
// 既にtargetに到達している場合は何もしない。起動時の共有スキーマ更新と
// テナントごとの遅延アップグレードの両方で使用する。
func (p *Provisioner) Upgrade(ctx context.Context, schema string, target uint) error {
	var (
		m   *migrate.Migrate
		err error
	)
	if schema == database.PublicSchema {
		m, err = database.NewPublicMigrator(p.databaseURL)
	} else {
		if !ValidSchemaName(schema) {
			return fmt.Errorf("不正なスキーマ名です: %q", schema)
		}
		m, err = database.NewTenantMigrator(p.databaseURL, schema)
	}
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Migrate(target); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to upgrade schema %q: %w", schema, err)
	}

	if schema != database.PublicSchema {
		if err := p.registry.Register(ctx, schema, target, true); err != nil {
			return err
		}
	}

	return nil
}

// UpgradeOutdated はレジストリ上のリビジョンが最新に満たない
// テナントスキーマをすべて最新までアップグレードする。起動時に呼ばれ、
// デプロイで増えたマイグレーションを既存テナントへ行き渡らせる。
// 個別スキーマの失敗は他のスキーマのアップグレードを妨げない。
func (p *Provisioner) UpgradeOutdated(ctx context.Context) error {
	head, err := database.TenantHeadRevision()
	if err != nil {
		return err
	}

	records, err := p.registry.List(ctx)
	if err != nil {
		return err
	}

	var failed int
	for _, rec := range records {
		if rec.Revision >= head {
			continue
		}
		if err := p.Upgrade(ctx, rec.Schema, head); err != nil {
			p.logger.Error("スキーマのアップグレードに失敗しました",
				slog.String("schema", rec.Schema),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		p.logger.Info("スキーマをアップグレードしました",
			slog.String("schema", rec.Schema),
			slog.Uint64("from", uint64(rec.Revision)),
			slog.Uint64("to", uint64(head)),
		)
	}

	if failed > 0 {
		return fmt.Errorf("failed to upgrade %d schemas", failed)
	}
	return nil
}

// migrateToHead はテナントスキーマのマイグレーションチェーンを
// 最新リビジョンまで適用し、適用後のリビジョンを返す。
// 適用範囲はスキーマに束縛された接続に閉じており、他スキーマには触れない。
func (p *Provisioner) migrateToHead(schema string) (uint, error) {
	m, err := database.NewTenantMigrator(p.databaseURL, schema)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to migrate schema %q: %w", schema, err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		// 部分適用されたスキーマをreadyとして通過させない
		return 0, fmt.Errorf("schema %q is in a dirty migration state (version %d)", schema, version)
	}

	return version, nil
}
