// Package repository はデータ永続化のインターフェースを定義する。
//
// テナントスキーマ内のテーブルを扱うリポジトリ（Store/Event/Impression）は
// database.Queryerに対して構築する。どのスキーマで実行されるかは渡される
// ハンドル（publicなら*sql.DB、テナントなら*database.SchemaConn）が決める。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/opalizer/internal/model"
)

// TenantRepository は共有スキーマ上のテナントメタデータの永続化インターフェース。
type TenantRepository interface {
	// Create はテナントメタデータを作成する。
	// name/schema_name/api_keyの一意制約違反はTenantNameNotAvailableErrorとして返す。
	Create(ctx context.Context, tenant *model.Tenant) error

	// FindByName は指定名のテナントを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Tenant, error)

	// FindByAPIKey はAPIキーでテナントを検索する。見つからない場合はnilを返す。
	FindByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error)

	// ExistsByNameOrSchema は名前または正規化済みスキーマ名が衝突する
	// テナントの有無を返す。プロビジョン前の事前検査に使う。
	ExistsByNameOrSchema(ctx context.Context, name, schema string) (bool, error)

	// ListAll は全テナントを作成日時順で返す。
	ListAll(ctx context.Context) ([]*model.Tenant, error)

	// DeleteByID は指定IDのテナントメタデータを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// StoreRepository はテナントスキーマ内の店舗の永続化インターフェース。
type StoreRepository interface {
	// Create は店舗を作成する。名前の一意制約違反はStoreNameNotAvailableErrorとして返す。
	Create(ctx context.Context, store *model.Store) error

	// FindByID は指定IDの店舗を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Store, error)

	// FindByName は指定名の店舗を取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.Store, error)

	// ListAll は全店舗を作成日時順で返す。
	ListAll(ctx context.Context) ([]*model.Store, error)

	// DeleteByID は指定IDの店舗を削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// EventRepository はテナントスキーマ内のイベントと住所の永続化インターフェース。
type EventRepository interface {
	// CreateEvent はイベントを挿入する。イベントは書き込み後不変。
	CreateEvent(ctx context.Context, event *model.Event) error

	// UpsertAddress は住所をgeohashキーで冪等に挿入する。
	// 既存geohashとの衝突は挿入なしの成功として扱う（並行書き込みは正常系）。
	// 戻り値は新規挿入されたかどうか。
	UpsertAddress(ctx context.Context, address *model.Address) (bool, error)
}

// ImpressionRepository はテナントスキーマ内のインプレッションカウンターの
// 永続化インターフェース。
type ImpressionRepository interface {
	// Bump はuser_idのカウンターをアトミックに+1する（insert-or-increment）。
	// 並行呼び出しでも一意制約違反は呼び出し元に観測されない。
	Bump(ctx context.Context, id, userID string) error

	// Count は指定user_idの現在値を返す。行が無い場合は0を返す。
	Count(ctx context.Context, userID string) (int64, error)
}

// DeadLetterRepository は処理失敗イベントの記録の永続化インターフェース。
// 共有スキーマのevent_deadlettersテーブルを扱う。
type DeadLetterRepository interface {
	// Create はデッドレターを記録する。
	Create(ctx context.Context, dl *model.DeadLetter) error

	// DeleteOlderThan は指定時刻より古いデッドレターを削除し、件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
