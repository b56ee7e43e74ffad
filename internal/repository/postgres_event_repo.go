package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/opalizer/internal/database"
	"github.com/hitoshi/opalizer/internal/model"
)

// PostgresEventRepo はテナントスキーマ内のイベント・住所リポジトリ。
// 各書き込みは独立した1文＝1トランザクションであり、片方の失敗が
// コミット済みのもう片方を巻き戻すことはない。
type PostgresEventRepo struct {
	q database.Queryer
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
// qにはテナントスキーマに束縛された*database.SchemaConnを渡す。
func NewPostgresEventRepo(q database.Queryer) *PostgresEventRepo {
	return &PostgresEventRepo{q: q}
}

// CreateEvent はイベントを挿入する。イベントは書き込み後不変。
func (r *PostgresEventRepo) CreateEvent(ctx context.Context, event *model.Event) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO events
		     (id, tenant_id, latitude, longitude,
		      utm_source, utm_medium, utm_campaign, utm_term, utm_content, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.TenantID, event.Latitude, event.Longitude,
		event.UTMSource, event.UTMMedium, event.UTMCampaign, event.UTMTerm, event.UTMContent,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// UpsertAddress は住所をgeohashキーで冪等に挿入する。
// ON CONFLICT DO NOTHINGによりストレージ側でアトミックに解決されるため、
// 並行書き込みでも一意制約違反が呼び出し元に漏れることはない。
// 念のためON CONFLICT経路外で漏れた一意制約違反も成功として吸収する。
func (r *PostgresEventRepo) UpsertAddress(ctx context.Context, address *model.Address) (bool, error) {
	result, err := r.q.ExecContext(ctx,
		`INSERT INTO addresses (id, geohash, formatted, latitude, longitude, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (geohash) DO NOTHING`,
		address.ID, address.Geohash, address.Formatted, address.Latitude, address.Longitude, address.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert address: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// compile-time interface check
var _ EventRepository = (*PostgresEventRepo)(nil)
