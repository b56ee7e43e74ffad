package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/opalizer/internal/geocode"
	"github.com/hitoshi/opalizer/internal/metrics"
	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/repository"
)

// Service はイベント帰属処理を提供する。
// すべてのデータアクセスは解決済みテナントのスキーマに束縛された
// セッションを通して行われる。
type Service struct {
	sessions repository.SessionFactory
	geocoder geocode.GeocoderService
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	sessions repository.SessionFactory,
	geocoder geocode.GeocoderService,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		geocoder: geocoder,
		metrics:  collector,
		logger:   logger,
	}
}

// ProcessEvent はビーコンイベントの帰属判定と永続化を行う。
// いずれかの店舗のジオフェンス内であればイベントを記録し、逆ジオコー
// ディングした住所をベストエフォートで注釈する。ジオフェンス外の
// イベントはエラーなしで破棄する（意図されたフィルタリング）。
//
// イベント挿入・住所アップサートはそれぞれ独立した1文トランザクション。
// 逆ジオコーディングの失敗はコミット済みイベントを巻き戻さずに
// 呼び出し元（ディスパッチャー）へ伝播し、そこで捕捉・記録される。
func (s *Service) ProcessEvent(ctx context.Context, tenant *model.Tenant, payload *model.BeaconPayload) error {
	start := time.Now()
	defer func() {
		s.metrics.RecordProcessLatency(time.Since(start))
	}()

	session, err := s.sessions.Open(ctx, tenant.SchemaName)
	if err != nil {
		return err
	}
	defer session.Close()

	stores, err := session.Stores().ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stores: %w", err)
	}

	if !InPerimeter(stores, payload.Latitude, payload.Longitude) {
		s.metrics.RecordEventDiscarded()
		s.logger.Debug("ジオフェンス外のイベントを破棄しました",
			slog.String("tenant_id", tenant.ID),
			slog.Float64("latitude", payload.Latitude),
			slog.Float64("longitude", payload.Longitude),
		)
		return nil
	}

	utm := ParseUTMValues(payload.LocationSearch)
	ev := &model.Event{
		ID:          uuid.New().String(),
		TenantID:    tenant.ID,
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		UTMSource:   utm.Source,
		UTMMedium:   utm.Medium,
		UTMCampaign: utm.Campaign,
		UTMTerm:     utm.Term,
		UTMContent:  utm.Content,
		CreatedAt:   time.Now().UTC(),
	}

	if err := session.Events().CreateEvent(ctx, ev); err != nil {
		return err
	}
	s.metrics.RecordEventAttributed()

	// ここから先の失敗はコミット済みイベントに影響しない
	addr, err := s.geocoder.Reverse(ctx, payload.Latitude, payload.Longitude)
	if err != nil {
		s.metrics.RecordGeocodeFailure()
		return fmt.Errorf("住所注釈に失敗しました (event_id=%s): %w", ev.ID, err)
	}
	if addr == nil {
		return nil
	}

	inserted, err := session.Events().UpsertAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("住所アップサートに失敗しました (event_id=%s): %w", ev.ID, err)
	}
	if inserted {
		s.logger.Debug("住所を登録しました",
			slog.String("tenant_id", tenant.ID),
			slog.String("geohash", addr.Geohash),
		)
	}

	return nil
}

// ProcessImpression はイベントのユーザーIDに対するインプレッション
// カウンターをアトミックに加算する。ユーザーIDのないイベントでは
// 何もしない。ジオフェンス判定とは独立に実行される。
func (s *Service) ProcessImpression(ctx context.Context, tenant *model.Tenant, payload *model.BeaconPayload) error {
	if payload.UserID == "" {
		return nil
	}

	session, err := s.sessions.Open(ctx, tenant.SchemaName)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Impressions().Bump(ctx, uuid.New().String(), payload.UserID); err != nil {
		return fmt.Errorf("インプレッション加算に失敗しました: %w", err)
	}
	s.metrics.RecordImpressionBumped()

	return nil
}
