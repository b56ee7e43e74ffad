// Package store は店舗の管理機能を提供する。
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/opalizer/internal/geocode"
	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/repository"
)

// ErrAddressNotResolved は入力住所を座標に解決できなかったことを表す。
var ErrAddressNotResolved = errors.New("住所を座標に解決できませんでした")

// CreateInput は店舗作成の入力。住所は自由記述のまま受け取り、
// ジオコーディングで座標に解決する。
type CreateInput struct {
	Name      string
	Owner     string
	Address   string
	Apartment string
	City      string
	State     string
	Country   string
	ZipCode   string
	RadiusM   float64
}

// AddressText はジオコーディングに渡す住所文字列を組み立てる。
// 空の要素はスキップする。
func (in *CreateInput) AddressText() string {
	parts := []string{in.Address, in.Apartment, in.City, in.State, in.Country, in.ZipCode}
	var nonEmpty []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}

// Service は店舗管理サービス。全操作は解決済みテナントのスキーマに
// 束縛されたセッションの中で実行される。
type Service struct {
	sessions repository.SessionFactory
	geocoder geocode.GeocoderService
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	sessions repository.SessionFactory,
	geocoder geocode.GeocoderService,
	logger *slog.Logger,
) *Service {
	return &Service{
		sessions: sessions,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Create は店舗を作成する。住所をジオコーディングで座標に解決してから
// 保存する。スキーマ内で店舗名が衝突する場合は
// StoreNameNotAvailableErrorを返す。ジオコーディングAPIの失敗は
// GeocodeUnavailableErrorとして呼び出し元へ伝播する。
func (s *Service) Create(ctx context.Context, tenant *model.Tenant, input *CreateInput) (*model.Store, error) {
	session, err := s.sessions.Open(ctx, tenant.SchemaName)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	existing, err := session.Stores().FindByName(ctx, input.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &model.StoreNameNotAvailableError{Name: input.Name}
	}

	lat, lng, ok, err := s.geocoder.Geocode(ctx, input.AddressText())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAddressNotResolved
	}

	owner := input.Owner
	if owner == "" {
		owner = "owner"
	}

	st := &model.Store{
		ID:        uuid.New().String(),
		Name:      input.Name,
		Owner:     owner,
		Latitude:  lat,
		Longitude: lng,
		RadiusM:   input.RadiusM,
		CreatedAt: time.Now().UTC(),
	}

	if err := session.Stores().Create(ctx, st); err != nil {
		return nil, err
	}

	s.logger.Info("店舗を作成しました",
		slog.String("tenant_id", tenant.ID),
		slog.String("store_id", st.ID),
		slog.String("name", st.Name),
	)
	return st, nil
}

// GetByID は指定IDの店舗を取得する。見つからない場合はnilを返す。
func (s *Service) GetByID(ctx context.Context, tenant *model.Tenant, id string) (*model.Store, error) {
	session, err := s.sessions.Open(ctx, tenant.SchemaName)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.Stores().FindByID(ctx, id)
}

// ListAll は全店舗を作成日時順で返す。
func (s *Service) ListAll(ctx context.Context, tenant *model.Tenant) ([]*model.Store, error) {
	session, err := s.sessions.Open(ctx, tenant.SchemaName)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	return session.Stores().ListAll(ctx)
}

// Delete は指定IDの店舗を削除する。存在しない場合もエラーにしない。
func (s *Service) Delete(ctx context.Context, tenant *model.Tenant, id string) error {
	session, err := s.sessions.Open(ctx, tenant.SchemaName)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.Stores().DeleteByID(ctx, id)
}
