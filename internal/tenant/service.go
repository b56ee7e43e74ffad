package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/opalizer/internal/model"
	"github.com/hitoshi/opalizer/internal/repository"
)

// SchemaProvisioner はディレクトリがスキーマのライフサイクル操作に
// 必要とするインターフェース。Provisionerの部分集合として定義する。
type SchemaProvisioner interface {
	Provision(ctx context.Context, schema string) error
	Deprovision(ctx context.Context, schema string, cascade bool) error
}

// Service はテナントディレクトリ。共有スキーマ上のメタデータCRUDと
// プロビジョナーを1つの論理単位として束ね、
// 「ストレージのないメタデータ」「メタデータのない孤児スキーマ」の
// どちらも残さないことを保証する。
type Service struct {
	tenantRepo  repository.TenantRepository
	provisioner SchemaProvisioner
	logger      *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	tenantRepo repository.TenantRepository,
	provisioner SchemaProvisioner,
	logger *slog.Logger,
) *Service {
	return &Service{
		tenantRepo:  tenantRepo,
		provisioner: provisioner,
		logger:      logger,
	}
}

// Create は新しいテナントを作成する。
// 名前の衝突（正規化後スキーマ名の衝突を含む）はプロビジョン前に検出し、
// TenantNameNotAvailableErrorを返す。スキーマのプロビジョンが成功した
// 場合のみメタデータを挿入し、挿入に失敗した場合はスキーマを巻き戻す。
// テナントには店舗/イベントAPI用のAPIキーを発行する。
func (s *Service) Create(ctx context.Context, name string) (*model.Tenant, error) {
	schema, err := NormalizeSchemaName(name)
	if err != nil {
		return nil, &model.TenantNameNotAvailableError{Name: name}
	}
	if IsReservedSchema(schema) {
		return nil, &model.TenantNameNotAvailableError{Name: name}
	}

	exists, err := s.tenantRepo.ExistsByNameOrSchema(ctx, name, schema)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, &model.TenantNameNotAvailableError{Name: name}
	}

	if err := s.provisioner.Provision(ctx, schema); err != nil {
		return nil, err
	}

	t := &model.Tenant{
		ID:         uuid.New().String(),
		Name:       name,
		SchemaName: schema,
		APIKey:     uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.tenantRepo.Create(ctx, t); err != nil {
		var notAvailable *model.TenantNameNotAvailableError
		if errors.As(err, &notAvailable) {
			// 並行Createの敗者側。スキーマは勝者のテナントに帰属して
			// いるため、ここで巻き戻してはならない。
			return nil, err
		}

		// メタデータのない孤児スキーマを残さない
		if rbErr := s.provisioner.Deprovision(ctx, schema, true); rbErr != nil {
			s.logger.Error("プロビジョン巻き戻しに失敗しました",
				slog.String("schema", schema),
				slog.String("error", rbErr.Error()),
			)
		}
		return nil, fmt.Errorf("failed to create tenant metadata: %w", err)
	}

	s.logger.Info("テナントを作成しました",
		slog.String("tenant_id", t.ID),
		slog.String("name", t.Name),
		slog.String("schema", t.SchemaName),
	)
	return t, nil
}

// GetByName は指定名のテナントを取得する。見つからない場合はnilを返す。
func (s *Service) GetByName(ctx context.Context, name string) (*model.Tenant, error) {
	return s.tenantRepo.FindByName(ctx, name)
}

// GetByAPIKey はAPIキーでテナントを解決する。見つからない場合はnilを返す。
func (s *Service) GetByAPIKey(ctx context.Context, apiKey string) (*model.Tenant, error) {
	return s.tenantRepo.FindByAPIKey(ctx, apiKey)
}

// ListAll は全テナントを作成日時順で返す。
func (s *Service) ListAll(ctx context.Context) ([]*model.Tenant, error) {
	return s.tenantRepo.ListAll(ctx)
}

// Delete は指定名のテナントを削除する。
// 先にスキーマをデプロビジョンし、成功した場合のみメタデータを削除する
// （fail-closed: デプロビジョン失敗時はメタデータを孤児化させない）。
// テナントが存在しない場合は何もしない。
func (s *Service) Delete(ctx context.Context, name string, cascade bool) error {
	t, err := s.tenantRepo.FindByName(ctx, name)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}

	if err := s.provisioner.Deprovision(ctx, t.SchemaName, cascade); err != nil {
		return err
	}

	if err := s.tenantRepo.DeleteByID(ctx, t.ID); err != nil {
		return err
	}

	s.logger.Info("テナントを削除しました",
		slog.String("tenant_id", t.ID),
		slog.String("name", t.Name),
		slog.String("schema", t.SchemaName),
		slog.Bool("cascade", cascade),
	)
	return nil
}
