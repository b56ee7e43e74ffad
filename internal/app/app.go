// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/opalizer/internal/config"
	"github.com/hitoshi/opalizer/internal/database"
	"github.com/hitoshi/opalizer/internal/event"
	"github.com/hitoshi/opalizer/internal/geocode"
	"github.com/hitoshi/opalizer/internal/handler"
	"github.com/hitoshi/opalizer/internal/logger"
	"github.com/hitoshi/opalizer/internal/metrics"
	"github.com/hitoshi/opalizer/internal/middleware"
	"github.com/hitoshi/opalizer/internal/repository"
	"github.com/hitoshi/opalizer/internal/security"
	"github.com/hitoshi/opalizer/internal/store"
	"github.com/hitoshi/opalizer/internal/tenant"
	"github.com/hitoshi/opalizer/internal/worker/cleanup"
	"github.com/hitoshi/opalizer/internal/worker/events"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("app_name", cfg.AppName),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、共有スキーマをヘッドまでマイグレートし、全依存関係を
// ワイヤリングしてHTTPサーバーを起動する。共有スキーマのマイグレー
// ションに失敗した場合、サーバーは起動しない（古いスキーマのまま
// リクエストを受け付けてはならない）。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. スキーマ管理の初期化と共有スキーマのマイグレーション（失敗時は起動中止）
	schemaRegistry := tenant.NewRegistry(db)
	provisioner := tenant.NewProvisioner(db, cfg.DatabaseURL, schemaRegistry, slog.Default())

	startupCtx := context.Background()

	publicHead, err := database.PublicHeadRevision()
	if err != nil {
		return err
	}
	if err := provisioner.Upgrade(startupCtx, database.PublicSchema, publicHead); err != nil {
		return fmt.Errorf("public schema migration failed: %w", err)
	}

	slog.Info("public schema migrated to head",
		slog.Uint64("revision", uint64(publicHead)),
	)

	// 既存テナントのスキーマを最新リビジョンへ追従させる。
	// 個別テナントの失敗は当該テナントにしか影響しないため、起動は続行する。
	if err := provisioner.UpgradeOutdated(startupCtx); err != nil {
		slog.Warn("some tenant schema upgrades failed",
			slog.String("error", err.Error()),
		)
	}

	// 3. メトリクスコレクター
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. リポジトリの初期化
	tenantRepo := repository.NewPostgresTenantRepo(db)
	deadLetterRepo := repository.NewPostgresDeadLetterRepo(db)
	sessionFactory := repository.NewPostgresSessionFactory(db)

	// 5. 外部連携クライアントの初期化
	ssrfGuard := security.NewSSRFGuard()
	geocoder := geocode.NewClient(
		ssrfGuard.NewSafeClient(cfg.GeocodeTimeout),
		slog.Default(),
		cfg.GmapsAPIKey,
		cfg.GeohashPrecision,
	)
	if cfg.GeocodeEndpoint != "" {
		if err := ssrfGuard.ValidateEndpoint(cfg.GeocodeEndpoint); err != nil {
			return fmt.Errorf("invalid geocode endpoint: %w", err)
		}
		geocoder.SetEndpoint(cfg.GeocodeEndpoint)
	}

	// 6. ドメインサービスの初期化
	tenantService := tenant.NewService(tenantRepo, provisioner, slog.Default())
	storeService := store.NewService(sessionFactory, geocoder, slog.Default())
	eventService := event.NewService(sessionFactory, geocoder, collector, slog.Default())

	// 7. バックグラウンドワーカーの初期化
	dispatcher := events.NewDispatcher(
		eventService, deadLetterRepo, collector, slog.Default(),
		cfg.EventQueueSize, cfg.EventWorkers,
	)
	cleanupJob := cleanup.NewCleanupJob(deadLetterRepo, slog.Default(), cfg.DeadLetterMaxAge)

	// 8. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimitConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(cfg.RateLimitGeneral)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral * 2
	rateLimiterCfg.IngestRate = rate.Limit(cfg.RateLimitIngest)
	rateLimiterCfg.IngestBurst = cfg.RateLimitIngest * 2
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg, slog.Default())
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TenantFinder:  tenantService,
		RateLimiter:   rateLimiter,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		Logger:        slog.Default(),
		StatusHook:    collector.RecordHTTPStatus,

		AppName: cfg.AppName,
		DB:      db,

		TenantService: tenantService,
		StoreService:  storeService,
		Dispatcher:    dispatcher,

		MetricsHandler: metrics.Handler(registry),
	}

	router := handler.NewRouter(deps)

	// 9. バックグラウンドワーカーの起動
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	dispatcher.Start(workerCtx)
	// cancelWorkersより先に実行されるため、キューの残りは
	// ワーカーコンテキストが生きているうちに処理し切られる
	defer dispatcher.Stop()
	go cleanupJob.Start(workerCtx, cfg.DeadLetterSweepInterval)

	// 10. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// キューに残ったイベントはdeferされたdispatcher.Stop()が処理し切る
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate は共有スキーマのマイグレーションを実行する。
// テナントスキーマはプロビジョン時・アップグレード時に個別に
// マイグレートされるため、ここでは対象外。
func runMigrate(cfg *config.Config) error {
	slog.Info("running public schema migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunPublicMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("public schema migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
