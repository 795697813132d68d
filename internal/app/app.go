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

	"github.com/hitoshi/hewalbot/internal/alert"
	"github.com/hitoshi/hewalbot/internal/config"
	"github.com/hitoshi/hewalbot/internal/database"
	"github.com/hitoshi/hewalbot/internal/fetch"
	"github.com/hitoshi/hewalbot/internal/fulltext"
	"github.com/hitoshi/hewalbot/internal/handler"
	"github.com/hitoshi/hewalbot/internal/logger"
	"github.com/hitoshi/hewalbot/internal/metrics"
	"github.com/hitoshi/hewalbot/internal/newsapi"
	"github.com/hitoshi/hewalbot/internal/publish"
	"github.com/hitoshi/hewalbot/internal/repository"
	"github.com/hitoshi/hewalbot/internal/security"
	"github.com/hitoshi/hewalbot/internal/translate"
	"github.com/hitoshi/hewalbot/internal/worker/cleanup"
	"github.com/hitoshi/hewalbot/internal/worker/pipeline"
)

// searchAPITimeout は検索APIリクエストのタイムアウト。
const searchAPITimeout = 15 * time.Second

// cleanupInterval はクリーンアップジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

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
		slog.String("port", cfg.ServerPort),
		slog.Bool("tumblr_enabled", cfg.TumblrEnabled()),
		slog.Bool("telegram_enabled", cfg.TelegramEnabled()),
	)

	switch cmd {
	case CommandOnce:
		return runBot(cfg, true)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runBot(cfg, false)
	}
}

// runBot はパイプラインモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、運用系HTTPサーバーと
// パイプラインを起動する。onceがtrueの場合は1サイクルで終了する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runBot(cfg *config.Config, once bool) error {
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

	// 2. リポジトリの初期化
	articleRepo := repository.NewPostgresArticleRepo(db)
	cooldownRepo := repository.NewPostgresCooldownRepo(db)

	// 3. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. フェッチステージの初期化
	extractor := fulltext.NewExtractor(ssrfGuard, sanitizer, slog.Default(), cfg.FullTextMinLen)
	searchClient := newsapi.NewClient(
		&http.Client{Timeout: searchAPITimeout},
		slog.Default(),
		cfg.NewsAPIKeys,
	)
	fetchService := fetch.NewService(
		searchClient, articleRepo, cooldownRepo, extractor, ssrfGuard,
		slog.Default(), cfg.Country, cfg.CooldownWindow, cfg.FullTextMinLen,
	)

	// 5. 翻訳ステージの初期化
	gemini := translate.NewGeminiClient(slog.Default(), cfg.GeminiAPIKey, cfg.GeminiModel)
	translateService := translate.NewService(gemini, articleRepo, slog.Default(), cfg.ChunkSize, cfg.TagCount)

	// 6. 投稿ステージの初期化（有効化されたプラットフォームのみ、Tumblr優先）
	var platforms []publish.Platform
	if cfg.TumblrEnabled() {
		platforms = append(platforms, publish.NewTumblrPlatform(
			slog.Default(),
			cfg.TumblrConsumerKey, cfg.TumblrConsumerSecret,
			cfg.TumblrOAuthToken, cfg.TumblrOAuthSecret,
			cfg.TumblrBlogName, cfg.PostVerifyDelay,
		))
	}
	if cfg.TelegramEnabled() {
		platforms = append(platforms, publish.NewTelegramPlatform(
			slog.Default(), cfg.TelegramBotToken, cfg.TelegramChatID,
		))
	}

	var alerter publish.Alerter
	if cfg.AlertEnabled() {
		alerter = alert.NewMailer(
			slog.Default(),
			cfg.AlertSMTPHost, cfg.AlertSMTPPort,
			cfg.AlertSMTPUser, cfg.AlertSMTPPass,
			cfg.AlertFrom, cfg.AlertTo,
		)
	}

	publishService := publish.NewService(
		platforms, articleRepo, alerter, slog.Default(),
		cfg.HaltOnPostDrop, cfg.PostPauseMin, cfg.PostPauseMax,
	)

	// 7. メトリクスとランナーの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	runner := pipeline.NewRunner(
		fetchService, translateService, publishService,
		collector, slog.Default(), cfg.SafetyPause,
	)

	// 8. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(articleRepo, collector, slog.Default())
	cleanupJob.RetentionDays = cfg.RetentionDays

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down...")
		cancel()
	}()

	// 9. 運用系HTTPサーバーの起動
	router := handler.NewRouter(&handler.RouterDeps{
		DB:       db,
		Gatherer: registry,
		Logger:   slog.Default(),
	})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if once {
		slog.Info("running a single pipeline cycle")
		if err := runner.RunOnce(ctx); err != nil {
			return fmt.Errorf("pipeline cycle failed: %w", err)
		}
		return nil
	}

	// クリーンアップジョブをバックグラウンドで起動（起動直後に1回実行）
	go func() {
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		cleanupJob.Start(ctx, cleanupInterval)
	}()

	// パイプラインをメインgoroutineで実行（ブロッキング）
	runner.Start(ctx, cfg.CycleInterval)

	slog.Info("pipeline stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
