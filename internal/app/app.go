// Package app はアプリケーションの起動とワイヤリングを担う。
package app

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/pubman/internal/blogger"
	"github.com/hitoshi/pubman/internal/collector"
	"github.com/hitoshi/pubman/internal/config"
	"github.com/hitoshi/pubman/internal/gemini"
	"github.com/hitoshi/pubman/internal/handler"
	"github.com/hitoshi/pubman/internal/logger"
	"github.com/hitoshi/pubman/internal/metrics"
	"github.com/hitoshi/pubman/internal/publish"
	"github.com/hitoshi/pubman/internal/ratelimit"
	"github.com/hitoshi/pubman/internal/security"
	"github.com/prometheus/client_golang/prometheus"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数から設定を読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) *config.Config {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	return config.Load()
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

	cfg := Init(w)

	switch cmd {
	case CommandCollect:
		return runCollect(cfg, args[1:], os.Stdin, os.Stdout)
	default:
		return runServe(cfg)
	}
}

// runServe は公開APIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	slog.Info("starting publish API server",
		slog.String("port", cfg.ServerPort),
		slog.String("environment", cfg.Environment),
		slog.String("gemini_model", cfg.GeminiModel),
	)

	// 資格情報の欠落は起動失敗にしない（リクエスト処理時に検査される）が、
	// 起動時に警告として記録する
	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		slog.Warn("missing required environment variables, publish requests will fail",
			slog.Any("missing", missing),
		)
	}

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewCollector(registry)

	// 2. レート制限ストア。Redisが構成されていればRedis、なければインメモリ
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		redisClient := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		limiter = ratelimit.NewRedisStore(redisClient, slog.Default(), cfg.RateLimitWindow, cfg.RateLimitMax)
		slog.Info("rate limit store: redis", slog.String("addr", cfg.RedisAddr))
	} else {
		store := ratelimit.NewMemoryStore(cfg.RateLimitWindow, cfg.RateLimitMax)
		defer store.Stop()
		limiter = store
		slog.Info("rate limit store: in-memory")
	}

	// 3. パイプラインの協調コンポーネント
	generator := gemini.NewClient(gemini.ClientConfig{
		APIKey:   cfg.GeminiAPIKey,
		Model:    cfg.GeminiModel,
		Timeout:  cfg.GenerationTimeout,
		RPMLimit: cfg.GeminiRPMLimit,
	}, &http.Client{Timeout: cfg.GenerationTimeout}, slog.Default())

	publisher := blogger.NewClient(blogger.ClientConfig{
		ClientID:     cfg.BloggerClientID,
		ClientSecret: cfg.BloggerClientSecret,
		RedirectURL:  cfg.BloggerRedirectURL,
		RefreshToken: cfg.BloggerRefreshToken,
		BlogID:       cfg.BloggerBlogID,
		Timeout:      cfg.PublishTimeout,
	}, &http.Client{Timeout: cfg.PublishTimeout}, slog.Default())

	sanitizer := security.NewContentSanitizer()

	pipeline := publish.NewService(
		generator, sanitizer, publisher, cfg,
		slog.Default(), pipelineMetrics,
	)

	// 4. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Pipeline: pipeline,
		Limiter:  limiter,
		Config:   cfg,
		Logger:   slog.Default(),
		Metrics:  pipelineMetrics,
		Gatherer: registry,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runCollect はページ画像コレクタを起動する。
// 対象ページから画像URLを収集し、対話的な選択セッションを開始する。
//
//	pubman collect [-browser] <url>
func runCollect(cfg *config.Config, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("collect", flag.ContinueOnError)
	useBrowser := fs.Bool("browser", false, "use a headless browser to scan the rendered DOM")
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("usage: pubman collect [-browser] <url>")
	}
	pageURL := fs.Arg(0)

	ssrfGuard := security.NewSSRFGuard()

	var scanner collector.Scanner
	if *useBrowser {
		scanner = collector.NewBrowserScanner(ssrfGuard, cfg.FetchTimeout)
	} else {
		scanner = collector.NewStaticScanner(ssrfGuard, cfg.FetchTimeout, cfg.FetchMaxSize)
	}

	session := collector.NewSession(scanner, collector.NewSystemClipboard(), in, out)
	return session.Run(context.Background(), pageURL)
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
