package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/studysync/internal/config"
	"github.com/hitoshi/studysync/internal/database"
	"github.com/hitoshi/studysync/internal/handler"
	"github.com/hitoshi/studysync/internal/logger"
	"github.com/hitoshi/studysync/internal/metrics"
	"github.com/hitoshi/studysync/internal/middleware"
	"github.com/hitoshi/studysync/internal/model"
	"github.com/hitoshi/studysync/internal/worker/runner"
)

const (
	// dbConnectTimeout は起動時のデータベース疎通確認のタイムアウト。
	dbConnectTimeout = 10 * time.Second
	// jobResponseTimeout はジョブ起動リクエストの書き込みタイムアウト。
	// ジョブは同期実行されるため通常のAPIより長くとる。
	jobResponseTimeout = 30 * time.Minute
	// shutdownTimeout は停止時に処理中のリクエストを待つ上限。
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定で確定したログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。syncとreportの実行サマリーはwに書き出す。
func Run(w io.Writer, args []string) error {
	if wantsHelp(args) {
		PrintUsage(w)
		return nil
	}
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
		slog.Bool("notifications_enabled", cfg.NotificationsEnabled()),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSync:
		return runOnce(w, cfg, model.JobClassroomSync, args)
	case CommandReport:
		return runOnce(w, cfg, model.JobProgressReports, args)
	default:
		return runServe(cfg)
	}
}

// runServe はジョブ起動用のHTTPサーバーモードで起動する。
// SIGINTまたはSIGTERMを受けると受付を止め、処理中のリクエストを待ってから終了する。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	db, p, err := openPipeline(ctx, cfg, metrics.NewCollector(reg))
	if err != nil {
		return err
	}
	defer db.Close()

	// RateLimitTriggerはreq/min単位
	rateLimiter := middleware.NewRateLimiter(middleware.TriggerRateLimiterConfig(cfg.RateLimitTrigger), slog.Default())
	defer rateLimiter.Stop()

	server := newHTTPServer(cfg.ServerPort, jobResponseTimeout, handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		TriggerSecret:     cfg.JobTriggerSecret,
		RateLimiter:       rateLimiter,
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
		JobRunner:         p.runner,
		Syncer:            p.engine,
		ReportGenerator:   p.generator,
		DefaultWindowDays: cfg.ReportWindowDays,
	}))

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("trigger server starting", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down trigger server...")
	if err := shutdownServer(server); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("trigger server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// cronスケジュールで同期・レポート生成・実行履歴クリーンアップを行い、
// 監視用に /health と /metrics を公開する。
// シグナルを受けると実行中のジョブをキャンセルし、終了を待ってから停止する。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := newRegistry()
	db, p, err := openPipeline(ctx, cfg, metrics.NewCollector(reg))
	if err != nil {
		return err
	}
	defer db.Close()

	sched, err := newScheduler(ctx, p.location, workerJobs(cfg, p, slog.Default()), slog.Default())
	if err != nil {
		return err
	}

	opsServer := newHTTPServer(cfg.ServerPort, 15*time.Second, handler.NewOpsRouter(slog.Default(), db, metrics.Handler(reg)))
	go func() {
		if err := opsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.String("sync_schedule", cfg.SyncSchedule),
		slog.String("report_schedule", cfg.ReportSchedule),
		slog.String("timezone", p.location.String()),
		slog.Int("sync_max_concurrent", cfg.SyncMaxConcurrent),
		slog.Int("report_max_concurrent", cfg.ReportMaxConcurrent),
	)

	// 実行履歴のクリーンアップは起動直後にも1回行う
	sched.runNow(func(ctx context.Context) { runCleanup(ctx, p, slog.Default()) })

	sched.Start()
	<-ctx.Done()
	slog.Info("shutting down worker...")
	sched.Stop()

	if err := shutdownServer(opsServer); err != nil {
		slog.Warn("ops server shutdown failed", slog.String("error", err.Error()))
	}
	slog.Info("worker stopped gracefully")
	return nil
}

// openPipeline はDBに接続してパイプラインを組み立てる。呼び出し側がDBを閉じる。
func openPipeline(ctx context.Context, cfg *config.Config, collector metrics.MetricsCollector) (*sql.DB, *pipeline, error) {
	db, err := database.Connect(ctx, cfg.DatabaseURL, poolConfig(cfg), dbConnectTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Debug("database connection established", slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)))

	p, err := newPipeline(cfg, db, collector, slog.Default())
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, p, nil
}

func newHTTPServer(port string, writeTimeout time.Duration, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

func shutdownServer(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// runOnce はジョブを1回実行し、実行サマリーをJSONでwに書き出す。
// エンティティ単位のエラーでは正常終了し、パイプラインレベルの障害の場合のみエラーを返す。
func runOnce(w io.Writer, cfg *config.Config, job model.JobName, args []string) error {
	var windowDays int
	if job == model.JobProgressReports {
		var err error
		windowDays, err = parseWindowDaysArg(args, cfg.ReportWindowDays)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, p, err := openPipeline(ctx, cfg, metrics.Nop{})
	if err != nil {
		return err
	}
	defer db.Close()

	var fn runner.Func
	switch job {
	case model.JobClassroomSync:
		fn = runner.SyncJob(p.engine)
	default:
		fn = runner.ReportJob(p.generator, windowDays)
	}

	out, runErr := p.runner.Run(ctx, job, fn)
	if errors.Is(runErr, model.ErrJobAlreadyRunning) {
		return fmt.Errorf("job %s skipped: %w", job, runErr)
	}

	if err := writeSummary(w, job, out, runErr); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("job %s failed: %w", job, runErr)
	}
	return nil
}

// writeSummary はジョブの実行結果をHTTPトリガーと同じ形式で書き出す。
func writeSummary(w io.Writer, job model.JobName, out runner.Outcome, runErr error) error {
	resp := handler.JobResponse{
		Success: runErr == nil,
		Job:     job,
		Summary: out.Summary,
	}
	if runErr != nil {
		resp.Error = middleware.NewErrorResponseBody(model.NewJobFailedError(job))
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}

// parseWindowDaysArg は report サブコマンドの2番目の引数から集計期間を解析する。
// 指定がなければdefaultDaysを返す。
func parseWindowDaysArg(args []string, defaultDays int) (int, error) {
	if len(args) < 2 {
		return defaultDays, nil
	}
	days, err := strconv.Atoi(args[1])
	if err != nil || !model.ValidReportWindowDays(days) {
		return 0, model.NewInvalidWindowError(args[1])
	}
	return days, nil
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

	version, ok, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		slog.Warn("failed to read schema version", slog.String("error", err.Error()))
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
		slog.Bool("applied", ok),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// poolConfig は同期とレポート生成の並行数の大きい方に合わせたプール設定を返す。
func poolConfig(cfg *config.Config) database.PoolConfig {
	return database.PoolConfigFor(max(cfg.SyncMaxConcurrent, cfg.ReportMaxConcurrent))
}

// newRegistry はアプリケーションのメトリクスとGoランタイムのメトリクスを公開するレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// 解析できないURLは全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
