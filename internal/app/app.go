package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/auth"
	"github.com/hitoshi/seokit/internal/blog"
	"github.com/hitoshi/seokit/internal/competitor"
	"github.com/hitoshi/seokit/internal/config"
	"github.com/hitoshi/seokit/internal/content"
	"github.com/hitoshi/seokit/internal/googledomains"
	"github.com/hitoshi/seokit/internal/keyword"
	"github.com/hitoshi/seokit/internal/logger"
	"github.com/hitoshi/seokit/internal/meta"
	"github.com/hitoshi/seokit/internal/metrics"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/report"
	"github.com/hitoshi/seokit/internal/security"
	"github.com/hitoshi/seokit/internal/seo"
	"github.com/hitoshi/seokit/internal/session"
	"github.com/hitoshi/seokit/internal/stubserver"
	"github.com/hitoshi/seokit/internal/user"
	"github.com/hitoshi/seokit/internal/worker/cleanup"
)

// ErrNotLoggedIn はログインが必要なコマンドを未ログインで実行した場合のエラー。
var ErrNotLoggedIn = errors.New("not logged in: run `seokit login` first")

// Init はアプリケーションの初期化を行う。
// 環境変数と.envからConfigを読み込み、設定されたレベルでJSON構造化ログをセットアップする。
// logOutが指定された場合はログ出力先としてそのwriterを使用する。
func Init(logOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定エラーもログに残せるよう既定レベルで初期化しておく
		logger.SetupDefault(logOut, nil)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(logOut, cfg.LogLevel)
	return cfg, nil
}

// Run はCLIのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。コマンドの結果はoutへ、ログはlogOutへ書き出す。
func Run(out, logOut io.Writer, args []string) error {
	cmd, rest := ParseCommand(args)
	if cmd == CommandHelp {
		fmt.Fprint(out, usage)
		return nil
	}

	cfg, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	// healthcheck と stub はAPIクライアントを必要としない
	switch cmd {
	case CommandHealthcheck:
		return runHealthcheck(cfg.APIURL)
	case CommandStub:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runStub(ctx, cfg)
	}

	a := newApp(cfg, out)
	slog.Debug("running command",
		slog.String("command", string(cmd)),
		slog.String("api_url", cfg.APIURL),
	)
	return a.run(context.Background(), cmd, rest)
}

// App はCLIから使うサービス群をまとめる。
type App struct {
	cfg *config.Config
	out io.Writer

	store  *session.FileStore
	client *apiclient.Client

	auth       *auth.Service
	users      *user.Service
	keywords   *keyword.Service
	meta       *meta.Service
	competitor *competitor.Service
	seo        *seo.Service
	reports    *report.Service
	decay      *content.DecayService
	extractor  *content.Extractor
	blog       *blog.Service
}

func newApp(cfg *config.Config, out io.Writer) *App {
	base := slog.Default()

	// 1. セッションとメトリクス
	store := session.NewFileStore(cfg.SessionFile)
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 2. APIクライアント
	client := apiclient.New(cfg.APIURL, store,
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		apiclient.WithLogger(logger.Component(base, "apiclient")),
		apiclient.WithMetrics(collector),
		apiclient.WithRateLimit(cfg.RateLimitPerMinute),
	)

	// 3. 認証。401を受けたらセッションを破棄してログイン案内を表示する
	nav := auth.NavigatorFunc(func(path string) {
		fmt.Fprintf(out, "session cleared, please log in again: %s%s\n", cfg.AppURL, path)
	})
	authSvc := auth.NewService(client, store, nav, auth.ServiceConfig{
		Production: cfg.IsProduction(),
		Logger:     logger.Component(base, "auth"),
	})
	client.OnUnauthorized(authSvc.Logout)

	avatars := user.NewAvatarCache()
	authSvc.RegisterCacheClearer(avatars)

	// 4. ツール群
	guard := security.NewGuard(security.GuardConfig{
		Timeout:         cfg.ContentFetchTimeout,
		MaxResponseSize: cfg.ContentFetchMaxSize,
	})

	return &App{
		cfg:        cfg,
		out:        out,
		store:      store,
		client:     client,
		auth:       authSvc,
		users:      user.NewService(client, store, avatars, authSvc, logger.Component(base, "user")),
		keywords:   keyword.NewService(client),
		meta:       meta.NewService(client),
		competitor: competitor.NewService(client),
		seo:        seo.NewService(client),
		reports:    report.NewService(client, client, logger.Component(base, "report"), collector),
		decay:      content.NewDecayService(client),
		extractor:  content.NewExtractor(guard, content.WithLogger(logger.Component(base, "extractor"))),
		// ブログは自社サイトのフィードなのでSSRF防止は外し、サイズ上限のみ適用する
		blog: blog.NewService(cfg.BlogFeedURL,
			guard.LimitClient(&http.Client{Timeout: cfg.ContentFetchTimeout}),
			logger.Component(base, "blog")),
	}
}

func (a *App) run(ctx context.Context, cmd Command, args []string) error {
	switch cmd {
	case CommandLogin:
		return a.runLogin(ctx, args)
	case CommandRegister:
		return a.runRegister(ctx, args)
	case CommandLogout:
		a.auth.Logout()
		fmt.Fprintln(a.out, "logged out")
		return nil
	case CommandWhoami:
		return a.runWhoami(ctx)
	case CommandProfile:
		return a.requireLogin(func() error {
			p, err := a.users.Profile(ctx)
			return a.print(p, err)
		})
	case CommandTrack:
		return a.runTrack(ctx, args)
	case CommandHistory:
		return a.runHistory(ctx, args)
	case CommandStats:
		return a.runStats(ctx, args)
	case CommandAnalyze:
		return a.runAnalyze(ctx, args)
	case CommandMeta:
		return a.runMeta(ctx, args)
	case CommandCompete:
		return a.runCompete(ctx, args)
	case CommandReports:
		return a.runReports(ctx, args)
	case CommandDecay:
		return a.requireLogin(func() error {
			st, err := a.decay.Status(ctx)
			return a.print(st, err)
		})
	case CommandGoogleDomains:
		return a.runGoogleDomains(args)
	case CommandExtract:
		return a.runExtract(ctx, args)
	case CommandBlog:
		return a.runBlog(ctx, args)
	default:
		fmt.Fprint(a.out, usage)
		return nil
	}
}

func (a *App) runLogin(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandLogin)
	email := fs.String("email", "", "メールアドレス")
	password := fs.String("password", os.Getenv("SEOKIT_PASSWORD"), "パスワード（既定はSEOKIT_PASSWORD）")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := a.auth.Login(ctx, model.Credentials{Email: *email, Password: *password})
	return a.print(u, err)
}

func (a *App) runRegister(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandRegister)
	name := fs.String("name", "", "表示名")
	email := fs.String("email", "", "メールアドレス")
	password := fs.String("password", os.Getenv("SEOKIT_PASSWORD"), "パスワード（8文字以上）")
	if err := fs.Parse(args); err != nil {
		return err
	}
	u, err := a.auth.Register(ctx, model.Registration{Name: *name, Email: *email, Password: *password})
	return a.print(u, err)
}

func (a *App) runWhoami(ctx context.Context) error {
	u, err := a.auth.ValidateToken(ctx)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotLoggedIn
	}
	return a.print(u, nil)
}

func (a *App) runTrack(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandTrack)
	domain := fs.String("domain", "", "対象ドメイン")
	keywords := fs.String("keywords", "", "カンマ区切りのキーワード")
	location := fs.String("location", googledomains.GlobalDomain, "Google検索ドメイン")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.requireLogin(func() error {
		res, err := a.keywords.Track(ctx, keyword.TrackRequest{
			Domain:   *domain,
			Keywords: splitList(*keywords),
			Location: *location,
		})
		return a.print(res, err)
	})
}

func (a *App) runHistory(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandHistory)
	var f keyword.HistoryFilter
	fs.StringVar(&f.Domain, "domain", "", "ドメインで絞り込む")
	fs.StringVar(&f.Keyword, "keyword", "", "キーワードで絞り込む")
	fs.IntVar(&f.Days, "days", 0, "直近N日に限定する")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.requireLogin(func() error {
		items, err := a.keywords.History(ctx, f)
		return a.print(items, err)
	})
}

func (a *App) runStats(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandStats)
	domain := fs.String("domain", "", "対象ドメイン（空の場合はトラッキング中のドメイン一覧）")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.requireLogin(func() error {
		if *domain == "" {
			domains, err := a.keywords.Domains(ctx)
			return a.print(domains, err)
		}
		st, err := a.keywords.Stats(ctx, *domain)
		return a.print(st, err)
	})
}

func (a *App) runAnalyze(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandAnalyze)
	rawURL := fs.String("url", "", "分析するURL")
	strategy := fs.String("strategy", string(seo.StrategyMobile), "mobile または desktop")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.requireLogin(func() error {
		res, err := a.seo.Analyze(ctx, *rawURL, seo.Strategy(*strategy))
		return a.print(res, err)
	})
}

func (a *App) runMeta(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandMeta)
	rawURL := fs.String("url", "", "検証するURL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.requireLogin(func() error {
		res, err := a.meta.Validate(ctx, *rawURL)
		return a.print(res, err)
	})
}

func (a *App) runCompete(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandCompete)
	domain := fs.String("domain", "", "自社ドメイン")
	competitors := fs.String("competitors", "", "カンマ区切りの競合ドメイン")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.requireLogin(func() error {
		res, err := a.competitor.Analyze(ctx, competitor.AnalysisRequest{
			MainDomain:        *domain,
			CompetitorDomains: splitList(*competitors),
		})
		return a.print(res, err)
	})
}

func (a *App) runReports(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandReports)
	query := fs.String("q", "", "検索語")
	typ := fs.String("type", "", "レポート種別")
	var opts report.ListOptions
	fs.IntVar(&opts.Page, "page", 1, "ページ番号")
	fs.IntVar(&opts.Limit, "limit", 20, "1ページの件数")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts.Type = report.Type(*typ)
	return a.requireLogin(func() error {
		if *query != "" {
			res, err := a.reports.Search(ctx, *query, opts)
			return a.print(res, err)
		}
		res, err := a.reports.List(ctx, opts)
		return a.print(res, err)
	})
}

func (a *App) runGoogleDomains(args []string) error {
	fs := newFlagSet(CommandGoogleDomains)
	country := fs.String("country", "", "ISO国コード")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *country == "" {
		return a.print(googledomains.All(), nil)
	}
	d, ok := googledomains.ForCountry(*country)
	if !ok {
		return model.NewValidationError("country", "Unknown country code: %s", *country)
	}
	return a.print(d, nil)
}

func (a *App) runExtract(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandExtract)
	rawURL := fs.String("url", "", "取得するURL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	page, err := a.extractor.Extract(ctx, *rawURL)
	return a.print(page, err)
}

func (a *App) runBlog(ctx context.Context, args []string) error {
	fs := newFlagSet(CommandBlog)
	limit := fs.Int("limit", 5, "表示件数")
	if err := fs.Parse(args); err != nil {
		return err
	}
	posts, err := a.blog.Latest(ctx, *limit)
	return a.print(posts, err)
}

// requireLogin はローカルにセッションがある場合のみfnを実行する。
func (a *App) requireLogin(fn func() error) error {
	if !a.auth.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	return fn()
}

// print は結果をインデント付きJSONで出力する。errがあればそのまま返す。
func (a *App) print(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFlagSet(cmd Command) *flag.FlagSet {
	fs := flag.NewFlagSet(string(cmd), flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runStub はスタブバックエンドを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runStub(ctx context.Context, cfg *config.Config) error {
	stub := stubserver.New(stubserver.Config{
		Logger:             logger.Component(slog.Default(), "stub"),
		AllowedOrigin:      cfg.AppURL,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	defer stub.Close()

	server := &http.Server{
		Addr:         ":" + cfg.StubPort,
		Handler:      stub.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 古い順位履歴を日次で削除する
	go cleanup.NewCleanupJob(stub, logger.Component(slog.Default(), "cleanup")).Start(ctx, 24*time.Hour)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("stub server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("stub server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	slog.Info("shutting down stub server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("stub server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
