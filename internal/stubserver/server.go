// Package stubserver はクライアントと同じJSONエンベロープ契約を話すインメモリのバックエンドを提供する。
// エンドツーエンドテストと `seokit stub` で使う。順位やスコアは入力から決定的に算出する。
package stubserver

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/seokit/internal/metrics"
	"github.com/hitoshi/seokit/internal/middleware"
	"github.com/hitoshi/seokit/internal/model"
)

// Config はServerの設定。
type Config struct {
	Logger             *slog.Logger
	AllowedOrigin      string
	RateLimitPerMinute int // 0の場合は制限しない
	TokenTTL           time.Duration
	BcryptCost         int
	// Registry はメトリクスの登録先。nilの場合はServer専用のレジストリを作る。
	Registry *prometheus.Registry
	// Now はテスト用の時刻関数。
	Now func() time.Time
}

// Server はスタブバックエンド。
type Server struct {
	config   Config
	logger   *slog.Logger
	store    *memoryStore
	secret   []byte
	limiter  *middleware.RateLimiter
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	now      func() time.Time
}

// New はServerを生成する。
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "http://localhost:3000"
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = tokenLifetime
	}
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic("stubserver: failed to generate token secret: " + err.Error())
	}

	s := &Server{
		config:   config,
		logger:   config.Logger,
		store:    newMemoryStore(config.BcryptCost),
		secret:   secret,
		registry: config.Registry,
		now:      config.Now,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seokit_stub_requests_total",
			Help: "スタブバックエンドが処理したリクエスト数（ルート・ステータス別）",
		}, []string{"method", "route", "status_code"}),
	}
	config.Registry.MustRegister(s.requests)

	if config.RateLimitPerMinute > 0 {
		s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			PerMinute:       config.RateLimitPerMinute,
			CleanupInterval: 5 * time.Minute,
		})
	}
	return s
}

// Close はバックグラウンド処理を停止する。
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}

// SeedUser はメールアドレスとパスワードのユーザーを登録する。
func (s *Server) SeedUser(name, email, password string) (*model.User, error) {
	return s.store.createUser(name, email, password, model.ProviderLocal, s.now())
}

// Handler はルーティングとミドルウェアチェーンを構成したhttp.Handlerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → RouteMetrics → (/api: BearerAuth → RateLimit)
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(s.logger))
	r.Use(middleware.NewLoggingMiddleware(s.logger))
	r.Use(middleware.NewCORSMiddleware(s.config.AllowedOrigin))
	r.Use(s.routeMetrics)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(s.registry))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Get("/google/url", s.handleGoogleURL)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(s))
			r.Get("/verify", s.handleVerify)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(s))
		if s.limiter != nil {
			r.Use(s.limiter.Middleware())
		}

		r.Get("/user/profile", s.handleProfile)

		r.Route("/keyword-tracker", func(r chi.Router) {
			r.Post("/track", s.handleTrack)
			r.Get("/history", s.handleHistory)
			r.Get("/stats", s.handleKeywordStats)
			r.Get("/domains", s.handleTrackedDomains)
			r.Delete("/cleanup", s.handleCleanup)
		})

		r.Post("/meta/validate", s.handleMetaValidate)
		r.Post("/competitor/analyze", s.handleCompetitorAnalyze)
		r.Post("/seo/analyze", s.handleSEOAnalyze)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// routeMetrics はchiのルートパターン単位でリクエスト数を記録する。
func (s *Server) routeMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		s.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	middleware.WriteData(w, http.StatusOK, healthResponse{Status: "ok", Time: s.now().UTC()})
}

// PruneHistory は全ユーザーのcutoffより古い順位履歴を削除し、件数を返す。
func (s *Server) PruneHistory(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.store.deleteHistoryBefore("", cutoff), nil
}
