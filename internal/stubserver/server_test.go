package stubserver_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/auth"
	"github.com/hitoshi/seokit/internal/competitor"
	"github.com/hitoshi/seokit/internal/keyword"
	"github.com/hitoshi/seokit/internal/meta"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/seo"
	"github.com/hitoshi/seokit/internal/session"
	"github.com/hitoshi/seokit/internal/stubserver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func startStub(t *testing.T, cfg stubserver.Config) (*httptest.Server, *stubserver.Server) {
	t.Helper()
	cfg.Logger = discardLogger()
	cfg.BcryptCost = bcrypt.MinCost
	srv := stubserver.New(cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, srv
}

type recordingNavigator struct {
	urls []string
}

func (n *recordingNavigator) Navigate(url string) { n.urls = append(n.urls, url) }

// stack はスタブに接続したクライアント側の構成一式。
type stack struct {
	client *apiclient.Client
	store  *session.MemoryStore
	auth   *auth.Service
	nav    *recordingNavigator
}

func newStack(t *testing.T, ts *httptest.Server) *stack {
	t.Helper()
	st := session.NewMemoryStore()
	client := apiclient.New(ts.URL, st, apiclient.WithHTTPClient(ts.Client()), apiclient.WithLogger(discardLogger()))
	nav := &recordingNavigator{}
	authSvc := auth.NewService(client, st, nav, auth.ServiceConfig{Production: true, Logger: discardLogger()})
	client.OnUnauthorized(authSvc.Logout)
	return &stack{client: client, store: st, auth: authSvc, nav: nav}
}

func TestEndToEnd_RegisterAndTrack(t *testing.T) {
	ts, _ := startStub(t, stubserver.Config{})
	s := newStack(t, ts)
	ctx := context.Background()

	u, err := s.auth.Register(ctx, model.Registration{Name: "Taro", Email: "taro@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if u.ID == "" || u.Email != "taro@example.com" || !s.auth.IsAuthenticated() {
		t.Fatalf("user = %+v, authenticated = %v", u, s.auth.IsAuthenticated())
	}

	verified, err := s.auth.ValidateToken(ctx)
	if err != nil || verified == nil || verified.ID != u.ID {
		t.Fatalf("ValidateToken() = %+v, %v", verified, err)
	}

	kw := keyword.NewService(s.client)
	result, err := kw.Track(ctx, keyword.TrackRequest{
		Domain:   "example.com",
		Keywords: []string{"seo tools"},
		Location: "google.com",
	})
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if result.Domain != "example.com" || result.Location != "google.com" {
		t.Errorf("result = %+v", result)
	}
	if len(result.Results) != 1 || result.Results[0].Keyword != "seo tools" {
		t.Fatalf("results = %+v", result.Results)
	}
	if result.Results[0].Rank < 0 || result.Results[0].Rank > 100 {
		t.Errorf("rank = %d", result.Results[0].Rank)
	}

	history, err := kw.History(ctx, keyword.HistoryFilter{Domain: "https://www.example.com/"})
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d", len(history))
	}
	h := history[0]
	if h.Keyword != "seo tools" || h.Rank != result.Results[0].Rank || h.Location != "google.com" || h.CheckedAt.IsZero() {
		t.Errorf("snake_caseの履歴が正規化されるべき: %+v", h)
	}

	stats, err := kw.Stats(ctx, "example.com")
	if err != nil || stats.TotalKeywords != 1 {
		t.Errorf("Stats() = %+v, %v", stats, err)
	}
	domains, err := kw.Domains(ctx)
	if err != nil || len(domains) != 1 || domains[0].Domain != "example.com" || domains[0].KeywordCount != 1 {
		t.Errorf("Domains() = %+v, %v", domains, err)
	}
	cleaned, err := kw.Cleanup(ctx, 30)
	if err != nil || cleaned.Deleted != 0 {
		t.Errorf("Cleanup() = %+v, %v", cleaned, err)
	}
}

func TestEndToEnd_TrackIsDeterministic(t *testing.T) {
	ts, srv := startStub(t, stubserver.Config{})
	if _, err := srv.SeedUser("Hanako", "hanako@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	s := newStack(t, ts)
	ctx := context.Background()
	if _, err := s.auth.Login(ctx, model.Credentials{Email: "hanako@example.com", Password: "password123"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	kw := keyword.NewService(s.client)
	req := keyword.TrackRequest{Domain: "example.com", Keywords: []string{"seo tools", "rank tracker"}, Location: "google.co.jp"}
	first, err := kw.Track(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := kw.Track(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Results {
		if first.Results[i].Rank != second.Results[i].Rank {
			t.Errorf("同じ入力の順位は同じであるべき: %d != %d", first.Results[i].Rank, second.Results[i].Rank)
		}
	}
}

func TestEndToEnd_WrongPasswordKeepsSession(t *testing.T) {
	ts, srv := startStub(t, stubserver.Config{})
	if _, err := srv.SeedUser("Hanako", "hanako@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	s := newStack(t, ts)

	_, err := s.auth.Login(context.Background(), model.Credentials{Email: "hanako@example.com", Password: "wrong-password"})
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid email or password" {
		t.Fatalf("err = %v", err)
	}
	if len(s.nav.urls) != 0 {
		t.Errorf("認証エンドポイントの401でログアウトしてはならない: %v", s.nav.urls)
	}
}

func TestEndToEnd_UnauthenticatedTearsDown(t *testing.T) {
	ts, _ := startStub(t, stubserver.Config{})
	s := newStack(t, ts)
	if err := s.store.Save(&model.Session{Token: "forged", User: &model.User{ID: "u-x", Email: "x@example.com"}}); err != nil {
		t.Fatal(err)
	}

	_, err := keyword.NewService(s.client).Domains(context.Background())
	if !model.IsUnauthorized(err) {
		t.Fatalf("err = %v, want 401", err)
	}
	if s.auth.IsAuthenticated() {
		t.Error("401の後はセッションが破棄されるべき")
	}
	if len(s.nav.urls) != 1 || s.nav.urls[0] != auth.DefaultLoginPath {
		t.Errorf("navigations = %v", s.nav.urls)
	}
}

func TestEndToEnd_ServerValidationError(t *testing.T) {
	ts, srv := startStub(t, stubserver.Config{})
	if _, err := srv.SeedUser("Hanako", "hanako@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	s := newStack(t, ts)
	if _, err := s.auth.Login(context.Background(), model.Credentials{Email: "hanako@example.com", Password: "password123"}); err != nil {
		t.Fatal(err)
	}

	// クライアント側の検証を通さずに送る
	err := s.client.Do(context.Background(), &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/keyword-tracker/track",
		Body:   map[string]any{"domain": "not a domain", "keywords": []string{"seo"}},
	}, nil)
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Message != "Validation error: domain: Invalid domain format: not a domain" {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestEndToEnd_DuplicateRegistration(t *testing.T) {
	ts, srv := startStub(t, stubserver.Config{})
	if _, err := srv.SeedUser("Hanako", "hanako@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	s := newStack(t, ts)

	_, err := s.auth.Register(context.Background(), model.Registration{Name: "Other", Email: "HANAKO@example.com", Password: "password123"})
	apiErr, ok := model.AsAPIError(err)
	if !ok || apiErr.StatusCode != http.StatusConflict || apiErr.Message != "Email already registered" {
		t.Errorf("err = %v", err)
	}
}

func TestEndToEnd_AnalysisTools(t *testing.T) {
	ts, srv := startStub(t, stubserver.Config{})
	if _, err := srv.SeedUser("Hanako", "hanako@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	s := newStack(t, ts)
	ctx := context.Background()
	if _, err := s.auth.Login(ctx, model.Credentials{Email: "hanako@example.com", Password: "password123"}); err != nil {
		t.Fatal(err)
	}

	t.Run("meta", func(t *testing.T) {
		res, err := meta.NewService(s.client).Validate(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if res.URL != "https://example.com" || res.Summary == nil {
			t.Fatalf("result = %+v", res)
		}
		// title: too short（警告）、og:image: 欠落（重大）
		if res.Summary.Warnings < 1 || res.Summary.CriticalIssues < 1 || res.Summary.TotalTags != len(meta.KnownTags) {
			t.Errorf("summary = %+v", res.Summary)
		}
	})

	t.Run("competitor", func(t *testing.T) {
		res, err := competitor.NewService(s.client).Analyze(ctx, competitor.AnalysisRequest{
			MainDomain:        "example.com",
			CompetitorDomains: []string{"example.org", "example.net"},
		})
		if err != nil {
			t.Fatal(err)
		}
		if res.MainDomain.Domain != "example.com" || len(res.Competitors) != 2 || len(res.Insights) == 0 {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("seo", func(t *testing.T) {
		res, err := seo.NewService(s.client).Analyze(ctx, "https://example.com", seo.StrategyDesktop)
		if err != nil {
			t.Fatal(err)
		}
		if res.Strategy != seo.StrategyDesktop || res.Scores.Performance < 0 || res.Scores.Performance > 100 {
			t.Errorf("result = %+v", res)
		}
		if _, ok := res.Metrics["largest-contentful-paint"]; !ok {
			t.Errorf("metrics = %v", res.Metrics)
		}
	})
}

func TestEndToEnd_OAuthTokenDecodesStubToken(t *testing.T) {
	ts, _ := startStub(t, stubserver.Config{})
	s := newStack(t, ts)

	registered, err := s.auth.Register(context.Background(), model.Registration{Name: "Taro", Email: "taro@example.com", Password: "password123"})
	if err != nil {
		t.Fatal(err)
	}

	other := newStack(t, ts)
	u, err := other.auth.HandleOAuthToken(s.auth.Token())
	if err != nil {
		t.Fatalf("HandleOAuthToken() error = %v", err)
	}
	if u.ID != registered.ID || u.Email != "taro@example.com" || u.Name != "Taro" {
		t.Errorf("user = %+v", u)
	}
}

func TestServer_RateLimit(t *testing.T) {
	ts, srv := startStub(t, stubserver.Config{RateLimitPerMinute: 2})
	if _, err := srv.SeedUser("Hanako", "hanako@example.com", "password123"); err != nil {
		t.Fatal(err)
	}
	s := newStack(t, ts)
	ctx := context.Background()
	if _, err := s.auth.Login(ctx, model.Credentials{Email: "hanako@example.com", Password: "password123"}); err != nil {
		t.Fatal(err)
	}

	kw := keyword.NewService(s.client)
	var lastErr error
	for i := 0; i < 3; i++ {
		_, lastErr = kw.Domains(ctx)
	}
	apiErr, ok := model.AsAPIError(lastErr)
	if !ok || apiErr.StatusCode != http.StatusTooManyRequests || apiErr.Message != model.MsgTooManyRequests {
		t.Errorf("err = %v, want 429", lastErr)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts, _ := startStub(t, stubserver.Config{})

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Data.Status != "ok" {
		t.Errorf("health = %+v", body)
	}

	mresp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer mresp.Body.Close()
	text, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(text), `seokit_stub_requests_total{method="GET",route="/health",status_code="200"} 1`) {
		t.Errorf("metrics output:\n%s", text)
	}
}

func TestServer_NotFoundUsesEnvelope(t *testing.T) {
	ts, _ := startStub(t, stubserver.Config{})

	resp, err := ts.Client().Get(ts.URL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["success"] != false || body["error"] != "Not found" {
		t.Errorf("body = %v", body)
	}
}
