package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/session"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("server-secret"))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestService_LoginWithGoogle(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, req *apiclient.Request, out any) error {
			if req.Path != "/auth/google/url" {
				t.Errorf("path = %s", req.Path)
			}
			return respond(out, map[string]string{"url": "https://accounts.google.com/o/oauth2/auth?x=1"})
		},
	}
	svc, nav, _ := newTestService(doer, session.NewMemoryStore(), false)

	err := svc.LoginWithGoogle(context.Background())
	if !errors.Is(err, ErrRedirected) {
		t.Fatalf("ErrRedirectedが返るべき: %v", err)
	}
	if len(nav.urls) != 1 || nav.urls[0] != "https://accounts.google.com/o/oauth2/auth?x=1" {
		t.Errorf("navigated = %v", nav.urls)
	}
}

func TestService_LoginWithGoogle_NoURL(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, _ *apiclient.Request, out any) error {
			return respond(out, map[string]string{})
		},
	}
	svc, nav, _ := newTestService(doer, session.NewMemoryStore(), false)

	err := svc.LoginWithGoogle(context.Background())
	if err == nil || errors.Is(err, ErrRedirected) {
		t.Fatalf("URLがない場合はエラーになるべき: %v", err)
	}
	if len(nav.urls) != 0 {
		t.Error("遷移してはならない")
	}
}

func TestService_HandleOAuthToken(t *testing.T) {
	iat := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	token := signToken(t, jwt.MapClaims{
		"id":    "g-42",
		"email": "g@example.com",
		"name":  "Google User",
		"iat":   iat.Unix(),
	})
	st := session.NewMemoryStore()
	svc, _, _ := newTestService(&mockDoer{}, st, false)

	user, err := svc.HandleOAuthToken(token)
	if err != nil {
		t.Fatalf("HandleOAuthToken() error = %v", err)
	}
	if user.ID != "g-42" || user.Email != "g@example.com" || user.Name != "Google User" {
		t.Errorf("user = %+v", user)
	}
	if user.Provider != model.ProviderGoogle {
		t.Errorf("Provider = %q", user.Provider)
	}
	if !user.CreatedAt.Equal(iat) {
		t.Errorf("CreatedAt = %v, want %v", user.CreatedAt, iat)
	}
	if svc.Token() != token {
		t.Error("トークンがそのまま保存されるべき")
	}
}

func TestService_HandleOAuthToken_NumericID(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"id": 12345, "email": "n@example.com"})
	svc, _, _ := newTestService(&mockDoer{}, session.NewMemoryStore(), false)

	user, err := svc.HandleOAuthToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "12345" {
		t.Errorf("ID = %q, want 12345", user.ID)
	}
}

func TestService_HandleOAuthToken_IgnoresHeader(t *testing.T) {
	// 独自のalgを持つヘッダーや壊れたヘッダーでもペイロードだけを読む
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"id":"g-7","email":"h@example.com","name":"Header"}`))
	headers := []string{
		base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"custom-kms","typ":"JWT"}`)),
		"not-base64!",
	}
	for _, header := range headers {
		svc, _, _ := newTestService(&mockDoer{}, session.NewMemoryStore(), false)
		user, err := svc.HandleOAuthToken(header + "." + payload + ".sig")
		if err != nil {
			t.Fatalf("header %q: HandleOAuthToken() error = %v", header, err)
		}
		if user.ID != "g-7" || user.Email != "h@example.com" {
			t.Errorf("user = %+v", user)
		}
	}
}

func TestService_HandleOAuthToken_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"emailなし", ""},
		{"idなし", ""},
		{"JWTでない", "not-a-jwt"},
		{"セグメント不足", "a.b"},
		{"ペイロードがbase64でない", "a.!!!.c"},
		{"ペイロードがJSONでない", "a." + base64.RawURLEncoding.EncodeToString([]byte("plain")) + ".c"},
	}
	tests[0].token = signToken(t, jwt.MapClaims{"id": "x"})
	tests[1].token = signToken(t, jwt.MapClaims{"email": "x@example.com"})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestService(&mockDoer{}, session.NewMemoryStore(), false)
			if _, err := svc.HandleOAuthToken(tt.token); err == nil {
				t.Error("エラーが返されるべき")
			}
			if svc.IsAuthenticated() {
				t.Error("失敗時にセッションを保存してはならない")
			}
		})
	}
}

func TestService_HandleGoogleLoginAndRegister(t *testing.T) {
	tests := []struct {
		name string
		call func(*Service) (*model.User, error)
		path string
	}{
		{"login", func(s *Service) (*model.User, error) { return s.HandleGoogleLogin(context.Background(), "code-1") }, "/auth/google/login"},
		{"register", func(s *Service) (*model.User, error) { return s.HandleGoogleRegister(context.Background(), "code-1") }, "/auth/google/register"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &mockDoer{
				doFn: func(_ context.Context, req *apiclient.Request, out any) error {
					if req.Path != tt.path {
						t.Errorf("path = %s, want %s", req.Path, tt.path)
					}
					if body, ok := req.Body.(codeRequest); !ok || body.Code != "code-1" {
						t.Errorf("body = %#v", req.Body)
					}
					return respond(out, model.AuthResponse{
						User:  &model.User{ID: "g1", Email: "g@example.com", Provider: model.ProviderGoogle},
						Token: "google-session",
					})
				},
			}
			svc, _, _ := newTestService(doer, session.NewMemoryStore(), false)

			if _, err := tt.call(svc); err != nil {
				t.Fatal(err)
			}
			if svc.Token() != "google-session" {
				t.Errorf("Token() = %q", svc.Token())
			}
		})
	}
}

func TestService_HandleGoogleCallback_FallsBackToJSON(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, req *apiclient.Request, out any) error {
			if req.Form != nil {
				if req.Form.Get("code") != "abc" {
					t.Errorf("form = %v", req.Form)
				}
				return model.NewAPIError(http.StatusUnsupportedMediaType, "Unsupported content type")
			}
			if body, ok := req.Body.(codeRequest); !ok || body.Code != "abc" {
				t.Errorf("body = %#v", req.Body)
			}
			return respond(out, model.AuthResponse{User: &model.User{ID: "g1", Email: "g@example.com"}, Token: "cb-token"})
		},
	}
	svc, _, _ := newTestService(doer, session.NewMemoryStore(), false)

	if _, err := svc.HandleGoogleCallback(context.Background(), "abc"); err != nil {
		t.Fatalf("HandleGoogleCallback() error = %v", err)
	}
	if len(doer.calls) != 2 {
		t.Errorf("calls = %d, want 2 (form then json)", len(doer.calls))
	}
	if svc.Token() != "cb-token" {
		t.Errorf("Token() = %q", svc.Token())
	}
}

func TestService_HandleGoogleCallback_FormSucceeds(t *testing.T) {
	doer := &mockDoer{
		doFn: func(_ context.Context, _ *apiclient.Request, out any) error {
			return respond(out, model.AuthResponse{User: &model.User{ID: "g1", Email: "g@example.com"}, Token: "form-token"})
		},
	}
	svc, _, _ := newTestService(doer, session.NewMemoryStore(), false)

	if _, err := svc.HandleGoogleCallback(context.Background(), "abc"); err != nil {
		t.Fatal(err)
	}
	if len(doer.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(doer.calls))
	}
}

func TestService_LinkUnlinkGoogle(t *testing.T) {
	doer := &mockDoer{}
	st := loggedIn(t)
	svc, _, _ := newTestService(doer, st, false)

	if err := svc.LinkGoogleAccount(context.Background(), "link-code"); err != nil {
		t.Fatal(err)
	}
	if err := svc.UnlinkGoogleAccount(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.LinkGoogleAccount(context.Background(), ""); !model.IsValidationError(err) {
		t.Errorf("空のコードは検証エラーになるべき: %v", err)
	}

	if len(doer.calls) != 2 || doer.calls[0].Path != "/auth/google/link" || doer.calls[1].Path != "/auth/google/unlink" {
		t.Errorf("calls = %+v", doer.calls)
	}
	if svc.Token() != "tok" {
		t.Error("連携操作はローカルのセッションを変更しないべき")
	}
}
