// Package auth はセッションのライフサイクル（ログイン、登録、Google連携、ログアウト、
// トークン検証）を管理する。ログイン状態の唯一の判定元であり、session.Storeへの書き込みは
// このパッケージとapiclientの401処理に限られる。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/session"
	"github.com/hitoshi/seokit/internal/validation"
)

// DefaultLoginPath はログアウト後の遷移先。
const DefaultLoginPath = "/auth/login"

// ErrRedirected は制御をNavigatorに渡したフロー（Googleログイン開始など）が返す。
// 呼び出し側はこれを失敗ではなく「画面遷移が始まった」として扱う。
var ErrRedirected = errors.New("auth: redirected to external page")

// Navigator はページ遷移を行う外部協調者。
type Navigator interface {
	Navigate(url string)
}

// NavigatorFunc は関数をNavigatorとして使うためのアダプター。
type NavigatorFunc func(url string)

// Navigate はf(url)を呼び出す。
func (f NavigatorFunc) Navigate(url string) { f(url) }

// CacheClearer はログアウト時に破棄するローカルキャッシュ。
type CacheClearer interface {
	ClearCache()
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// Production が false の場合、ValidateToken はネットワークを使わずローカルのセッションを信頼する。
	Production bool
	// LoginPath はログアウト後の遷移先。空の場合はDefaultLoginPath。
	LoginPath string
	Logger    *slog.Logger
}

// Service は認証に関するクライアント側のロジックを提供する。
type Service struct {
	api    apiclient.Doer
	store  session.Store
	nav    Navigator
	config ServiceConfig
	logger *slog.Logger

	mu     sync.Mutex
	caches []CacheClearer
}

// NewService はServiceを生成する。navがnilの場合、遷移は行わない。
func NewService(api apiclient.Doer, store session.Store, nav Navigator, config ServiceConfig) *Service {
	if config.LoginPath == "" {
		config.LoginPath = DefaultLoginPath
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	return &Service{
		api:    api,
		store:  store,
		nav:    nav,
		config: config,
		logger: logger,
	}
}

// RegisterCacheClearer はログアウト時に破棄するキャッシュを登録する。
func (s *Service) RegisterCacheClearer(c CacheClearer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches = append(s.caches, c)
}

// Token は保存済みのトークンを返す。未ログインの場合は空文字列。
func (s *Service) Token() string {
	return session.TokenOf(s.store)
}

// User は保存済みのユーザーを返す。未ログインの場合はnil。
func (s *Service) User() *model.User {
	sess, ok := s.store.Load()
	if !ok {
		return nil
	}
	return sess.User
}

// IsAuthenticated はトークンとユーザーの両方が保存されているかを返す。
func (s *Service) IsAuthenticated() bool {
	_, ok := s.store.Load()
	return ok
}

// Login はメールアドレスとパスワードでログインし、セッションを保存する。
func (s *Service) Login(ctx context.Context, creds model.Credentials) (*model.User, error) {
	if err := validation.Struct(creds); err != nil {
		return nil, err
	}
	return s.exchange(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/login",
		Body:   creds,
	}, "login")
}

// Register はアカウントを作成し、セッションを保存する。
func (s *Service) Register(ctx context.Context, reg model.Registration) (*model.User, error) {
	if err := validation.Struct(reg); err != nil {
		return nil, err
	}
	return s.exchange(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/register",
		Body:   reg,
	}, "register")
}

// exchange は認証エンドポイントを呼び出し、AuthResponseからセッションを保存する。
// 誤ったパスワードの401でグローバルなログアウトが走らないよう、401処理は抑止する。
func (s *Service) exchange(ctx context.Context, req *apiclient.Request, op string) (*model.User, error) {
	req.SkipUnauthorizedHandling = true

	var resp model.AuthResponse
	if err := s.api.Do(ctx, req, &resp); err != nil {
		s.logger.Info("authentication failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if resp.Token == "" || resp.User == nil {
		return nil, model.NewAPIError(http.StatusInternalServerError, "Invalid authentication response")
	}

	if err := s.store.Save(&model.Session{Token: resp.Token, User: resp.User}); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("authenticated",
		slog.String("operation", op),
		slog.String("user_id", resp.User.ID),
	)
	return resp.User, nil
}

// Logout はセッションとローカルキャッシュを破棄し、ログインページへ遷移する。
// apiclientの401フックとしても登録される。
func (s *Service) Logout() {
	if err := s.store.Clear(); err != nil {
		s.logger.Warn("failed to clear session",
			slog.String("error", err.Error()),
		)
	}

	s.mu.Lock()
	caches := append([]CacheClearer(nil), s.caches...)
	s.mu.Unlock()
	for _, c := range caches {
		c.ClearCache()
	}

	s.nav.Navigate(s.config.LoginPath)
}

type verifyResponse struct {
	User *model.User `json:"user"`
}

// ValidateToken は保存済みセッションの有効性を確認し、ユーザーを返す。
// セッションがなければ (nil, nil)。
// 開発環境ではネットワークを使わずローカルのセッションを信頼する。
// 本番環境では検証エンドポイントを呼び、401ならセッションを破棄して (nil, nil) を返す。
// それ以外の失敗（ネットワーク、5xx、エンドポイント不在）ではセッションを維持し、
// ローカルのユーザーを返す。
func (s *Service) ValidateToken(ctx context.Context) (*model.User, error) {
	sess, ok := s.store.Load()
	if !ok {
		return nil, nil
	}
	if !s.config.Production {
		return sess.User, nil
	}

	var resp verifyResponse
	err := s.api.Do(ctx, &apiclient.Request{
		Method:                   http.MethodGet,
		Path:                     "/auth/verify",
		SkipUnauthorizedHandling: true,
	}, &resp)
	if err != nil {
		if model.IsUnauthorized(err) {
			if clearErr := s.store.Clear(); clearErr != nil {
				return nil, fmt.Errorf("failed to clear session: %w", clearErr)
			}
			s.logger.Info("token rejected by server, session cleared")
			return nil, nil
		}
		s.logger.Warn("token verification unavailable, keeping local session",
			slog.String("error", err.Error()),
		)
		return sess.User, nil
	}

	if resp.User == nil {
		return sess.User, nil
	}
	if err := s.store.Save(&model.Session{Token: sess.Token, User: resp.User}); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return resp.User, nil
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword はパスワード再設定メールの送信を依頼する。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	req := forgotPasswordRequest{Email: email}
	if err := validation.Struct(req); err != nil {
		return err
	}
	return s.api.Do(ctx, &apiclient.Request{
		Method:                   http.MethodPost,
		Path:                     "/auth/forgot-password",
		Body:                     req,
		SkipUnauthorizedHandling: true,
	}, nil)
}
