package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
)

type googleURLResponse struct {
	URL     string `json:"url"`
	AuthURL string `json:"authUrl"`
}

type codeRequest struct {
	Code string `json:"code"`
}

// LoginWithGoogle はバックエンドからGoogleの認可URLを取得し、そこへ遷移する。
// 成功時は常にErrRedirectedを返す。続きはリダイレクト後の HandleOAuthToken などで行う。
func (s *Service) LoginWithGoogle(ctx context.Context) error {
	var resp googleURLResponse
	err := s.api.Do(ctx, &apiclient.Request{
		Method:                   http.MethodGet,
		Path:                     "/auth/google/url",
		SkipUnauthorizedHandling: true,
	}, &resp)
	if err != nil {
		return err
	}

	target := resp.URL
	if target == "" {
		target = resp.AuthURL
	}
	if target == "" {
		return model.NewAPIError(http.StatusInternalServerError, "No Google authorization URL returned")
	}

	s.nav.Navigate(target)
	return ErrRedirected
}

// HandleOAuthToken はリダイレクトで受け取ったJWTのペイロードから表示用のユーザー情報を取り出し、
// セッションを保存する。
// 署名もヘッダーも検証せず、中央のペイロードセグメントだけをデコードする。
// 取り出した値は表示にのみ使い、認可判断は常にサーバー側で行うこと。
func (s *Service) HandleOAuthToken(token string) (*model.User, error) {
	claims, err := decodePayload(token)
	if err != nil {
		return nil, fmt.Errorf("failed to decode oauth token: %w", err)
	}

	id := claimString(claims["id"])
	if id == "" {
		id = claimString(claims["sub"])
	}
	email := claimString(claims["email"])
	if id == "" || email == "" {
		return nil, fmt.Errorf("invalid oauth token payload: missing user id or email")
	}

	user := &model.User{
		ID:       id,
		Email:    email,
		Name:     claimString(claims["name"]),
		Provider: model.ProviderGoogle,
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		user.CreatedAt = iat.Time.UTC()
	} else {
		user.CreatedAt = time.Now().UTC()
	}

	if err := s.store.Save(&model.Session{Token: token, User: user}); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Info("authenticated",
		slog.String("operation", "oauth_token"),
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// decodePayload はJWTの2番目のセグメント（base64url）をクレームとしてデコードする。
func decodePayload(token string) (jwt.MapClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("token must have 3 segments, got %d", len(parts))
	}
	raw, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid payload encoding: %w", err)
	}
	claims := jwt.MapClaims{}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("invalid payload json: %w", err)
	}
	return claims, nil
}

// claimString はクレーム値を文字列化する。IDは数値で入っていることがある。
func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// HandleGoogleLogin は既存アカウントでのGoogleログインの認可コードをセッションに交換する。
func (s *Service) HandleGoogleLogin(ctx context.Context, code string) (*model.User, error) {
	return s.exchangeCode(ctx, "/auth/google/login", code, "google_login")
}

// HandleGoogleRegister はGoogleアカウントでの新規登録の認可コードをセッションに交換する。
func (s *Service) HandleGoogleRegister(ctx context.Context, code string) (*model.User, error) {
	return s.exchangeCode(ctx, "/auth/google/register", code, "google_register")
}

// HandleGoogleCallback は旧来のコールバックエンドポイントで認可コードを交換する。
// まずフォーム形式で送り、失敗した場合はJSONで送り直す。
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (*model.User, error) {
	if code == "" {
		return nil, model.NewValidationError("code", "Authorization code is required")
	}

	user, err := s.exchange(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/google/callback",
		Form:   url.Values{"code": {code}},
	}, "google_callback")
	if err == nil {
		return user, nil
	}

	s.logger.Debug("form callback failed, retrying as json",
		slog.String("error", err.Error()),
	)
	return s.exchange(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/google/callback",
		Body:   codeRequest{Code: code},
	}, "google_callback")
}

func (s *Service) exchangeCode(ctx context.Context, path, code, op string) (*model.User, error) {
	if code == "" {
		return nil, model.NewValidationError("code", "Authorization code is required")
	}
	return s.exchange(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   codeRequest{Code: code},
	}, op)
}

// LinkGoogleAccount はログイン中のアカウントにGoogleアカウントを紐付ける。
// ローカルのセッションは変更しない。
func (s *Service) LinkGoogleAccount(ctx context.Context, code string) error {
	if code == "" {
		return model.NewValidationError("code", "Authorization code is required")
	}
	return s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/google/link",
		Body:   codeRequest{Code: code},
	}, nil)
}

// UnlinkGoogleAccount はGoogleアカウントの紐付けを解除する。
func (s *Service) UnlinkGoogleAccount(ctx context.Context) error {
	return s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/auth/google/unlink",
	}, nil)
}
