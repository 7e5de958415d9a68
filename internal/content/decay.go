// Package content はコンテンツ劣化検出APIと、ページ本文のローカル抽出を提供する。
package content

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/validation"
)

// DecayStatus はSearch Console連携の状態。
type DecayStatus struct {
	Connected bool      `json:"connected"`
	Email     string    `json:"email,omitempty"`
	Sites     []string  `json:"sites,omitempty"`
	LastSync  time.Time `json:"lastSync,omitempty"`
}

// DetectOptions は劣化検出の条件。
type DetectOptions struct {
	SiteURL string `json:"siteUrl"`
	// Days は比較期間（日）。0の場合はサーバーの既定値。
	Days int `json:"days,omitempty"`
	// Threshold はクリック数の減少率（%）の閾値。
	Threshold float64 `json:"threshold,omitempty"`
}

// DecayingPage はトラフィックが減少しているページ。
type DecayingPage struct {
	URL             string  `json:"url"`
	ClicksBefore    int     `json:"clicksBefore"`
	ClicksAfter     int     `json:"clicksAfter"`
	ImpressionsDiff int     `json:"impressionsDiff"`
	PositionBefore  float64 `json:"positionBefore"`
	PositionAfter   float64 `json:"positionAfter"`
	ChangePercent   float64 `json:"changePercent"`
	Severity        string  `json:"severity"`
}

// DetectResult は劣化検出の結果。
type DetectResult struct {
	SiteURL    string         `json:"siteUrl"`
	Pages      []DecayingPage `json:"pages"`
	AnalyzedAt time.Time      `json:"analyzedAt"`
}

// DecayService はコンテンツ劣化検出APIのクライアント。
type DecayService struct {
	api apiclient.Doer
}

// NewDecayService はDecayServiceを生成する。
func NewDecayService(api apiclient.Doer) *DecayService {
	return &DecayService{api: api}
}

// Status は連携状態を取得する。
func (s *DecayService) Status(ctx context.Context) (*DecayStatus, error) {
	var st DecayStatus
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/content-decay/status"}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// AuthURL はSearch Console連携の認可URLを取得する。
func (s *DecayService) AuthURL(ctx context.Context) (string, error) {
	var resp struct {
		URL     string `json:"url"`
		AuthURL string `json:"authUrl"`
	}
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/content-decay/auth-url"}, &resp); err != nil {
		return "", err
	}
	if resp.URL != "" {
		return resp.URL, nil
	}
	if resp.AuthURL != "" {
		return resp.AuthURL, nil
	}
	return "", model.NewAPIError(http.StatusInternalServerError, "No authorization URL returned")
}

type callbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state,omitempty"`
}

// Callback は認可コードをサーバーに渡して連携を完了する。
func (s *DecayService) Callback(ctx context.Context, code, state string) (*DecayStatus, error) {
	if code == "" {
		return nil, model.NewValidationError("code", "Authorization code is required")
	}
	var st DecayStatus
	err := s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/content-decay/callback",
		Body:   callbackRequest{Code: code, State: state},
	}, &st)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Disconnect は連携を解除する。
func (s *DecayService) Disconnect(ctx context.Context) error {
	return s.api.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: "/api/content-decay/disconnect"}, nil)
}

// Detect はトラフィックが減少しているページを検出する。
func (s *DecayService) Detect(ctx context.Context, opts DetectOptions) (*DetectResult, error) {
	site, err := validation.ValidateURL(opts.SiteURL)
	if err != nil {
		return nil, err
	}
	opts.SiteURL = site
	if opts.Days < 0 {
		return nil, model.NewValidationError("days", "days must not be negative")
	}
	if opts.Threshold < 0 || opts.Threshold > 100 {
		return nil, model.NewValidationError("threshold", "threshold must be between 0 and 100")
	}

	var res DetectResult
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: "/api/content-decay/detect", Body: opts}, &res); err != nil {
		return nil, err
	}
	if res.Pages == nil {
		res.Pages = []DecayingPage{}
	}
	return &res, nil
}
