// Package keyword はキーワード順位トラッキングのAPIを提供する。
package keyword

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/googledomains"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/validation"
)

// TrackRequest はトラッキングの入力。
type TrackRequest struct {
	Domain   string   `json:"domain"`
	Keywords []string `json:"keywords"`
	Location string   `json:"location"`
}

// RankResult はキーワード1件の順位。圏外の場合Rankは0。
type RankResult struct {
	Keyword   string    `json:"keyword"`
	Rank      int       `json:"rank"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TrackResult はトラッキング結果。
type TrackResult struct {
	Domain   string       `json:"domain"`
	Location string       `json:"location"`
	Results  []RankResult `json:"results"`
}

// Stats はドメイン単位の順位集計。
type Stats struct {
	TotalKeywords int     `json:"totalKeywords"`
	AverageRank   float64 `json:"averageRank"`
	Top3          int     `json:"top3"`
	Top10         int     `json:"top10"`
	Improved      int     `json:"improved"`
	Declined      int     `json:"declined"`
}

// TrackedDomain はトラッキング中のドメイン。
type TrackedDomain struct {
	Domain       string    `json:"domain"`
	KeywordCount int       `json:"keywordCount"`
	LastChecked  time.Time `json:"lastChecked"`
}

// HistoryFilter は履歴の絞り込み条件。
type HistoryFilter struct {
	Domain  string
	Keyword string
	Days    int
}

// CleanupResult は古い履歴の削除結果。
type CleanupResult struct {
	Deleted int `json:"deleted"`
}

// Service はキーワードトラッキングAPIのクライアント。
type Service struct {
	api apiclient.Doer
}

// NewService はServiceを生成する。
func NewService(api apiclient.Doer) *Service {
	return &Service{api: api}
}

// Track はドメインの各キーワードの検索順位を取得する。
// locationが空の場合は google.com。
func (s *Service) Track(ctx context.Context, req TrackRequest) (*TrackResult, error) {
	domain, err := validation.ValidateDomain(req.Domain)
	if err != nil {
		return nil, err
	}
	keywords, err := validation.ValidateKeywords(req.Keywords)
	if err != nil {
		return nil, err
	}
	location := req.Location
	if location == "" {
		location = googledomains.GlobalDomain
	}
	loc, ok := googledomains.Lookup(location)
	if !ok {
		return nil, model.NewValidationError("location", "Invalid search location: %s", location)
	}

	var result TrackResult
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/keyword-tracker/track",
		Body:   TrackRequest{Domain: domain, Keywords: keywords, Location: loc.Value},
		Header: http.Header{
			"Content-Type":    {"application/json; charset=utf-8"},
			"Accept-Language": {"*"},
		},
	}, &result)
	if err != nil {
		return nil, rewrapRateLimit(err)
	}
	if result.Domain == "" {
		result.Domain = domain
	}
	if result.Location == "" {
		result.Location = loc.Value
	}
	if result.Results == nil {
		result.Results = []RankResult{}
	}
	return &result, nil
}

// History は順位履歴を取得する。
func (s *Service) History(ctx context.Context, f HistoryFilter) ([]HistoryItem, error) {
	q := url.Values{}
	if f.Domain != "" {
		d, err := validation.ValidateDomain(f.Domain)
		if err != nil {
			return nil, err
		}
		q.Set("domain", d)
	}
	if f.Keyword != "" {
		q.Set("keyword", validation.NormalizeKeyword(f.Keyword))
	}
	if f.Days > 0 {
		q.Set("days", strconv.Itoa(f.Days))
	}

	var raw rawHistory
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/keyword-tracker/history", Query: q}, &raw); err != nil {
		return nil, rewrapRateLimit(err)
	}
	return raw.items(), nil
}

// Stats はドメインの順位集計を取得する。
func (s *Service) Stats(ctx context.Context, domain string) (*Stats, error) {
	d, err := validation.ValidateDomain(domain)
	if err != nil {
		return nil, err
	}
	var st Stats
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/keyword-tracker/stats",
		Query:  url.Values{"domain": {d}},
	}, &st)
	if err != nil {
		return nil, rewrapRateLimit(err)
	}
	return &st, nil
}

// Domains はトラッキング中のドメイン一覧を取得する。
func (s *Service) Domains(ctx context.Context) ([]TrackedDomain, error) {
	var domains []TrackedDomain
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/keyword-tracker/domains"}, &domains); err != nil {
		return nil, rewrapRateLimit(err)
	}
	if domains == nil {
		domains = []TrackedDomain{}
	}
	return domains, nil
}

type cleanupRequest struct {
	OlderThanDays int `json:"olderThanDays"`
}

// Cleanup はolderThanDaysより古い履歴を削除する。
func (s *Service) Cleanup(ctx context.Context, olderThanDays int) (*CleanupResult, error) {
	if olderThanDays <= 0 {
		return nil, model.NewValidationError("olderThanDays", "olderThanDays must be positive")
	}
	var res CleanupResult
	err := s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/api/keyword-tracker/cleanup",
		Body:   cleanupRequest{OlderThanDays: olderThanDays},
	}, &res)
	if err != nil {
		return nil, rewrapRateLimit(err)
	}
	return &res, nil
}

// rewrapRateLimit は429を利用者向けのメッセージに置き換える。
func rewrapRateLimit(err error) error {
	if model.IsRateLimited(err) {
		return model.NewRateLimitedError()
	}
	return err
}
