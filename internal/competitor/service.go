// Package competitor は競合分析APIを提供する。
package competitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/validation"
)

// AnalysisRequest は競合分析の入力。
type AnalysisRequest struct {
	MainDomain        string   `json:"mainDomain"`
	CompetitorDomains []string `json:"competitorDomains"`
}

// DomainMetrics はドメイン1件の指標。
type DomainMetrics struct {
	Domain           string  `json:"domain"`
	PerformanceScore float64 `json:"performanceScore"`
	SEOScore         float64 `json:"seoScore"`
	ContentScore     float64 `json:"contentScore"`
	BacklinkCount    int     `json:"backlinkCount"`
	LoadTimeMs       float64 `json:"loadTimeMs"`
}

// AnalysisResult は競合分析の結果。
type AnalysisResult struct {
	ID          string          `json:"id,omitempty"`
	MainDomain  DomainMetrics   `json:"mainDomain"`
	Competitors []DomainMetrics `json:"competitors"`
	Insights    []string        `json:"insights,omitempty"`
	AnalyzedAt  time.Time       `json:"analyzedAt"`
}

// StoredReport は保存済みの競合分析。
type StoredReport struct {
	ID                string          `json:"id"`
	MainDomain        string          `json:"mainDomain"`
	CompetitorDomains []string        `json:"competitorDomains"`
	Result            json.RawMessage `json:"result,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Statistics は競合分析の利用状況。
type Statistics struct {
	TotalAnalyses     int       `json:"totalAnalyses"`
	UniqueDomains     int       `json:"uniqueDomains"`
	LastAnalysisAt    time.Time `json:"lastAnalysisAt,omitempty"`
	AverageCompetitor float64   `json:"averageCompetitors"`
}

// Service は競合分析APIのクライアント。
type Service struct {
	api apiclient.Doer
}

// NewService はServiceを生成する。
func NewService(api apiclient.Doer) *Service {
	return &Service{api: api}
}

// Analyze はメインドメインと競合ドメインを比較分析する。
func (s *Service) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	main, competitors, err := validation.ValidateCompetitorRequest(req.MainDomain, req.CompetitorDomains)
	if err != nil {
		return nil, err
	}

	var result AnalysisResult
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/competitor/analyze",
		Body:   AnalysisRequest{MainDomain: main, CompetitorDomains: competitors},
	}, &result)
	if err != nil {
		return nil, rewrapRateLimit(err)
	}
	return &result, nil
}

// Reports は保存済みの競合分析を新しい順に取得する。limitが0以下の場合はサーバーの既定値。
func (s *Service) Reports(ctx context.Context, limit int) ([]StoredReport, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var reports []StoredReport
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/competitor/reports", Query: q}, &reports); err != nil {
		return nil, rewrapRateLimit(err)
	}
	if reports == nil {
		reports = []StoredReport{}
	}
	return reports, nil
}

// Statistics は競合分析の利用状況を取得する。
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	var st Statistics
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/competitor/statistics"}, &st); err != nil {
		return nil, rewrapRateLimit(err)
	}
	return &st, nil
}

func rewrapRateLimit(err error) error {
	if model.IsRateLimited(err) {
		return model.NewRateLimitedError()
	}
	return err
}
