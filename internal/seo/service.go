// Package seo はページ速度分析とコンテンツ最適化のAPIを提供する。
package seo

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/validation"
)

// Strategy はページ速度分析の対象デバイス。
type Strategy string

const (
	StrategyMobile  Strategy = "mobile"
	StrategyDesktop Strategy = "desktop"
)

// Scores はカテゴリ別のスコア（0〜100）。
type Scores struct {
	Performance   float64 `json:"performance"`
	Accessibility float64 `json:"accessibility"`
	BestPractices float64 `json:"bestPractices"`
	SEO           float64 `json:"seo"`
}

// Metric はCore Web Vitalsなどの計測値。
type Metric struct {
	Value        float64 `json:"value"`
	DisplayValue string  `json:"displayValue,omitempty"`
	Score        float64 `json:"score"`
}

// Audit は改善提案1件。
type Audit struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	Score        float64 `json:"score"`
	DisplayValue string  `json:"displayValue,omitempty"`
}

// AnalysisResult はページ速度分析の結果。
type AnalysisResult struct {
	URL           string            `json:"url"`
	Strategy      Strategy          `json:"strategy"`
	Scores        Scores            `json:"scores"`
	Metrics       map[string]Metric `json:"metrics,omitempty"`
	Opportunities []Audit           `json:"opportunities,omitempty"`
	AnalyzedAt    time.Time         `json:"analyzedAt"`
}

// OptimizeRequest はコンテンツ最適化の入力。
type OptimizeRequest struct {
	Content       string `json:"content"`
	TargetKeyword string `json:"targetKeyword"`
	Title         string `json:"title,omitempty"`
	URL           string `json:"url,omitempty"`
}

// Suggestion はコンテンツ改善の提案。
type Suggestion struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority,omitempty"`
}

// OptimizationResult はコンテンツ最適化の結果。
type OptimizationResult struct {
	Score            float64      `json:"score"`
	WordCount        int          `json:"wordCount"`
	KeywordDensity   float64      `json:"keywordDensity"`
	ReadabilityScore float64      `json:"readabilityScore"`
	Suggestions      []Suggestion `json:"suggestions"`
}

// Service はSEO分析APIのクライアント。
type Service struct {
	api apiclient.Doer
}

// NewService はServiceを生成する。
func NewService(api apiclient.Doer) *Service {
	return &Service{api: api}
}

type analyzeRequest struct {
	URL      string   `json:"url"`
	Strategy Strategy `json:"strategy"`
}

// Analyze はURLのページ速度を分析する。strategyが空の場合はmobile。
func (s *Service) Analyze(ctx context.Context, rawURL string, strategy Strategy) (*AnalysisResult, error) {
	u, err := validation.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	switch strategy {
	case "":
		strategy = StrategyMobile
	case StrategyMobile, StrategyDesktop:
	default:
		return nil, model.NewValidationError("strategy", "Strategy must be mobile or desktop")
	}

	var result AnalysisResult
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/seo/analyze",
		Body:   analyzeRequest{URL: u, Strategy: strategy},
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// OptimizeContent は本文とターゲットキーワードから改善提案を取得する。
func (s *Service) OptimizeContent(ctx context.Context, req OptimizeRequest) (*OptimizationResult, error) {
	if req.Content == "" {
		return nil, model.NewValidationError("content", "Content is required")
	}
	kw, err := validation.ValidateKeyword(req.TargetKeyword)
	if err != nil {
		return nil, err
	}
	req.TargetKeyword = kw
	if req.URL != "" {
		req.URL = validation.NormalizeURL(req.URL)
	}

	var result OptimizationResult
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/seo/optimize-content",
		Body:   req,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
