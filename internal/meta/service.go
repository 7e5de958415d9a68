// Package meta はメタタグ検証APIと、サマリーを返さない旧バックエンド向けの集計を提供する。
package meta

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/validation"
)

// KnownTags は集計対象のタグキー。
var KnownTags = []string{
	"title",
	"description",
	"keywords",
	"viewport",
	"robots",
	"canonical",
	"og:title",
	"og:description",
	"og:image",
	"og:url",
	"og:type",
	"twitter:card",
	"twitter:title",
	"twitter:description",
	"twitter:image",
}

// TagResult はタグ1件の検証結果。
type TagResult struct {
	Exists          bool     `json:"exists"`
	Content         string   `json:"content,omitempty"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Summary は検証結果の集計。
type Summary struct {
	TotalTags       int `json:"totalTags"`
	FoundTags       int `json:"foundTags"`
	CriticalIssues  int `json:"criticalIssues"`
	Warnings        int `json:"warnings"`
	Recommendations int `json:"recommendations"`
}

// ValidationResult はメタタグ検証の結果。
type ValidationResult struct {
	URL     string               `json:"url"`
	Tags    map[string]TagResult `json:"tags"`
	Summary *Summary             `json:"summary,omitempty"`
}

// Service はメタタグ検証APIのクライアント。
type Service struct {
	api apiclient.Doer
}

// NewService はServiceを生成する。
func NewService(api apiclient.Doer) *Service {
	return &Service{api: api}
}

type validateRequest struct {
	URL string `json:"url"`
}

// Validate はURLのメタタグを検証する。バックエンドがsummaryを返さない場合はクライアント側で集計する。
func (s *Service) Validate(ctx context.Context, rawURL string) (*ValidationResult, error) {
	u, err := validation.ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	var result ValidationResult
	err = s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/meta/validate",
		Body:   validateRequest{URL: u},
	}, &result)
	if err != nil {
		return nil, err
	}

	if result.Summary == nil {
		sum := ComputeSummary(result.Tags)
		result.Summary = &sum
	}
	return &result, nil
}

// ComputeSummary はKnownTagsの範囲でタグの有無・問題・推奨を数える。
// 問題文に "too long" か "too short" を含むものは警告、それ以外は重大な問題とする。
func ComputeSummary(tags map[string]TagResult) Summary {
	sum := Summary{TotalTags: len(KnownTags)}
	for _, key := range KnownTags {
		tag, ok := tags[key]
		if !ok {
			continue
		}
		if tag.Exists {
			sum.FoundTags++
		}
		for _, issue := range tag.Issues {
			if isWarning(issue) {
				sum.Warnings++
			} else {
				sum.CriticalIssues++
			}
		}
		sum.Recommendations += len(tag.Recommendations)
	}
	return sum
}

func isWarning(issue string) bool {
	lower := strings.ToLower(issue)
	return strings.Contains(lower, "too long") || strings.Contains(lower, "too short")
}
