// Package validation はAPI呼び出し前に行うクライアント側の入力検証と正規化を提供する。
// ここで返すエラーはすべて*model.ValidationErrorで、ネットワークには到達しない。
package validation

import (
	"regexp"
	"strings"

	"github.com/hitoshi/seokit/internal/model"
)

// MaxCompetitorDomains は1回の競合分析で指定できる競合ドメインの上限。
const MaxCompetitorDomains = 5

var domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

// NormalizeDomain はプロトコル、www.、末尾のスラッシュを取り除き小文字化する。
// 何度適用しても結果は変わらない。
func NormalizeDomain(input string) string {
	d := strings.ToLower(strings.TrimSpace(input))
	for {
		prev := d
		d = strings.TrimPrefix(d, "https://")
		d = strings.TrimPrefix(d, "http://")
		d = strings.TrimPrefix(d, "www.")
		d = strings.TrimRight(d, "/")
		d = strings.TrimSpace(d)
		if d == prev {
			return d
		}
	}
}

// IsValidDomain は正規化後のドメインが構文的に正しいかを返す。
func IsValidDomain(input string) bool {
	return domainPattern.MatchString(NormalizeDomain(input))
}

// ValidateDomain はドメインを正規化して検証し、正規化済みの値を返す。
func ValidateDomain(input string) (string, error) {
	d := NormalizeDomain(input)
	if d == "" {
		return "", model.NewValidationError("domain", "Domain is required")
	}
	if !domainPattern.MatchString(d) {
		return "", model.NewValidationError("domain", "Invalid domain format: %s", input)
	}
	return d, nil
}

// NormalizeURL はスキームのないURLに https:// を補う。
func NormalizeURL(input string) string {
	u := strings.TrimSpace(input)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + u
}

// ValidateURL はURLを正規化し、空であればエラーを返す。
func ValidateURL(input string) (string, error) {
	u := NormalizeURL(input)
	if u == "" {
		return "", model.NewValidationError("url", "URL is required")
	}
	return u, nil
}

// ValidateCompetitorRequest はメインドメインと競合ドメインを検証し、正規化済みの値を返す。
// 競合は1〜5件で、メインを含めたすべてのドメインが互いに異なる必要がある。
func ValidateCompetitorRequest(mainDomain string, competitors []string) (string, []string, error) {
	main := NormalizeDomain(mainDomain)
	if !domainPattern.MatchString(main) {
		return "", nil, model.NewValidationError("mainDomain", "Invalid main domain format: %s", mainDomain)
	}

	if len(competitors) == 0 {
		return "", nil, model.NewValidationError("competitorDomains", "At least one competitor domain is required")
	}
	if len(competitors) > MaxCompetitorDomains {
		return "", nil, model.NewValidationError("competitorDomains", "Maximum %d competitor domains allowed", MaxCompetitorDomains)
	}

	seen := map[string]struct{}{main: {}}
	normalized := make([]string, 0, len(competitors))
	for _, c := range competitors {
		d := NormalizeDomain(c)
		if !domainPattern.MatchString(d) {
			return "", nil, model.NewValidationError("competitorDomains", "Invalid competitor domain format: %s", c)
		}
		if _, dup := seen[d]; dup {
			return "", nil, model.NewValidationError("competitorDomains", "Duplicate domains are not allowed")
		}
		seen[d] = struct{}{}
		normalized = append(normalized, d)
	}

	return main, normalized, nil
}
