package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/seokit/internal/model"
)

const (
	// MaxKeywordsPerRequest は1回のトラッキングで送信できるキーワード数の上限。
	MaxKeywordsPerRequest = 10
	// MaxKeywordLength はキーワードの最大文字数（Unicodeコードポイント単位）。
	MaxKeywordLength = 100
)

// 空白はASCIIに限らずUnicodeの区切り文字（全角スペース、NBSPなど）とBOMも許可する
var keywordPattern = regexp.MustCompile(`^[\p{L}\p{N}\s\p{Z}\v\x{FEFF}\-_.,!?'"()]+$`)

// NormalizeKeyword は前後の空白を除去しNFCに正規化する。
func NormalizeKeyword(input string) string {
	return norm.NFC.String(strings.TrimSpace(input))
}

// ValidateKeyword は1件のキーワードを検証し、正規化済みの値を返す。
func ValidateKeyword(input string) (string, error) {
	k := NormalizeKeyword(input)
	if k == "" {
		return "", model.NewValidationError("keywords", "Keyword cannot be empty")
	}
	if utf8.RuneCountInString(k) > MaxKeywordLength {
		return "", model.NewValidationError("keywords", "Keyword must be %d characters or less: %s", MaxKeywordLength, truncate(k, 20))
	}
	if !keywordPattern.MatchString(k) {
		return "", model.NewValidationError("keywords", "Keyword contains invalid characters: %s", k)
	}
	return k, nil
}

// ValidateKeywords はキーワード一覧を検証する。件数の上限チェックは個々の検証より先に行う。
func ValidateKeywords(keywords []string) ([]string, error) {
	if len(keywords) == 0 {
		return nil, model.NewValidationError("keywords", "At least one keyword is required")
	}
	if len(keywords) > MaxKeywordsPerRequest {
		return nil, model.NewValidationError("keywords", "Maximum %d keywords allowed per request", MaxKeywordsPerRequest)
	}

	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		k, err := ValidateKeyword(kw)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
