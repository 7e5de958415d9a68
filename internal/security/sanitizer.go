package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer は外部から取得したHTMLを表示用に無害化する。
// 2つのポリシーを持ち、どちらも複数goroutineから同時に使える。
type Sanitizer struct {
	text    *bluemonday.Policy
	snippet *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//   - Text: すべてのタグを除去しプレーンテキストにする
//   - Snippet: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img のみ許可。
//     aには target="_blank" と rel="noopener noreferrer" を付与し、imgのsrcはhttpsのみ。
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AllowURLSchemes("https", "http")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").Matching(regexp.MustCompile(`^https://`)).OnElements("img")

	text := bluemonday.StrictPolicy()
	text.AddSpaceWhenStrippingTag(true)

	return &Sanitizer{
		text:    text,
		snippet: p,
	}
}

// Text はHTMLからタグを除去し、実体参照を戻して空白を詰めたプレーンテキストを返す。
func (s *Sanitizer) Text(rawHTML string) string {
	stripped := s.text.Sanitize(rawHTML)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}

// Snippet は許可リストのタグのみを残した安全なHTMLを返す。
func (s *Sanitizer) Snippet(rawHTML string) string {
	return s.snippet.Sanitize(rawHTML)
}
