package content

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/security"
	"github.com/hitoshi/seokit/internal/validation"
)

// Heading は見出し1件。
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Page はページから抽出した内容。
type Page struct {
	URL              string    `json:"url"`
	FinalURL         string    `json:"finalUrl"`
	Title            string    `json:"title"`
	MetaDescription  string    `json:"metaDescription"`
	Canonical        string    `json:"canonical,omitempty"`
	Language         string    `json:"language,omitempty"`
	Headings         []Heading `json:"headings"`
	Text             string    `json:"text"`
	WordCount        int       `json:"wordCount"`
	InternalLinks    int       `json:"internalLinks"`
	ExternalLinks    int       `json:"externalLinks"`
	Images           int       `json:"images"`
	ImagesWithoutAlt int       `json:"imagesWithoutAlt"`
}

// Extractor は指定URLのページを取得し、本文と構造を抽出する。
// 取得はSSRF防止付きのクライアントで行う。
type Extractor struct {
	client    *http.Client
	validator security.TargetValidator
	sanitizer *security.Sanitizer
	logger    *slog.Logger
	userAgent string
}

// ExtractorOption はExtractorの設定を変更する。
type ExtractorOption func(*Extractor)

// WithHTTPClient は取得に使うクライアントを差し替える。
func WithHTTPClient(hc *http.Client) ExtractorOption {
	return func(e *Extractor) { e.client = hc }
}

// WithTargetValidator は事前検証を差し替える。
func WithTargetValidator(v security.TargetValidator) ExtractorOption {
	return func(e *Extractor) { e.validator = v }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = logger }
}

// NewExtractor はExtractorを生成する。
func NewExtractor(guard *security.Guard, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		client:    guard.Client(),
		validator: guard,
		sanitizer: security.NewSanitizer(),
		logger:    slog.Default(),
		userAgent: "seokit-extractor/1.0",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract はURLのページを取得して内容を抽出する。
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Page, error) {
	target := validation.NormalizeURL(rawURL)
	if err := e.validator.ValidateTarget(target); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, model.NewValidationError("url", "Invalid URL: %s", rawURL)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("page fetch failed",
			slog.String("url", target),
			slog.String("error", err.Error()),
		)
		return nil, model.WrapAPIError(fmt.Errorf("failed to fetch %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewAPIError(http.StatusBadGateway, fmt.Sprintf("Failed to fetch %s: HTTP %d", target, resp.StatusCode))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mt, _, _ := mime.ParseMediaType(ct)
		if mt != "text/html" && mt != "application/xhtml+xml" {
			return nil, model.NewAPIError(http.StatusUnprocessableEntity, fmt.Sprintf("Unsupported content type: %s", mt))
		}
	}

	page, err := e.parse(resp.Body, resp.Request.URL)
	if err != nil {
		return nil, model.WrapAPIError(fmt.Errorf("failed to parse %s: %w", target, err))
	}
	page.URL = target
	e.logger.Debug("page extracted",
		slog.String("url", target),
		slog.Int("word_count", page.WordCount),
	)
	return page, nil
}

// PlainText はHTMLをプレーンテキストに変換する。エディタの下書き保存などに使う。
func (e *Extractor) PlainText(rawHTML string) string {
	return e.sanitizer.Text(rawHTML)
}

func (e *Extractor) parse(r io.Reader, base *url.URL) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	page := &Page{FinalURL: base.String(), Headings: []Heading{}}
	var text strings.Builder

	var walk func(n *html.Node, inBody bool)
	walk = func(n *html.Node, inBody bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Html:
				page.Language = attr(n, "lang")
			case atom.Body:
				inBody = true
			case atom.Title:
				if page.Title == "" {
					page.Title = collapse(nodeText(n))
				}
				return
			case atom.Meta:
				e.handleMeta(page, n)
			case atom.Link:
				if strings.EqualFold(attr(n, "rel"), "canonical") {
					page.Canonical = resolve(base, attr(n, "href"))
				}
			case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
				if t := collapse(nodeText(n)); t != "" {
					page.Headings = append(page.Headings, Heading{Level: int(n.Data[1] - '0'), Text: t})
				}
			case atom.A:
				e.countLink(page, base, attr(n, "href"))
			case atom.Img:
				page.Images++
				if strings.TrimSpace(attr(n, "alt")) == "" {
					page.ImagesWithoutAlt++
				}
			}
		}
		if n.Type == html.TextNode && inBody {
			text.WriteString(n.Data)
			text.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inBody)
		}
	}
	walk(doc, false)

	page.Text = collapse(text.String())
	page.WordCount = len(strings.Fields(page.Text))
	return page, nil
}

func (e *Extractor) handleMeta(page *Page, n *html.Node) {
	name := strings.ToLower(attr(n, "name"))
	if name == "" {
		name = strings.ToLower(attr(n, "property"))
	}
	if name == "description" && page.MetaDescription == "" {
		page.MetaDescription = collapse(attr(n, "content"))
	}
}

func (e *Extractor) countLink(page *Page, base *url.URL, href string) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	u, err := base.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	if strings.EqualFold(u.Hostname(), base.Hostname()) {
		page.InternalLinks++
	} else {
		page.ExternalLinks++
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	u, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return u.String()
}
