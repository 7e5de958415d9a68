// Package blog はブログのRSS/Atomフィードから最新記事を取得する。
package blog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/security"
)

// excerptLength は抜粋の最大文字数。
const excerptLength = 200

// maxFeedSize はフィード本文の読み取り上限。
const maxFeedSize = 2 << 20

// Post はブログ記事1件。
type Post struct {
	GUID        string     `json:"guid,omitempty"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Author      string     `json:"author,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Excerpt     string     `json:"excerpt"`
	SnippetHTML string     `json:"snippetHtml,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// Service はブログフィードの読み取りを行う。
type Service struct {
	feedURL   string
	client    *http.Client
	sanitizer *security.Sanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。hcがnilの場合はhttp.DefaultClientを使う。
func NewService(feedURL string, hc *http.Client, logger *slog.Logger) *Service {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		feedURL:   feedURL,
		client:    hc,
		sanitizer: security.NewSanitizer(),
		logger:    logger,
	}
}

// Latest は公開日時の新しい順に最大limit件の記事を返す。limitが0以下の場合は全件。
func (s *Service) Latest(ctx context.Context, limit int) ([]Post, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return nil, model.NewValidationError("feedUrl", "Invalid feed URL: %s", s.feedURL)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, model.WrapAPIError(fmt.Errorf("failed to fetch blog feed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewAPIError(http.StatusBadGateway, fmt.Sprintf("Failed to fetch blog feed: HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, model.WrapAPIError(fmt.Errorf("failed to read blog feed: %w", err))
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		s.logger.Error("blog feed parse failed",
			slog.String("feed_url", s.feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAPIError(http.StatusBadGateway, "Blog feed could not be parsed")
	}

	posts := s.convert(parsed.Items)
	sort.SliceStable(posts, func(i, j int) bool {
		return newer(posts[i].PublishedAt, posts[j].PublishedAt)
	})
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}

	s.logger.Debug("blog feed fetched",
		slog.String("feed_url", s.feedURL),
		slog.Int("items", len(parsed.Items)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return posts, nil
}

func (s *Service) convert(items []*gofeed.Item) []Post {
	posts := make([]Post, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		p := Post{
			GUID:       item.GUID,
			Title:      s.sanitizer.Text(item.Title),
			Link:       item.Link,
			Categories: item.Categories,
		}
		if item.Author != nil {
			p.Author = item.Author.Name
		}
		if p.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			p.Author = item.Authors[0].Name
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			p.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			p.PublishedAt = &t
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使う
		if p.Link == "" && (strings.HasPrefix(p.GUID, "http://") || strings.HasPrefix(p.GUID, "https://")) {
			p.Link = p.GUID
		}

		source := item.Description
		if source == "" {
			source = item.Content
		}
		p.SnippetHTML = s.sanitizer.Snippet(source)
		p.Excerpt = truncate(s.sanitizer.Text(source), excerptLength)

		posts = append(posts, p)
	}
	return posts
}

// newer は日時なしの記事を末尾に並べる。
func newer(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.After(*b)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
