package blog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/seokit/internal/model"
)

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>SEO Tools Blog</title>
  <link>https://seo-tools.example.com/blog</link>
  <item>
    <title>Older post</title>
    <link>https://seo-tools.example.com/blog/older</link>
    <description>Old news</description>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Core Web Vitals &amp; you</title>
    <guid>https://seo-tools.example.com/blog/cwv</guid>
    <description>&lt;p&gt;Learn about &lt;strong&gt;LCP&lt;/strong&gt;&lt;/p&gt;&lt;script&gt;alert(1)&lt;/script&gt;</description>
    <category>performance</category>
    <pubDate>Wed, 15 May 2024 09:30:00 GMT</pubDate>
  </item>
  <item>
    <title>Undated post</title>
    <link>https://seo-tools.example.com/blog/undated</link>
    <description>No date</description>
  </item>
</channel>
</rss>`

const testAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>SEO Tools Blog</title>
  <entry>
    <title>Atom entry</title>
    <link href="https://seo-tools.example.com/blog/atom"/>
    <id>urn:uuid:1</id>
    <updated>2024-06-01T00:00:00Z</updated>
    <author><name>Hanako</name></author>
    <summary>Atom summary</summary>
  </entry>
</feed>`

func newFeedServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestService_Latest_RSS(t *testing.T) {
	ts := newFeedServer(t, http.StatusOK, testRSS)
	svc := NewService(ts.URL, ts.Client(), nil)

	posts, err := svc.Latest(context.Background(), 0)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(posts) != 3 {
		t.Fatalf("len(posts) = %d, want 3", len(posts))
	}

	// 新しい順、日時なしは末尾
	if posts[0].Title != "Core Web Vitals & you" || posts[1].Title != "Older post" || posts[2].Title != "Undated post" {
		t.Errorf("order = %q, %q, %q", posts[0].Title, posts[1].Title, posts[2].Title)
	}

	first := posts[0]
	if first.Link != "https://seo-tools.example.com/blog/cwv" {
		t.Errorf("GUIDがLinkとして使われるべき: %q", first.Link)
	}
	if first.Excerpt != "Learn about LCP" {
		t.Errorf("Excerpt = %q", first.Excerpt)
	}
	if strings.Contains(first.SnippetHTML, "script") || !strings.Contains(first.SnippetHTML, "<strong>LCP</strong>") {
		t.Errorf("SnippetHTML = %q", first.SnippetHTML)
	}
	if len(first.Categories) != 1 || first.Categories[0] != "performance" {
		t.Errorf("Categories = %v", first.Categories)
	}
	if posts[2].PublishedAt != nil {
		t.Error("日時なしの記事はPublishedAtがnilであるべき")
	}
}

func TestService_Latest_Limit(t *testing.T) {
	ts := newFeedServer(t, http.StatusOK, testRSS)
	posts, err := NewService(ts.URL, ts.Client(), nil).Latest(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 || posts[0].Title != "Core Web Vitals & you" {
		t.Errorf("posts = %+v", posts)
	}
}

func TestService_Latest_Atom(t *testing.T) {
	ts := newFeedServer(t, http.StatusOK, testAtom)
	posts, err := NewService(ts.URL, ts.Client(), nil).Latest(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Fatalf("len(posts) = %d", len(posts))
	}
	p := posts[0]
	if p.Author != "Hanako" || p.Excerpt != "Atom summary" || p.PublishedAt == nil {
		t.Errorf("post = %+v", p)
	}
}

func TestService_Latest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"HTTPエラー", http.StatusInternalServerError, "oops"},
		{"パース不能", http.StatusOK, "this is not a feed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newFeedServer(t, tt.status, tt.body)
			_, err := NewService(ts.URL, ts.Client(), nil).Latest(context.Background(), 0)
			apiErr, ok := model.AsAPIError(err)
			if !ok || apiErr.StatusCode != http.StatusBadGateway {
				t.Errorf("err = %v, want 502", err)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("短い", 10); got != "短い" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("あいうえおかきくけこ", 5); got != "あいうえお…" {
		t.Errorf("truncate() = %q", got)
	}
}
