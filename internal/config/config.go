package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAPIURL = "http://localhost:5000"
	defaultAppURL = "http://localhost:3000"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIURL             string
	RequestTimeout     time.Duration
	RateLimitPerMinute int

	// App
	AppURL string
	Env    string

	// Session
	SessionFile string

	// Content fetch
	ContentFetchTimeout time.Duration
	ContentFetchMaxSize int64

	// Blog
	BlogFeedURL string

	// Stub server
	StubPort string

	// Logging
	LogLevel slog.Level
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば、未設定のキーのみ補完する。
func Load() (*Config, error) {
	return load(".env")
}

func load(envFiles ...string) (*Config, error) {
	env := newLookup(envFiles...)
	cfg := &Config{}

	cfg.APIURL = strings.TrimRight(env.string("SEOKIT_API_URL", env.string("NEXT_PUBLIC_API_URL", defaultAPIURL)), "/")
	if err := validateBaseURL("SEOKIT_API_URL", cfg.APIURL); err != nil {
		return nil, err
	}
	cfg.AppURL = strings.TrimRight(env.string("SEOKIT_APP_URL", defaultAppURL), "/")
	if err := validateBaseURL("SEOKIT_APP_URL", cfg.AppURL); err != nil {
		return nil, err
	}

	cfg.Env = env.string("SEOKIT_ENV", env.string("NODE_ENV", "development"))
	cfg.RequestTimeout = env.duration("SEOKIT_REQUEST_TIMEOUT", 30*time.Second)
	cfg.RateLimitPerMinute = env.int("SEOKIT_RATE_LIMIT_PER_MINUTE", 0)
	cfg.SessionFile = env.string("SEOKIT_SESSION_FILE", defaultSessionFile())
	cfg.ContentFetchTimeout = env.duration("SEOKIT_CONTENT_FETCH_TIMEOUT", 10*time.Second)
	cfg.ContentFetchMaxSize = env.int64("SEOKIT_CONTENT_FETCH_MAX_SIZE", 5<<20)
	cfg.BlogFeedURL = env.string("SEOKIT_BLOG_FEED_URL", cfg.AppURL+"/blog/rss.xml")
	cfg.StubPort = env.string("SEOKIT_STUB_PORT", "5000")

	level, err := parseLevel(env.string("SEOKIT_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	cfg.LogLevel = level

	if cfg.RateLimitPerMinute < 0 {
		return nil, errors.New("SEOKIT_RATE_LIMIT_PER_MINUTE must not be negative")
	}

	return cfg, nil
}

func validateBaseURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL: %q", key, raw)
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid SEOKIT_LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// defaultSessionFile はユーザー設定ディレクトリ配下のセッションファイルパスを返す。
func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "seokit", "session.json")
}

// lookup は環境変数を優先し、.envの値で補完する。
type lookup struct {
	file map[string]string
}

func newLookup(envFiles ...string) lookup {
	file := map[string]string{}
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		vals, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		for k, v := range vals {
			if _, ok := file[k]; !ok {
				file[k] = v
			}
		}
	}
	return lookup{file: file}
}

func (l lookup) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return l.file[key]
}

func (l lookup) string(key, defaultVal string) string {
	if v := l.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (l lookup) int(key string, defaultVal int) int {
	v := l.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (l lookup) int64(key string, defaultVal int64) int64 {
	v := l.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func (l lookup) duration(key string, defaultVal time.Duration) time.Duration {
	v := l.get(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
