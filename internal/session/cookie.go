package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/hitoshi/seokit/internal/model"
)

const (
	// TokenCookieName はトークンを保存するクッキー名。
	TokenCookieName = "seo-tools-token"
	// UserCookieName はJSONシリアライズしたユーザーを保存するクッキー名。
	UserCookieName = "seo-tools-user"
	// CookieMaxAge はセッションクッキーの有効期間。
	CookieMaxAge = 7 * 24 * time.Hour
)

// CookieStoreConfig はCookieStoreの設定。
type CookieStoreConfig struct {
	// AppURL はクッキーを発行するフロントエンドのURL。
	AppURL string
	// Secure はSecure属性を付与するか（本番環境でtrue）。
	Secure bool
}

// CookieStore はセッションを2つのクッキーとしてcookiejarに保持するStore実装。
// ブラウザと同じ規則（有効期限、Secure、ドメイン）で読み書きされる。
type CookieStore struct {
	jar    http.CookieJar
	appURL *url.URL
	secure bool
	now    func() time.Time
}

// NewCookieStore はpublicsuffixリスト付きのcookiejarを使うCookieStoreを生成する。
func NewCookieStore(cfg CookieStoreConfig) (*CookieStore, error) {
	u, err := url.Parse(cfg.AppURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid app URL for cookie store: %q", cfg.AppURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &CookieStore{
		jar:    jar,
		appURL: u,
		secure: cfg.Secure,
		now:    time.Now,
	}, nil
}

// Jar はサーバー側でSet-Cookieを中継する場合などに使うcookiejarを返す。
func (c *CookieStore) Jar() http.CookieJar {
	return c.jar
}

// Cookies はセッションを表すクッキーを生成する。
// ユーザーJSONはクッキー値に使えない文字を含むためURLエンコードする。
func (c *CookieStore) Cookies(s *model.Session) ([]*http.Cookie, error) {
	userJSON, err := json.Marshal(s.User)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user cookie: %w", err)
	}

	expires := c.now().Add(CookieMaxAge)
	return []*http.Cookie{
		c.newCookie(TokenCookieName, s.Token, expires),
		c.newCookie(UserCookieName, url.QueryEscape(string(userJSON)), expires),
	}, nil
}

func (c *CookieStore) newCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(CookieMaxAge.Seconds()),
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Load はcookiejarからセッションを復元する。
// 片方のクッキーしかない場合やユーザーJSONが壊れている場合は未ログインとして扱う。
func (c *CookieStore) Load() (*model.Session, bool) {
	var token, rawUser string
	for _, ck := range c.jar.Cookies(c.appURL) {
		switch ck.Name {
		case TokenCookieName:
			token = ck.Value
		case UserCookieName:
			rawUser = ck.Value
		}
	}
	if token == "" || rawUser == "" {
		return nil, false
	}

	decoded, err := url.QueryUnescape(rawUser)
	if err != nil {
		return nil, false
	}
	var user model.User
	if err := json.Unmarshal([]byte(decoded), &user); err != nil {
		return nil, false
	}

	return &model.Session{Token: token, User: &user}, true
}

// Save はセッションをクッキーとして保存する。
func (c *CookieStore) Save(s *model.Session) error {
	if !s.Valid() {
		return ErrIncompleteSession
	}
	cookies, err := c.Cookies(s)
	if err != nil {
		return err
	}
	c.jar.SetCookies(c.appURL, cookies)
	return nil
}

// Clear は両方のクッキーを失効させる。
func (c *CookieStore) Clear() error {
	expired := []*http.Cookie{
		{Name: TokenCookieName, Path: "/", MaxAge: -1},
		{Name: UserCookieName, Path: "/", MaxAge: -1},
	}
	c.jar.SetCookies(c.appURL, expired)
	return nil
}

var _ Store = (*CookieStore)(nil)
