// Package security はユーザーが指定したページURLの取得時のSSRF対策と、
// 取得したHTMLの無害化を提供する。
package security

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/hitoshi/seokit/internal/model"
)

// ErrResponseTooLarge はレスポンスボディが上限を超えた場合に返される。
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// TargetValidator は取得対象URLの事前検証を行う。
type TargetValidator interface {
	ValidateTarget(rawURL string) error
}

// GuardConfig はGuardの設定。
type GuardConfig struct {
	Timeout         time.Duration
	MaxResponseSize int64
}

// Guard はSSRF防止付きのHTTPクライアントと事前検証を提供する。
type Guard struct {
	config GuardConfig
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks は事前検証で拒否するネットワーク範囲。
// 接続時の検証はsafeurlがDNS解決後のIPに対して行う。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	// クラウドメタデータ (169.254.169.254) を含む
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

var blockedHostnames = []string{"localhost", "metadata.google.internal"}

// NewGuard はGuardを生成する。
func NewGuard(config GuardConfig) *Guard {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = 5 << 20
	}
	return &Guard{config: config}
}

// Client はsafeurlによるSSRF防止付きのHTTPクライアントを返す。
// プライベートIP、ループバック、リンクローカルへの接続はDNS解決後に拒否され、
// レスポンスボディはMaxResponseSizeで打ち切られる。
func (g *Guard) Client() *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(g.config.Timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	hc := safeurl.Client(cfg).Client
	hc.Transport = &limitTransport{next: hc.Transport, limit: g.config.MaxResponseSize}
	return hc
}

// LimitClient は任意のクライアントにボディサイズの上限だけを適用したコピーを返す。
// SSRF防止を外す必要があるテストや、信頼済みホスト向けに使う。
func (g *Guard) LimitClient(hc *http.Client) *http.Client {
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	c := *hc
	c.Transport = &limitTransport{next: next, limit: g.config.MaxResponseSize}
	if c.Timeout == 0 {
		c.Timeout = g.config.Timeout
	}
	return &c
}

// ValidateTarget はDNS解決を伴わない静的な検証を行い、利用者向けの検証エラーを返す。
func (g *Guard) ValidateTarget(rawURL string) error {
	if rawURL == "" {
		return model.NewValidationError("url", "URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return model.NewValidationError("url", "Invalid URL: %s", rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return model.NewValidationError("url", "URL must use http or https: %s", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return model.NewValidationError("url", "URL has no host: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return model.NewValidationError("url", "URL points to a private address: %s", host)
		}
		return nil
	}
	if isBlockedHostname(host) {
		return model.NewValidationError("url", "URL host is not allowed: %s", host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range blockedHostnames {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		out = append(out, network)
	}
	return out
}

// limitTransport はレスポンスボディの読み取り量を制限する。
type limitTransport struct {
	next  http.RoundTripper
	limit int64
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.ContentLength > t.limit {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %d bytes", ErrResponseTooLarge, resp.ContentLength)
	}
	resp.Body = &limitedBody{rc: resp.Body, remaining: t.limit}
	return resp, nil
}

type limitedBody struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// 上限ちょうどで終わっているかを1バイト読んで確かめる
		var one [1]byte
		n, err := b.rc.Read(one[:])
		if n > 0 {
			return 0, ErrResponseTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	return n, err
}

func (b *limitedBody) Close() error {
	return b.rc.Close()
}

var _ TargetValidator = (*Guard)(nil)
