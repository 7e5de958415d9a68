// Package apiclient はSEOツールのバックエンドAPIを呼び出す唯一の窓口を提供する。
// URL構築、認証ヘッダー付与、JSONエンベロープの展開、エラーの正規化を一箇所で行う。
// リトライは行わず、すべての失敗を*model.APIErrorとして呼び出し元に返す。
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/session"
)

const (
	// defaultTimeout はhttp.Clientが指定されない場合のタイムアウト。
	defaultTimeout = 30 * time.Second
	// defaultUserAgent はUser-Agentヘッダーの既定値。
	defaultUserAgent = "seokit/1.0"
	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 20 << 20
)

// ErrResponseTooLarge はレスポンスボディが読み取り上限を超えた場合のエラー。
var ErrResponseTooLarge = errors.New("response body too large")

// MetricsRecorder はAPI呼び出しのメトリクス記録先。
// metrics.Collectorが実装する。
type MetricsRecorder interface {
	RecordRequest(method, endpoint string, statusCode int, duration time.Duration)
	RecordUnauthorized()
	RecordRateLimitWait(d time.Duration)
}

// Doer はドメインサービスが依存するリクエスト実行のインターフェース。
// テスト時にモックへ差し替え可能。
type Doer interface {
	Do(ctx context.Context, req *Request, out any) error
}

// Client はバックエンドAPIのクライアント。
// 複数goroutineから同時に使用してよい。同一エンドポイントへの並行呼び出しは
// 互いに独立しており、重複排除やキャッシュは行わない。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	store      session.Store
	limiter    *rate.Limiter
	metrics    MetricsRecorder
	userAgent  string
	maxBody    int64

	mu             sync.RWMutex
	onUnauthorized []func()
}

// Option はClientの設定を変更する。
type Option func(*Client)

// WithHTTPClient は使用するhttp.Clientを差し替える。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimit は1分あたりのリクエスト数でクライアント側の送信ペースを制限する。
// 0以下の場合は制限しない。
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute)
	}
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent はUser-Agentヘッダーを設定する。
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New はClientを生成する。baseURLは全サービス共通の単一のベースURL。
// storeからトークンを読み取り、401応答時にはstoreを破棄する。
func New(baseURL string, store session.Store, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		baseURL:    strings.TrimRight(baseURL, "/"),
		store:      store,
		userAgent:  defaultUserAgent,
		maxBody:    maxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL はAPIのベースURLを返す。
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient は内部で使用しているhttp.Clientを返す。
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// OnUnauthorized は401応答でセッションを破棄した後に呼ばれるフックを登録する。
// auth.Service.Logoutの登録を想定している。
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

// Do はリクエストを実行し、成功エンベロープのdataをoutにデコードする。
// outがnilの場合はdataを破棄する。返すエラーは常に*model.APIError。
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	if err := c.do(ctx, req, out); err != nil {
		return model.WrapAPIError(err)
	}
	return nil
}

// Get はGETリクエストを実行する。
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path}, out)
}

// Post はJSONボディ付きのPOSTリクエストを実行する。
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put はJSONボディ付きのPUTリクエストを実行する。
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Patch はJSONボディ付きのPATCHリクエストを実行する。
func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

// Delete はDELETEリクエストを実行する。
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) do(ctx context.Context, req *Request, out any) error {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return err
	}

	status, body, _, err := c.send(httpReq, req.Path)
	if err != nil {
		return err
	}

	if status < 200 || status >= 300 {
		return c.errorFromResponse(status, body, req.SkipUnauthorizedHandling)
	}

	return decodeEnvelope(body, out)
}

// send はレート制限を適用してリクエストを送信し、ステータス・ボディ・ヘッダーを返す。
func (c *Client) send(httpReq *http.Request, endpoint string) (int, []byte, http.Header, error) {
	ctx := httpReq.Context()
	requestID := httpReq.Header.Get("X-Request-ID")

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordRateLimitWait(time.Since(waitStart))
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	if err != nil {
		c.recordRequest(httpReq.Method, endpoint, 0, duration)
		c.logger.Error("API request failed",
			slog.String("method", httpReq.Method),
			slog.String("path", endpoint),
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	// 上限+1バイトまで読み、超過は切り詰めずにエラーにする
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		c.recordRequest(httpReq.Method, endpoint, resp.StatusCode, duration)
		return 0, nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		c.recordRequest(httpReq.Method, endpoint, resp.StatusCode, duration)
		c.logger.Error("API response too large",
			slog.String("method", httpReq.Method),
			slog.String("path", endpoint),
			slog.String("request_id", requestID),
			slog.Int64("limit_bytes", c.maxBody),
		)
		return 0, nil, nil, &model.APIError{
			StatusCode: http.StatusBadGateway,
			Message:    fmt.Sprintf("Response exceeds %d bytes", c.maxBody),
			Err:        ErrResponseTooLarge,
		}
	}

	c.recordRequest(httpReq.Method, endpoint, resp.StatusCode, duration)

	level := slog.LevelDebug
	if resp.StatusCode >= 500 {
		level = slog.LevelError
	} else if resp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	c.logger.Log(ctx, level, "api_request",
		slog.String("method", httpReq.Method),
		slog.String("path", endpoint),
		slog.Int("status", resp.StatusCode),
		slog.Float64("duration_ms", float64(duration.Nanoseconds())/float64(time.Millisecond)),
		slog.String("request_id", requestID),
	)

	return resp.StatusCode, body, resp.Header, nil
}

func (c *Client) recordRequest(method, endpoint string, status int, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordRequest(method, endpoint, status, d)
	}
}

// errorFromResponse は2xx以外の応答をAPIErrorに変換する。
// 401の場合はセッションを破棄する（skipUnauthorizedが指定された認証系エンドポイントを除く）。
func (c *Client) errorFromResponse(status int, body []byte, skipUnauthorized bool) error {
	eb := parseErrorBody(body)

	if status == http.StatusUnauthorized && !skipUnauthorized {
		c.teardownSession()
		return model.NewAuthRequiredError()
	}

	if status == http.StatusBadRequest && eb.isValidationError() {
		if flat := FlattenValidationDetails(eb.Details); flat != "" {
			return model.NewAPIError(status, model.MsgValidationPrefix+": "+flat)
		}
	}

	return model.NewAPIError(status, eb.message(status))
}

// teardownSession はセッションを破棄し、登録済みフックを呼び出す。
func (c *Client) teardownSession() {
	if c.store != nil {
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("failed to clear session after 401",
				slog.String("error", err.Error()),
			)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordUnauthorized()
	}

	c.mu.RLock()
	hooks := append([]func(){}, c.onUnauthorized...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func newRequestID() string {
	return uuid.NewString()
}

var _ Doer = (*Client)(nil)
