// Package report は保存済みレポートの管理APIを提供する。
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/model"
)

// Type はレポートの種類。
type Type string

const (
	TypePageSpeed  Type = "pagespeed"
	TypeMeta       Type = "meta"
	TypeKeyword    Type = "keyword"
	TypeCompetitor Type = "competitor"
	TypeContent    Type = "content"
)

// Report は保存済みレポート。Dataは種類ごとに形が異なるため生のまま保持する。
type Report struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	URL       string          `json:"url,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`
}

// SaveRequest はレポート保存の入力。
type SaveRequest struct {
	Type  Type   `json:"type" validate:"required"`
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
	Data  any    `json:"data"`
}

// ListOptions は一覧・検索の絞り込み条件。
type ListOptions struct {
	Type  Type
	Page  int
	Limit int
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Type != "" {
		q.Set("type", string(o.Type))
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// ListResult はレポート一覧。
type ListResult struct {
	Reports []Report `json:"reports"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}

// Statistics はレポートの集計。
type Statistics struct {
	TotalReports int            `json:"totalReports"`
	ByType       map[string]int `json:"byType"`
	LastWeek     int            `json:"lastWeek"`
}

// Downloader はバイナリ応答を取得する。apiclient.Clientが実装する。
type Downloader interface {
	Download(ctx context.Context, path string, query url.Values) (*apiclient.File, error)
}

// FailureRecorder はベストエフォート処理の失敗を記録する。metrics.Collectorが実装する。
type FailureRecorder interface {
	RecordBestEffortFailure(operation string)
}

// Service はレポートAPIのクライアント。
type Service struct {
	api      apiclient.Doer
	files    Downloader
	logger   *slog.Logger
	failures FailureRecorder
}

// NewService はServiceを生成する。loggerとfailuresはnilでもよい。
func NewService(api apiclient.Doer, files Downloader, logger *slog.Logger, failures FailureRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, files: files, logger: logger, failures: failures}
}

// Save はレポートを保存する。
func (s *Service) Save(ctx context.Context, req SaveRequest) (*Report, error) {
	if req.Type == "" {
		return nil, model.NewValidationError("type", "Report type is required")
	}
	if req.Data == nil {
		return nil, model.NewValidationError("data", "Report data is required")
	}

	var r Report
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodPost, Path: "/api/report/save", Body: req}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// List はレポート一覧を取得する。
func (s *Service) List(ctx context.Context, opts ListOptions) (*ListResult, error) {
	return s.list(ctx, "/api/report/list", opts.query(), opts)
}

// Search はタイトル・URLでレポートを検索する。
func (s *Service) Search(ctx context.Context, query string, opts ListOptions) (*ListResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewValidationError("q", "Search query is required")
	}
	q := opts.query()
	q.Set("q", query)
	return s.list(ctx, "/api/report/search", q, opts)
}

func (s *Service) list(ctx context.Context, path string, q url.Values, opts ListOptions) (*ListResult, error) {
	var raw json.RawMessage
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: path, Query: q}, &raw); err != nil {
		return nil, err
	}
	res, err := decodeList(raw)
	if err != nil {
		return nil, err
	}
	if res.Page == 0 {
		res.Page = opts.Page
	}
	if res.Limit == 0 {
		res.Limit = opts.Limit
	}
	return res, nil
}

// decodeList は一覧の応答を正規化する。配列のみの応答と {reports, total} の両方を受け付ける。
func decodeList(raw json.RawMessage) (*ListResult, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return &ListResult{Reports: []Report{}}, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var reports []Report
		if err := json.Unmarshal(raw, &reports); err != nil {
			return nil, model.WrapAPIError(fmt.Errorf("decode report list: %w", err))
		}
		return &ListResult{Reports: reports, Total: len(reports)}, nil
	}

	var res ListResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, model.WrapAPIError(fmt.Errorf("decode report list: %w", err))
	}
	if res.Reports == nil {
		res.Reports = []Report{}
	}
	if res.Total == 0 {
		res.Total = len(res.Reports)
	}
	return &res, nil
}

// Get はレポートを1件取得する。
func (s *Service) Get(ctx context.Context, id string) (*Report, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var r Report
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/report/" + url.PathEscape(id)}, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Statistics はレポートの集計を取得する。
func (s *Service) Statistics(ctx context.Context) (*Statistics, error) {
	var st Statistics
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/report/statistics"}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Delete はレポートを削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	return s.api.Do(ctx, &apiclient.Request{Method: http.MethodDelete, Path: "/api/report/" + url.PathEscape(id)}, nil)
}

// Download はレポートをファイルとして取得する。formatが空の場合はサーバーの既定（PDF）。
// ファイル名はContent-Dispositionから取り、なければ report-<id>.<format> とする。
func (s *Service) Download(ctx context.Context, id, format string) (*apiclient.File, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	var q url.Values
	if format != "" {
		q = url.Values{"format": {format}}
	}

	f, err := s.files.Download(ctx, "/api/report/"+url.PathEscape(id)+"/download", q)
	if err != nil {
		return nil, err
	}
	if f.Name == "" {
		ext := format
		if ext == "" {
			ext = "pdf"
		}
		f.Name = fmt.Sprintf("report-%s.%s", id, ext)
	}
	return f, nil
}

type shareRequest struct {
	Platform string `json:"platform"`
}

// TrackShare は共有操作を記録する。失敗しても呼び出し元には返さず、ログとメトリクスに残す。
func (s *Service) TrackShare(ctx context.Context, id, platform string) {
	err := s.api.Do(ctx, &apiclient.Request{
		Method:                   http.MethodPost,
		Path:                     "/api/report/" + url.PathEscape(id) + "/share",
		Body:                     shareRequest{Platform: platform},
		// 記録のための補助的な呼び出しでセッションを破棄しない
		SkipUnauthorizedHandling: true,
	}, nil)
	if err == nil {
		return
	}

	s.logger.Warn("share tracking failed",
		slog.String("report_id", id),
		slog.String("platform", platform),
		slog.String("error", err.Error()),
	)
	if s.failures != nil {
		s.failures.RecordBestEffortFailure("report_share")
	}
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return model.NewValidationError("id", "Report ID is required")
	}
	return nil
}
