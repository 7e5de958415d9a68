package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/seokit/internal/session"
)

// Request はバックエンドへの1回の呼び出しを表す。
// Body（JSON）、Form（URLエンコード）、Multipartのうち最大1つを指定する。
type Request struct {
	Method string
	// Path はベースURLからの相対パス（例: /api/meta/validate）。
	Path  string
	Query url.Values

	Body      any
	Form      url.Values
	Multipart *Multipart

	// Header は既定ヘッダー（Content-Type: application/json など）を上書きする。
	Header http.Header

	// SkipUnauthorizedHandling は401応答時のセッション破棄を行わない。
	// ログインなど、401が「資格情報の誤り」を意味する認証系エンドポイントで使う。
	SkipUnauthorizedHandling bool
}

// Multipart はmultipart/form-dataのボディ。
// Content-Typeはboundary付きでクライアントが設定するため、呼び出し側では指定しない。
type Multipart struct {
	Fields    map[string]string
	FileField string
	FileName  string
	File      io.Reader
}

// newHTTPRequest はRequestからhttp.Requestを構築する。
func (c *Client) newHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", newRequestID())

	// 呼び出し側のヘッダーで既定値を上書きする
	for key, values := range req.Header {
		if req.Multipart != nil && strings.EqualFold(key, "Content-Type") {
			continue
		}
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	if httpReq.Header.Get("Authorization") == "" && c.store != nil {
		if token := session.TokenOf(c.store); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return httpReq, nil
}

// resolve はベースURLと相対パスからリクエストURLを組み立てる。
func (c *Client) resolve(path string, query url.Values) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty endpoint path")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", path, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// encodeBody はリクエストボディとContent-Typeを返す。
func encodeBody(req *Request) (io.Reader, string, error) {
	switch {
	case req.Multipart != nil:
		return encodeMultipart(req.Multipart)
	case req.Form != nil:
		return strings.NewReader(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	case req.Body != nil:
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	default:
		return nil, "application/json", nil
	}
}

func encodeMultipart(m *Multipart) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for name, value := range m.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("failed to write multipart field %q: %w", name, err)
		}
	}

	if m.File != nil {
		field := m.FileField
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, m.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create multipart file part: %w", err)
		}
		if _, err := io.Copy(part, m.File); err != nil {
			return nil, "", fmt.Errorf("failed to write multipart file: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
