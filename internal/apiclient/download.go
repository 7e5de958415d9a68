package apiclient

import (
	"context"
	"mime"
	"net/http"
	"net/url"

	"github.com/hitoshi/seokit/internal/model"
)

// File はバイナリ応答（レポートのダウンロードなど）を表す。
type File struct {
	// Name はContent-Dispositionのfilename。ヘッダーがない場合は空文字列。
	Name        string
	ContentType string
	Data        []byte
}

// Download はエンベロープを介さないバイナリ応答を取得する。
// JSON前提のDoとは別経路だが、認証ヘッダーの付与と401時のセッション破棄は同じように行う。
func (c *Client) Download(ctx context.Context, path string, query url.Values) (*File, error) {
	file, err := c.download(ctx, path, query)
	if err != nil {
		return nil, model.WrapAPIError(err)
	}
	return file, nil
}

func (c *Client) download(ctx context.Context, path string, query url.Values) (*File, error) {
	httpReq, err := c.newHTTPRequest(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "*/*")

	status, body, header, err := c.send(httpReq, path)
	if err != nil {
		return nil, err
	}

	if status < 200 || status >= 300 {
		return nil, c.errorFromResponse(status, body, false)
	}

	return &File{
		Name:        filenameFromDisposition(header.Get("Content-Disposition")),
		ContentType: header.Get("Content-Type"),
		Data:        body,
	}, nil
}

// filenameFromDisposition はContent-Dispositionヘッダーからファイル名を取り出す。
func filenameFromDisposition(value string) string {
	if value == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return params["filename"]
}
