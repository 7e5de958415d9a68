package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// successBody は成功時の {success: true, data} 形式。
type successBody struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// errorBody は失敗時の {success: false, error, details} 形式。
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// WriteData はdataをエンベロープに包んで書き込む。dataがnilの場合も "data": null を含める。
func WriteData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, successBody{Success: true, Data: data})
}

// WriteError はエラーメッセージをエンベロープ形式で書き込む。
func WriteError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// WriteValidationError はフィールドごとの `_errors` ツリーを持つ400応答を書き込む。
// fieldsのキーはドット区切りでネストを表す。
func WriteValidationError(w http.ResponseWriter, fields map[string]string) {
	details := map[string]any{}
	for path, msg := range fields {
		node := details
		for _, key := range splitPath(path) {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		errs, _ := node["_errors"].([]string)
		node["_errors"] = append(errs, msg)
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "Validation error", Details: details})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	return append(parts, path[start:])
}
