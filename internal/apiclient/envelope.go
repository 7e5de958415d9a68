package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/hitoshi/seokit/internal/model"
)

// envelope はバックエンドの全JSONレスポンスが従う {success, data, error, message} 形式。
// errorとmessageは文字列以外が返ることもあるため生のまま受け取る。
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
	Message json.RawMessage `json:"message"`
}

// decodeEnvelope は2xx応答のエンベロープを展開し、dataをoutにデコードする。
// success=falseは400、dataの欠落は500として扱う。
// dataがnullの場合は「存在する」とみなし、outは変更しない。
func decodeEnvelope(body []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return &model.APIError{
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("Invalid JSON response from API: %v", err),
			Err:        err,
		}
	}

	if !env.Success {
		msg := firstNonEmpty(jsonString(env.Error), jsonString(env.Message), model.MsgRequestFailed)
		return model.NewAPIError(http.StatusBadRequest, msg)
	}

	if len(env.Data) == 0 {
		return model.NewAPIError(http.StatusInternalServerError, model.MsgNoData)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &model.APIError{
			StatusCode: http.StatusInternalServerError,
			Message:    fmt.Sprintf("Unexpected response data from API: %v", err),
			Err:        err,
		}
	}
	return nil
}

// errorBody は2xx以外の応答ボディ。
type errorBody struct {
	Error   string
	Message string
	Details json.RawMessage
}

// parseErrorBody はエラー応答をパースする。JSONでない場合は {error: "Unknown error"} とみなす。
func parseErrorBody(body []byte) errorBody {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return errorBody{Error: model.MsgUnknownError}
	}
	return errorBody{
		Error:   jsonString(raw["error"]),
		Message: jsonString(raw["message"]),
		Details: raw["details"],
	}
}

// isValidationError は構造化バリデーションエラーの形（error="Validation error" かつ details あり）かを返す。
func (e errorBody) isValidationError() bool {
	if e.Error != model.MsgValidationPrefix {
		return false
	}
	d := strings.TrimSpace(string(e.Details))
	return d != "" && d != "null"
}

func (e errorBody) message(status int) string {
	return firstNonEmpty(e.Error, e.Message, fmt.Sprintf("HTTP %d", status))
}

// FlattenValidationDetails はフィールドごとにネストした `_errors` 配列のツリーを
// "path: message" をカンマで連結した1つの文字列に平坦化する。
// 例: {"field":{"_errors":["required"]},"nested":{"sub":{"_errors":["too short"]}}}
// → "field: required, nested.sub: too short"
func FlattenValidationDetails(raw json.RawMessage) string {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return ""
	}
	var parts []string
	flattenNode(nil, root, &parts)
	return strings.Join(parts, ", ")
}

func flattenNode(path []string, node map[string]json.RawMessage, out *[]string) {
	if rawErrs, ok := node["_errors"]; ok {
		var msgs []string
		if err := json.Unmarshal(rawErrs, &msgs); err == nil {
			for _, m := range msgs {
				if len(path) == 0 {
					*out = append(*out, m)
				} else {
					*out = append(*out, strings.Join(path, ".")+": "+m)
				}
			}
		}
	}

	keys := make([]string, 0, len(node))
	for k := range node {
		if k != "_errors" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		var child map[string]json.RawMessage
		if err := json.Unmarshal(node[k], &child); err != nil {
			continue
		}
		flattenNode(append(append([]string{}, path...), k), child, out)
	}
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
