package keyword

import (
	"bytes"
	"encoding/json"
	"time"
)

// HistoryItem は順位履歴1件。バックエンドのフィールド名の揺れはrawHistoryItemで吸収する。
type HistoryItem struct {
	Keyword   string    `json:"keyword"`
	Domain    string    `json:"domain"`
	Rank      int       `json:"rank"`
	Location  string    `json:"location,omitempty"`
	URL       string    `json:"url,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// rawHistory は履歴APIの応答。配列のみ、{data: [...]}、{history: [...]} のいずれも受け付ける。
type rawHistory struct {
	list []rawHistoryItem
}

func (r *rawHistory) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, &r.list)
	}

	var wrapped struct {
		Data    []rawHistoryItem `json:"data"`
		History []rawHistoryItem `json:"history"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	r.list = wrapped.Data
	if r.list == nil {
		r.list = wrapped.History
	}
	return nil
}

func (r rawHistory) items() []HistoryItem {
	out := make([]HistoryItem, 0, len(r.list))
	for _, raw := range r.list {
		out = append(out, raw.normalize())
	}
	return out
}

// rawHistoryItem はcamelCaseとsnake_caseの両方の形を受け取る。
type rawHistoryItem struct {
	Keyword string `json:"keyword"`
	Domain  string `json:"domain"`
	URL     string `json:"url"`

	Rank     *int `json:"rank"`
	Position *int `json:"position"`

	Location     string `json:"location"`
	SearchEngine string `json:"search_engine"`

	CheckedAt      *time.Time `json:"checkedAt"`
	CheckedAtSnake *time.Time `json:"checked_at"`
	Timestamp      *time.Time `json:"timestamp"`
	CreatedAt      *time.Time `json:"created_at"`
}

func (r rawHistoryItem) normalize() HistoryItem {
	item := HistoryItem{
		Keyword:  r.Keyword,
		Domain:   r.Domain,
		URL:      r.URL,
		Location: r.Location,
	}
	if item.Location == "" {
		item.Location = r.SearchEngine
	}

	switch {
	case r.Rank != nil:
		item.Rank = *r.Rank
	case r.Position != nil:
		item.Rank = *r.Position
	}

	for _, ts := range []*time.Time{r.CheckedAt, r.CheckedAtSnake, r.Timestamp, r.CreatedAt} {
		if ts != nil && !ts.IsZero() {
			item.CheckedAt = ts.UTC()
			break
		}
	}
	return item
}
