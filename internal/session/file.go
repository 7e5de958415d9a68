package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitoshi/seokit/internal/model"
)

// FileStore はセッションをJSONファイルに保存するStore実装。
// CLIのように再起動をまたいでログイン状態を維持する用途で使う。
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// fileRecord はファイルに書き出す形式。有効期限はクッキーと同じ7日間。
type fileRecord struct {
	Token     string      `json:"token"`
	User      *model.User `json:"user"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// NewFileStore は指定パスを使うFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path は保存先のファイルパスを返す。
func (f *FileStore) Path() string {
	return f.path
}

// Load はファイルからセッションを読み込む。期限切れや破損は未ログイン扱い。
func (f *FileStore) Load() (*model.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, false
	}

	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	if !rec.ExpiresAt.IsZero() && f.now().After(rec.ExpiresAt) {
		return nil, false
	}

	s := &model.Session{Token: rec.Token, User: rec.User}
	if !s.Valid() {
		return nil, false
	}
	return s, true
}

// Save はセッションをファイルに書き込む。パーミッションは0600。
func (f *FileStore) Save(s *model.Session) error {
	if !s.Valid() {
		return ErrIncompleteSession
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(fileRecord{
		Token:     s.Token,
		User:      s.User,
		ExpiresAt: f.now().Add(CookieMaxAge),
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// 書き込み途中のファイルを読まれないよう一時ファイル経由で置き換える
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// Clear はセッションファイルを削除する。存在しない場合は何もしない。
func (f *FileStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
