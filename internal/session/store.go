// Package session はクライアント側の認証セッション（トークン + ユーザー）の永続化を提供する。
// 書き込みはauth.Serviceのみが行い、apiclientは読み取りと401時の破棄のみを行う。
package session

import (
	"errors"
	"sync"

	"github.com/hitoshi/seokit/internal/model"
)

// ErrIncompleteSession はトークンとユーザーの片方だけを保存しようとした場合のエラー。
var ErrIncompleteSession = errors.New("session requires both token and user")

// Store はセッションの保存先を抽象化する。
// Loadは例外を発生させず、保存されていない場合はfalseを返す。
type Store interface {
	Load() (*model.Session, bool)
	Save(s *model.Session) error
	Clear() error
}

// MemoryStore はプロセス内メモリにセッションを保持するStore実装。
// テストや短命なプロセスで使用する。
type MemoryStore struct {
	mu      sync.RWMutex
	session *model.Session
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load は保持しているセッションのコピーを返す。
func (m *MemoryStore) Load() (*model.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.session.Valid() {
		return nil, false
	}
	return cloneSession(m.session), true
}

// Save はセッションを置き換える。
func (m *MemoryStore) Save(s *model.Session) error {
	if !s.Valid() {
		return ErrIncompleteSession
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = cloneSession(s)
	return nil
}

// Clear はセッションを破棄する。
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

func cloneSession(s *model.Session) *model.Session {
	u := *s.User
	return &model.Session{Token: s.Token, User: &u}
}

// TokenOf はStoreに保存されたトークンを返す。未保存の場合は空文字列。
func TokenOf(st Store) string {
	s, ok := st.Load()
	if !ok {
		return ""
	}
	return s.Token
}

var _ Store = (*MemoryStore)(nil)
