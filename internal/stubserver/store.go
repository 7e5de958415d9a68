package stubserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/seokit/internal/model"
)

var (
	errEmailTaken         = errors.New("email already registered")
	errInvalidCredentials = errors.New("invalid email or password")
)

// userRecord はユーザーとパスワードハッシュの組。
type userRecord struct {
	user         model.User
	passwordHash []byte
}

// rankRecord は順位チェック1件。JSONはsnake_caseの旧形式で返す。
type rankRecord struct {
	Keyword      string    `json:"keyword"`
	Domain       string    `json:"domain"`
	Position     int       `json:"position"`
	URL          string    `json:"url,omitempty"`
	SearchEngine string    `json:"search_engine"`
	CheckedAt    time.Time `json:"checked_at"`
	userID       string
}

// memoryStore はスタブのインメモリ状態。
type memoryStore struct {
	mu         sync.RWMutex
	bcryptCost int
	users      map[string]*userRecord // id -> record
	byEmail    map[string]string      // email -> id
	history    []rankRecord
}

func newMemoryStore(bcryptCost int) *memoryStore {
	return &memoryStore{
		bcryptCost: bcryptCost,
		users:      make(map[string]*userRecord),
		byEmail:    make(map[string]string),
	}
}

func (s *memoryStore) createUser(name, email, password string, provider model.Provider, now time.Time) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var hash []byte
	if password != "" {
		h, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
		if err != nil {
			return nil, err
		}
		hash = h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return nil, errEmailTaken
	}
	u := model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		CreatedAt: now.UTC(),
		Provider:  provider,
	}
	s.users[u.ID] = &userRecord{user: u, passwordHash: hash}
	s.byEmail[email] = u.ID
	return &u, nil
}

func (s *memoryStore) authenticate(email, password string) (*model.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var rec *userRecord
	if ok {
		rec = s.users[id]
	}
	s.mu.RUnlock()

	if rec == nil || rec.passwordHash == nil {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(rec.passwordHash, []byte(password)); err != nil {
		return nil, errInvalidCredentials
	}
	u := rec.user
	return &u, nil
}

func (s *memoryStore) user(id string) (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[id]
	if !ok {
		return nil, false
	}
	u := rec.user
	return &u, true
}

func (s *memoryStore) userByEmail(email string) (*model.User, bool) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s.user(id)
}

func (s *memoryStore) addHistory(userID string, records []rankRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.userID = userID
		s.history = append(s.history, r)
	}
}

// historyFor は新しい順に絞り込んだ履歴を返す。
func (s *memoryStore) historyFor(userID, domain, keyword string, since time.Time) []rankRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []rankRecord{}
	for _, r := range s.history {
		if r.userID != userID {
			continue
		}
		if domain != "" && r.Domain != domain {
			continue
		}
		if keyword != "" && r.Keyword != keyword {
			continue
		}
		if !since.IsZero() && r.CheckedAt.Before(since) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.After(out[j].CheckedAt) })
	return out
}

// deleteHistoryBefore はcutoffより古い履歴を削除し、件数を返す。userIDが空の場合は全ユーザーが対象。
func (s *memoryStore) deleteHistoryBefore(userID string, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	deleted := 0
	for _, r := range s.history {
		if (userID == "" || r.userID == userID) && r.CheckedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.history = kept
	return deleted
}
