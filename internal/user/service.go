// Package user はログイン中ユーザーのプロフィール、設定、アカウント操作のAPIを提供する。
package user

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/seokit/internal/apiclient"
	"github.com/hitoshi/seokit/internal/googledomains"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/session"
	"github.com/hitoshi/seokit/internal/validation"
)

// Profile はプロフィール。
type Profile struct {
	model.User
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Bio          string `json:"bio,omitempty"`
	Website      string `json:"website,omitempty"`
	Company      string `json:"company,omitempty"`
	GoogleLinked bool   `json:"googleLinked"`
}

// ProfileUpdate はプロフィール更新の入力。空のフィールドは送信しない。
type ProfileUpdate struct {
	Name    string `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Bio     string `json:"bio,omitempty" validate:"omitempty,max=500"`
	Website string `json:"website,omitempty" validate:"omitempty,url"`
	Company string `json:"company,omitempty" validate:"omitempty,max=100"`
}

// PasswordChange はパスワード変更の入力。
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,nefield=CurrentPassword"`
}

// Preferences はユーザー設定。
type Preferences struct {
	EmailNotifications bool   `json:"emailNotifications"`
	WeeklyReport       bool   `json:"weeklyReport"`
	Language           string `json:"language,omitempty" validate:"omitempty,oneof=en ja es de fr"`
	Timezone           string `json:"timezone,omitempty"`
	DefaultLocation    string `json:"defaultLocation,omitempty"`
}

// UsageStats は利用状況。
type UsageStats struct {
	TotalAnalyses      int       `json:"totalAnalyses"`
	ReportsSaved       int       `json:"reportsSaved"`
	KeywordsTracked    int       `json:"keywordsTracked"`
	CompetitorAnalyses int       `json:"competitorAnalyses"`
	MemberSince        time.Time `json:"memberSince"`
}

// Activity は操作履歴1件。
type Activity struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Logouter はアカウント削除後にセッションを破棄する。auth.Serviceが実装する。
type Logouter interface {
	Logout()
}

// Service はユーザーAPIのクライアント。
type Service struct {
	api     apiclient.Doer
	store   session.Store
	avatars *AvatarCache
	logout  Logouter
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api apiclient.Doer, store session.Store, avatars *AvatarCache, logout Logouter, logger *slog.Logger) *Service {
	if avatars == nil {
		avatars = NewAvatarCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, store: store, avatars: avatars, logout: logout, logger: logger}
}

// Profile はプロフィールを取得する。アバターURLはキャッシュにも保存する。
func (s *Service) Profile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/user/profile"}, &p); err != nil {
		return nil, err
	}
	if p.AvatarURL != "" {
		s.avatars.Set(p.ID, p.AvatarURL)
	}
	return &p, nil
}

// UpdateProfile はプロフィールを更新し、保存済みセッションのユーザー名も置き換える。
func (s *Service) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*Profile, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	if upd.Website != "" {
		upd.Website = validation.NormalizeURL(upd.Website)
	}
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}

	var p Profile
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodPut, Path: "/api/user/profile", Body: upd}, &p); err != nil {
		return nil, err
	}
	s.refreshSessionUser(&p.User)
	return &p, nil
}

// refreshSessionUser はセッションのユーザーをサーバーの値で置き換える。トークンは維持する。
func (s *Service) refreshSessionUser(u *model.User) {
	if s.store == nil || u == nil || u.ID == "" {
		return
	}
	sess, ok := s.store.Load()
	if !ok || sess.User.ID != u.ID {
		return
	}
	updated := *u
	if updated.Email == "" {
		updated.Email = sess.User.Email
	}
	if updated.Provider == "" {
		updated.Provider = sess.User.Provider
	}
	if err := s.store.Save(&model.Session{Token: sess.Token, User: &updated}); err != nil {
		s.logger.Warn("failed to refresh session user",
			slog.String("error", err.Error()),
		)
	}
}

// ChangePassword はパスワードを変更する。
func (s *Service) ChangePassword(ctx context.Context, pc PasswordChange) error {
	if err := validation.Struct(pc); err != nil {
		return err
	}
	return s.api.Do(ctx, &apiclient.Request{Method: http.MethodPut, Path: "/api/user/password", Body: pc}, nil)
}

// Preferences はユーザー設定を取得する。
func (s *Service) Preferences(ctx context.Context) (*Preferences, error) {
	var p Preferences
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/user/preferences"}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePreferences はユーザー設定を更新する。
func (s *Service) UpdatePreferences(ctx context.Context, p Preferences) (*Preferences, error) {
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if p.DefaultLocation != "" && !googledomains.IsValidGoogleDomain(p.DefaultLocation) {
		return nil, model.NewValidationError("defaultLocation", "Invalid search location: %s", p.DefaultLocation)
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return nil, model.NewValidationError("timezone", "Invalid timezone: %s", p.Timezone)
		}
	}

	var out Preferences
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodPut, Path: "/api/user/preferences", Body: p}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats は利用状況を取得する。
func (s *Service) Stats(ctx context.Context) (*UsageStats, error) {
	var st UsageStats
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/user/stats"}, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Activity は最近の操作履歴を取得する。
func (s *Service) Activity(ctx context.Context, limit int) ([]Activity, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var items []Activity
	if err := s.api.Do(ctx, &apiclient.Request{Method: http.MethodGet, Path: "/api/user/activity", Query: q}, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []Activity{}
	}
	return items, nil
}

var avatarExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

type avatarResponse struct {
	AvatarURL string `json:"avatarUrl"`
}

// UploadAvatar はアバター画像をmultipart/form-dataでアップロードし、新しいURLを返す。
func (s *Service) UploadAvatar(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !avatarExtensions[ext] {
		return "", model.NewValidationError("avatar", "Avatar must be a PNG, JPEG, GIF or WebP image")
	}

	var resp avatarResponse
	err := s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/user/avatar",
		Multipart: &apiclient.Multipart{
			FileField: "avatar",
			FileName:  filepath.Base(filename),
			File:      r,
		},
	}, &resp)
	if err != nil {
		return "", err
	}

	if sess, ok := s.storeSession(); ok {
		s.avatars.Set(sess.User.ID, resp.AvatarURL)
	}
	return resp.AvatarURL, nil
}

// AvatarURL はキャッシュ済みのアバターURLを返す。
func (s *Service) AvatarURL() (string, bool) {
	sess, ok := s.storeSession()
	if !ok {
		return "", false
	}
	return s.avatars.Get(sess.User.ID)
}

type deleteAccountRequest struct {
	Password     string `json:"password,omitempty"`
	Confirmation string `json:"confirmation"`
}

// DeleteConfirmation はアカウント削除時に送る確認文字列。
const DeleteConfirmation = "DELETE"

// DeleteAccount はアカウントを削除し、サーバーが受け付けた後にログアウトする。
// Googleログインのみのアカウントではpasswordは空でよい。
func (s *Service) DeleteAccount(ctx context.Context, password string) error {
	err := s.api.Do(ctx, &apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/api/user/account",
		Body:   deleteAccountRequest{Password: password, Confirmation: DeleteConfirmation},
	}, nil)
	if err != nil {
		return err
	}

	s.logger.Info("account deleted")
	if s.logout != nil {
		s.logout.Logout()
	}
	return nil
}

func (s *Service) storeSession() (*model.Session, bool) {
	if s.store == nil {
		return nil, false
	}
	return s.store.Load()
}
