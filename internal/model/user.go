// Package model はSEOツール群のクライアントが扱うドメインモデルを定義する。
package model

import "time"

// Provider はユーザーアカウントの認証プロバイダーを表す。
type Provider string

const (
	// ProviderLocal はメールアドレスとパスワードによるアカウント。
	ProviderLocal Provider = "local"
	// ProviderGoogle はGoogle OAuthで作成されたアカウント。
	ProviderGoogle Provider = "google"
)

// User はサービス利用ユーザーを表す。
// クライアントからはプロフィール更新API経由でのみ変更される。
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Provider  Provider  `json:"provider"`
}

// Session はクライアント側の認証状態（トークンとユーザーの組）を表す。
// TokenとUserは常に同時に設定・破棄される。
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Valid はトークンとユーザーの両方が揃っているかを返す。
func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.User != nil
}

// Credentials はメールアドレスとパスワードによるログイン情報。
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Registration は新規アカウント登録の入力。
type Registration struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// AuthResponse はログイン・登録系エンドポイントのレスポンスデータ。
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}
