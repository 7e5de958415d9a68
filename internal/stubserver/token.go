package stubserver

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/seokit/internal/model"
)

const tokenIssuer = "seokit-stub"

// userClaims はスタブが発行するトークンのクレーム。
// id/email/nameはクライアントが署名検証なしで表示に使う。
type userClaims struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(u *model.User) (string, error) {
	now := s.now()
	claims := userClaims{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Provider: string(u.Provider),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ResolveToken は署名と有効期限を検証し、存在するユーザーのIDを返す。
func (s *Server) ResolveToken(_ context.Context, token string) (string, bool) {
	claims := &userClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", false
	}
	if _, ok := s.store.user(claims.Subject); !ok {
		return "", false
	}
	return claims.Subject, true
}

// tokenLifetime はトークンの有効期限の既定値。
const tokenLifetime = 7 * 24 * time.Hour
