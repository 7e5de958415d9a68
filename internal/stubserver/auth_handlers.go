package stubserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/seokit/internal/middleware"
	"github.com/hitoshi/seokit/internal/model"
	"github.com/hitoshi/seokit/internal/validation"
)

// decodeBody はJSONボディをデコードする。失敗時は400を書き込みfalseを返す。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// writeValidation は入力検証の失敗を構造化バリデーションエラーとして書き込む。
func writeValidation(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		middleware.WriteValidationError(w, map[string]string{ve.Field: ve.Message})
		return
	}
	middleware.WriteError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) writeAuth(w http.ResponseWriter, status int, u *model.User) {
	token, err := s.issueToken(u)
	if err != nil {
		s.logger.Error("failed to issue token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	middleware.WriteData(w, status, model.AuthResponse{User: u, Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds model.Credentials
	if !decodeBody(w, r, &creds) {
		return
	}
	if err := validation.Struct(creds); err != nil {
		writeValidation(w, err)
		return
	}

	u, err := s.store.authenticate(creds.Email, creds.Password)
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.writeAuth(w, http.StatusOK, u)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.Registration
	if !decodeBody(w, r, &reg) {
		return
	}
	if err := validation.Struct(reg); err != nil {
		writeValidation(w, err)
		return
	}

	u, err := s.store.createUser(reg.Name, reg.Email, reg.Password, model.ProviderLocal, s.now())
	if errors.Is(err, errEmailTaken) {
		middleware.WriteError(w, http.StatusConflict, "Email already registered")
		return
	}
	if err != nil {
		s.logger.Error("failed to create user", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	s.logger.Info("user registered", slog.String("user_id", u.ID))
	s.writeAuth(w, http.StatusCreated, u)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleForgotPassword は登録有無を明かさず常に同じ応答を返す。
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validation.Struct(req); err != nil {
		writeValidation(w, err)
		return
	}
	if _, ok := s.store.userByEmail(req.Email); ok {
		s.logger.Info("password reset requested")
	}
	middleware.WriteData(w, http.StatusOK, messageResponse{Message: "If the email exists, a reset link has been sent"})
}

type googleURLResponse struct {
	URL string `json:"url"`
}

func (s *Server) handleGoogleURL(w http.ResponseWriter, r *http.Request) {
	q := url.Values{
		"client_id":     {"seokit-stub"},
		"redirect_uri":  {s.config.AllowedOrigin + "/auth/callback"},
		"response_type": {"code"},
		"scope":         {"openid email profile"},
	}
	middleware.WriteData(w, http.StatusOK, googleURLResponse{URL: "https://accounts.google.com/o/oauth2/v2/auth?" + q.Encode()})
}

type verifyResponse struct {
	User *model.User `json:"user"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	middleware.WriteData(w, http.StatusOK, verifyResponse{User: u})
}

type profileResponse struct {
	model.User
	GoogleLinked bool `json:"googleLinked"`
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(w, r)
	if !ok {
		return
	}
	middleware.WriteData(w, http.StatusOK, profileResponse{User: *u, GoogleLinked: u.Provider == model.ProviderGoogle})
}

// currentUser は認証済みユーザーを返す。見つからない場合は401を書き込む。
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	id, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	u, ok := s.store.user(id)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return u, true
}
