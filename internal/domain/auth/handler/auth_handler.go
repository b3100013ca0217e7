// Package handler exposes the authentication HTTP endpoints.
package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"github.com/hearthbooks/hearthbooks/internal/domain/auth/common"
	"github.com/hearthbooks/hearthbooks/internal/domain/auth/repository"
	"github.com/hearthbooks/hearthbooks/internal/domain/auth/service"
	"github.com/hearthbooks/hearthbooks/internal/httpx"
)

// SessionName is the cookie session carrying the browser login.
const SessionName = "hearthbooks_session"

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	svc          *service.AuthService
	sessions     sessions.Store
	oauthEnabled bool
	logger       *slog.Logger
}

// NewAuthHandler creates the auth handler. oauthEnabled gates the /auth/oauth
// routes; without configured provider credentials they 404.
func NewAuthHandler(svc *service.AuthService, store sessions.Store, oauthEnabled bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, sessions: store, oauthEnabled: oauthEnabled, logger: logger}
}

// Register mounts the auth routes on the router.
func (h *AuthHandler) Register(r *mux.Router) {
	r.HandleFunc("/auth/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	r.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/auth/verify-email", h.verifyEmail).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/auth/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/auth/reset-password", h.resetPassword).Methods(http.MethodPost)

	if h.oauthEnabled {
		r.HandleFunc("/auth/oauth/{provider}", h.oauthBegin).Methods(http.MethodGet)
		r.HandleFunc("/auth/oauth/{provider}/callback", h.oauthCallback).Methods(http.MethodGet)
	}
}

// RegisterProtected mounts the routes that require an authenticated caller.
func (h *AuthHandler) RegisterProtected(r *mux.Router) {
	r.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	r.HandleFunc("/auth/change-password", h.changePassword).Methods(http.MethodPost)
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Username      string `json:"username"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	AccessExpiresAt  int64  `json:"access_expires_at"`
	RefreshExpiresAt int64  `json:"refresh_expires_at"`
}

func toUserResponse(u *repository.User) userResponse {
	return userResponse{
		ID:            u.ID.String(),
		Email:         u.Email,
		Username:      u.Username,
		DisplayName:   u.DisplayName,
		EmailVerified: u.EmailVerifiedAt != nil,
	}
}

func toTokenResponse(t *service.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		AccessExpiresAt:  t.AccessExpiresAt.Unix(),
		RefreshExpiresAt: t.RefreshExpiresAt.Unix(),
	}
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Username    string `json:"username"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Username == "" {
		httpx.Error(w, http.StatusBadRequest, "email and username are required")
		return
	}

	result, err := h.svc.RegisterUser(r.Context(), service.RegisterParams{
		Email:       req.Email,
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Metadata:    sessionMetadata(r),
	})
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUserAlreadyExists):
			httpx.Error(w, http.StatusConflict, "an account with this email already exists")
		case errors.Is(err, service.ErrPasswordTooShort):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "registration failed", "error", err)
			httpx.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	h.setSessionUser(w, r, result.User.ID.String())
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"user":   toUserResponse(result.User),
		"tokens": toTokenResponse(result.Tokens),
	})
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.svc.Login(r.Context(), service.LoginParams{
		Email:    req.Email,
		Password: req.Password,
		Metadata: sessionMetadata(r),
	})
	if err != nil {
		// Unknown email and wrong password are indistinguishable on purpose
		switch {
		case errors.Is(err, common.ErrUserNotFound), errors.Is(err, common.ErrInvalidCredentials):
			httpx.Error(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, service.ErrAccountInactive):
			httpx.Error(w, http.StatusForbidden, "account is deactivated")
		default:
			h.logger.ErrorContext(r.Context(), "login failed", "error", err)
			httpx.Error(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	h.setSessionUser(w, r, result.User.ID.String())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":   toUserResponse(result.User),
		"tokens": toTokenResponse(result.Tokens),
	})
}

func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = httpx.Decode(r, &req)

	if req.RefreshToken != "" {
		if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
			h.logger.WarnContext(r.Context(), "logout failed", "error", err)
		}
	}

	if session, err := h.sessions.Get(r, SessionName); err == nil {
		session.Options.MaxAge = -1
		_ = session.Save(r, w)
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *AuthHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.svc.RefreshTokens(r.Context(), service.RefreshTokenParams{
		RefreshToken: req.RefreshToken,
		Metadata:     sessionMetadata(r),
	})
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"tokens": toTokenResponse(tokens)})
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		httpx.NotFound(w)
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"user": toUserResponse(user)})
}

func (h *AuthHandler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		var req struct {
			Token string `json:"token"`
		}
		_ = httpx.Decode(r, &req)
		token = req.Token
	}

	if _, err := h.svc.VerifyEmail(r.Context(), token); err != nil {
		httpx.Error(w, http.StatusBadRequest, "invalid or expired verification token")
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"status": "email verified"})
}

func (h *AuthHandler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		h.logger.ErrorContext(r.Context(), "password reset request failed", "error", err)
	}

	// Always the same answer, whether or not the email exists
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "if the email exists, a reset link was sent"})
}

func (h *AuthHandler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, common.ErrTokenNotFound):
			httpx.Error(w, http.StatusBadRequest, "invalid or expired reset token")
		case errors.Is(err, service.ErrPasswordTooShort):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "password reset failed", "error", err)
			httpx.Error(w, http.StatusInternalServerError, "password reset failed")
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *AuthHandler) changePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		httpx.Error(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := httpx.Decode(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, common.ErrInvalidCredentials):
			httpx.Error(w, http.StatusUnauthorized, "current password is incorrect")
		case errors.Is(err, service.ErrPasswordTooShort):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.ErrorContext(r.Context(), "password change failed", "error", err)
			httpx.Error(w, http.StatusInternalServerError, "password change failed")
		}
		return
	}

	httpx.JSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}

func (h *AuthHandler) oauthBegin(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	r = withGothicProvider(r, provider)

	// Finishes immediately when the provider session is already valid
	if gothUser, err := gothic.CompleteUserAuth(w, r); err == nil {
		h.finishOAuth(w, r, provider, &gothUser)
		return
	}

	gothic.BeginAuthHandler(w, r)
}

func (h *AuthHandler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	r = withGothicProvider(r, provider)

	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "oauth callback failed", "provider", provider, "error", err)
		httpx.Error(w, http.StatusUnauthorized, "oauth authentication failed")
		return
	}

	h.finishOAuth(w, r, provider, &gothUser)
}

func (h *AuthHandler) finishOAuth(w http.ResponseWriter, r *http.Request, provider string, gothUser *goth.User) {
	result, isNew, err := h.svc.LoginOrRegisterOAuth(r.Context(), provider, gothUser, sessionMetadata(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth login failed", "provider", provider, "error", err)
		httpx.Error(w, http.StatusInternalServerError, "oauth login failed")
		return
	}

	h.setSessionUser(w, r, result.User.ID.String())
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user":     toUserResponse(result.User),
		"tokens":   toTokenResponse(result.Tokens),
		"new_user": isNew,
	})
}

func (h *AuthHandler) setSessionUser(w http.ResponseWriter, r *http.Request, userID string) {
	session, err := h.sessions.Get(r, SessionName)
	if err != nil {
		// A corrupt cookie just means a fresh session
		session, _ = h.sessions.New(r, SessionName)
	}
	session.Values["user_id"] = userID
	if err := session.Save(r, w); err != nil {
		h.logger.WarnContext(r.Context(), "failed to save session cookie", "error", err)
	}
}

func sessionMetadata(r *http.Request) service.SessionMetadata {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}
	return service.SessionMetadata{
		UserAgent: r.UserAgent(),
		ClientIP:  ip,
	}
}

func withGothicProvider(r *http.Request, provider string) *http.Request {
	q := r.URL.Query()
	q.Set("provider", provider)
	r.URL.RawQuery = q.Encode()
	return r
}
