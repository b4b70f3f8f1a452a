// Package handler contains HTTP handlers for the application.
//
// This file implements authentication handlers for user registration, login,
// and logout.
//
// Routes (registered in main so login and register can carry their own
// rate limits):
//   - POST /api/auth/register -> Register
//   - POST /api/auth/login    -> Login
//   - POST /api/auth/logout   -> Logout
//   - GET  /api/auth/me       -> Me
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/middleware"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/service"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	userService service.UserService
	logger      *slog.Logger
	isSecure    bool
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(userService service.UserService, logger *slog.Logger, isSecure bool) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// userResponse is the JSON shape for a user. The password hash never
// leaves the service layer.
type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name,omitempty"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	SubscriptionTier   string `json:"subscriptionTier"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:                 u.ID.String(),
		Email:              u.Email,
		Name:               u.Name,
		SubscriptionStatus: string(u.SubscriptionStatus),
		SubscriptionTier:   string(u.EffectiveTier()),
	}
}

// anonymousKey reads the visitor's anonymous cookie, if any. Passed to the
// user service so existing usage history merges into the account.
func anonymousKey(r *http.Request) string {
	if cookie, err := r.Cookie(domain.AnonymousCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Register creates a new account and starts a session.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.register", "Invalid request body"))
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		AnonymousKey: anonymousKey(r),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	// Log the new user in immediately
	result, err := h.userService.Login(r.Context(), req.Email, req.Password, "")
	if err != nil {
		// Account exists but auto-login failed; the client can log in manually
		h.logger.Error("auto-login after registration failed", "error", err, "user_id", user.ID)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"user": toUserResponse(user)})
		return
	}

	middleware.SetSessionCookie(w, result.Token, h.isSecure)
	// The anonymous identity was merged into the account; retire the cookie
	middleware.ClearAnonymousCookie(w, h.isSecure)

	writeJSON(w, http.StatusCreated, map[string]interface{}{"user": toUserResponse(result.User)})
}

// Login authenticates a user and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("auth.login", "Invalid request body"))
		return
	}

	result, err := h.userService.Login(r.Context(), req.Email, req.Password, anonymousKey(r))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	middleware.SetSessionCookie(w, result.Token, h.isSecure)
	middleware.ClearAnonymousCookie(w, h.isSecure)

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(result.User)})
}

// Logout ends the current session. Idempotent: logging out without a
// session still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		if err := h.userService.Logout(r.Context(), cookie.Value); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}

	middleware.ClearSessionCookie(w, h.isSecure)
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": toUserResponse(user)})
}
