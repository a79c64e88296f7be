package api

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Login handles POST /api/auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		badRequest(w, "username and password required")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), s.db, req.Username)
	if errors.Is(err, model.ErrNotFound) {
		jsonError(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid credentials")
		return
	}
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		logging.Warn(r.Context(), s.logger, "login failed",
			zap.String("username", req.Username),
			zap.String("remote", r.RemoteAddr),
		)
		jsonError(w, http.StatusUnauthorized, CodeUnauthenticated, "invalid credentials")
		return
	}

	token, claims, err := s.issuer.Generate(user, s.clock.Now())
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "user logged in",
		zap.String("user", user.Username),
		zap.String("role", string(user.Role)),
	)
	jsonResponse(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		User:      user,
	})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, CodeUnauthenticated, "not authenticated")
		return
	}

	if err := store.RevokeToken(r.Context(), s.db, claims.ID, claims.ExpiresAt.Time); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if n, err := store.PruneRevokedTokens(r.Context(), s.db, s.clock.Now()); err != nil {
		logging.Warn(r.Context(), s.logger, "pruning revoked tokens failed", zap.Error(err))
	} else if n > 0 {
		logging.Debug(r.Context(), s.logger, "pruned revoked tokens", zap.Int64("count", n))
	}

	logging.Info(r.Context(), s.logger, "user logged out", zap.String("user", claims.Username))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if claims == nil {
		jsonError(w, http.StatusUnauthorized, CodeUnauthenticated, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		badRequest(w, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := store.GetUser(r.Context(), s.db, claims.UserID)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		jsonError(w, http.StatusUnauthorized, CodeUnauthenticated, "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), s.db, claims.UserID, string(hash)); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "user changed own password", zap.String("user", claims.Username))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
