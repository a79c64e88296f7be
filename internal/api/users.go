package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/prenos/internal/logging"
	"github.com/erazemk/prenos/internal/model"
	"github.com/erazemk/prenos/internal/store"
)

type createUserRequest struct {
	Username    string     `json:"username"`
	Password    string     `json:"password"`
	Role        model.Role `json:"role"`
	LocationIDs []int64    `json:"location_ids"`
}

type updateUserRequest struct {
	Role model.Role `json:"role"`
}

type userLocationsRequest struct {
	LocationIDs []int64 `json:"location_ids"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// ListUsers handles GET /api/users.
func (s *Server) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), s.db)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// CreateUser handles POST /api/users.
func (s *Server) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" || req.Role == "" {
		badRequest(w, "username, password, and role required")
		return
	}
	if !req.Role.Valid() {
		badRequest(w, "invalid role")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := s.checkLocations(r, req.LocationIDs); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	user, err := store.CreateUser(r.Context(), s.db, req.Username, string(hash), req.Role)
	if err != nil {
		jsonError(w, http.StatusConflict, CodeConflict, "username already exists")
		return
	}

	if len(req.LocationIDs) > 0 {
		if err := store.SetUserLocations(r.Context(), s.db, user.ID, req.LocationIDs); err != nil {
			writeError(w, r, s.logger, err)
			return
		}
		user.LocationIDs = req.LocationIDs
	}

	logging.Info(r.Context(), s.logger, "user created",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.String("new_user", user.Username),
		zap.String("role", string(user.Role)),
	)
	jsonResponse(w, http.StatusCreated, user)
}

// GetUser handles GET /api/users/{id}.
func (s *Server) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// UpdateUser handles PUT /api/users/{id}.
func (s *Server) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if !req.Role.Valid() {
		badRequest(w, "invalid role")
		return
	}

	if err := store.UpdateUser(r.Context(), s.db, id, req.Role); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	logging.Info(r.Context(), s.logger, "user role updated",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.String("target_user", user.Username),
		zap.String("new_role", string(req.Role)),
	)
	jsonResponse(w, http.StatusOK, user)
}

// SetUserLocations handles PUT /api/users/{id}/locations.
func (s *Server) SetUserLocations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}

	var req userLocationsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if _, err := store.GetUser(r.Context(), s.db, id); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := s.checkLocations(r, req.LocationIDs); err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	if err := store.SetUserLocations(r.Context(), s.db, id, req.LocationIDs); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}
	logging.Info(r.Context(), s.logger, "user locations updated",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.String("target_user", user.Username),
		zap.Int64s("location_ids", user.LocationIDs),
	)
	jsonResponse(w, http.StatusOK, user)
}

func (s *Server) checkLocations(r *http.Request, ids []int64) error {
	for _, id := range ids {
		if _, err := store.ActiveLocation(r.Context(), s.db, id); err != nil {
			return err
		}
	}
	return nil
}

// ResetPassword handles PUT /api/users/{id}/password.
func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req, false); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		badRequest(w, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), s.db, id, string(hash)); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "user password reset",
		zap.String("user", GetClaims(r.Context()).Username),
		zap.Int64("target_user_id", id),
	)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// DeleteUser handles DELETE /api/users/{id}.
func (s *Server) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid user id")
		return
	}

	claims := GetClaims(r.Context())
	if claims.UserID == id {
		badRequest(w, "cannot delete yourself")
		return
	}

	target, err := store.GetUser(r.Context(), s.db, id)
	targetName := fmt.Sprintf("id:%d", id)
	if err == nil {
		targetName = target.Username
	} else if !errors.Is(err, model.ErrNotFound) {
		writeError(w, r, s.logger, err)
		return
	}

	if err := store.DeleteUser(r.Context(), s.db, id); err != nil {
		writeError(w, r, s.logger, err)
		return
	}

	logging.Info(r.Context(), s.logger, "user deleted",
		zap.String("user", claims.Username),
		zap.String("deleted_user", targetName),
	)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
