package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/password"
)

type profileUpdateRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type passwordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	user, err := s.LoadUser(r.Context(), ac.UserID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req profileUpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" {
		httpx.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !models.ValidEmail(email) {
		httpx.Error(w, http.StatusBadRequest, "invalid email address")
		return
	}

	_, err := s.DB.Exec(r.Context(), `
		UPDATE users SET name = $1, email = $2, updated_at = $3 WHERE id = $4
	`, name, email, time.Now().UTC(), ac.UserID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			httpx.Error(w, http.StatusConflict, "email already registered")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.invalidateUser(r.Context(), ac.UserID)

	user, err := s.loadUserByID(r.Context(), ac.UserID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Audit.Record(r.Context(), ac.UserID, "update_profile", "user", ac.UserID, email)
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req passwordChangeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.CurrentPassword == "" {
		httpx.Error(w, http.StatusBadRequest, "current password is required")
		return
	}
	if len(req.NewPassword) < models.MinPasswordLength {
		httpx.Error(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}

	user, err := s.loadUserByID(r.Context(), ac.UserID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := password.Compare(user.PasswordHash, req.CurrentPassword); err != nil {
		httpx.Error(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	hash, err := password.Hash(req.NewPassword)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if _, err := s.DB.Exec(r.Context(), `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, hash, time.Now().UTC(), ac.UserID); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.invalidateUser(r.Context(), ac.UserID)
	s.Audit.Record(r.Context(), ac.UserID, "change_password", "user", ac.UserID, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
