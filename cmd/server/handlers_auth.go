package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/password"
)

const uniqueViolation = "23505"

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

// decodeJSON parses a request body, translating the MaxBytesReader overflow
// into a 413.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := httpx.Decode(r, v); err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// authThrottled applies the per-IP fixed window to login and register. The
// key includes the action so a burst of failed logins does not block signups.
func (s *Server) authThrottled(w http.ResponseWriter, r *http.Request, action string) bool {
	if !s.RateLimitEnabled || s.RateLimiter == nil {
		return false
	}
	decision := s.RateLimiter.Allow(action+":"+clientIP(r), s.AuthAttemptsPerWin)
	if decision.Allowed {
		return false
	}
	s.Metrics.IncAuth("rate_limited")
	w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
	httpx.Error(w, http.StatusTooManyRequests, "too many attempts, try again later")
	return true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.authThrottled(w, r, "register") {
		return
	}
	var req registerRequest
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
	if len(req.Password) < models.MinPasswordLength {
		httpx.Error(w, http.StatusBadRequest, "password must be at least 6 characters")
		return
	}
	roleInput := req.Role
	if strings.TrimSpace(roleInput) == "" {
		roleInput = string(models.RoleAdvocate)
	}
	role, err := models.ParseRole(roleInput)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "role must be advocate or paralegal")
		return
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	now := time.Now().UTC()
	user := models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = s.DB.Exec(r.Context(), `
		INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			httpx.Error(w, http.StatusConflict, "email already registered")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	tokenStr, expiresAt, err := s.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Metrics.IncAuth("register")
	s.Audit.Record(r.Context(), user.ID, "register", "user", user.ID, user.Email)
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{Token: tokenStr, ExpiresAt: expiresAt, User: user})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.authThrottled(w, r, "login") {
		return
	}
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		httpx.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	var user models.User
	var role string
	err := s.DB.QueryRow(r.Context(), `
		SELECT id, name, email, password_hash, role, created_at, updated_at
		FROM users WHERE lower(email) = $1
	`, email).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.Metrics.IncAuth("login_failed")
			httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := password.Compare(user.PasswordHash, req.Password); err != nil {
		s.Metrics.IncAuth("login_failed")
		httpx.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	parsed, err := models.ParseRole(role)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	user.Role = parsed

	tokenStr, expiresAt, err := s.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Metrics.IncAuth("login_ok")
	s.Audit.Record(r.Context(), user.ID, "login", "user", user.ID, "")
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{Token: tokenStr, ExpiresAt: expiresAt, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	user, err := s.LoadUser(r.Context(), ac.UserID)
	if err != nil {
		httpx.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

// handleLogout exists for client symmetry; tokens are stateless, so the
// server only drops the cached user record.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	s.invalidateUser(r.Context(), ac.UserID)
	s.Audit.Record(r.Context(), ac.UserID, "logout", "user", ac.UserID, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
