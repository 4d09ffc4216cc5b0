package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/scope"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/stream"
)

type clientWriteRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Notes   string `json:"notes"`
}

const clientColumns = `id, name, contact, COALESCE(notes, ''), created_by, created_at, updated_at`

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	query := `SELECT ` + clientColumns + ` FROM clients WHERE 1 = 1`
	args := []any{}
	if clause, extra := scope.Clause(ac, "created_by", 1); clause != "" {
		query += clause
		args = append(args, extra...)
	}
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		query += fmt.Sprintf(" AND (name ILIKE $%d OR contact ILIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.DB.Query(r.Context(), query, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, clients)
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req clientWriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateClientInput(req.Name, req.Contact); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	c := models.Client{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Contact:   strings.TrimSpace(req.Contact),
		Notes:     strings.TrimSpace(req.Notes),
		CreatedBy: ac.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.DB.Exec(r.Context(), `
		INSERT INTO clients (id, name, contact, notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`, c.ID, c.Name, c.Contact, c.Notes, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Events.Publish(stream.ResourceWrite("client", c.ID, "create", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "create", "client", c.ID, c.Name)
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req clientWriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := models.ValidateClientInput(req.Name, req.Contact); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	clause, extra := scope.Clause(ac, "created_by", 6)
	args := append([]any{
		strings.TrimSpace(req.Name),
		strings.TrimSpace(req.Contact),
		strings.TrimSpace(req.Notes),
		time.Now().UTC(),
		id,
	}, extra...)
	tag, err := s.DB.Exec(r.Context(), `
		UPDATE clients SET name = $1, contact = $2, notes = NULLIF($3, ''), updated_at = $4
		WHERE id = $5`+clause, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.Error(w, http.StatusNotFound, "client not found")
		return
	}

	readClause, readExtra := scope.Clause(ac, "created_by", 2)
	readArgs := append([]any{id}, readExtra...)
	var c models.Client
	err = s.DB.QueryRow(r.Context(), `SELECT `+clientColumns+` FROM clients WHERE id = $1`+readClause, readArgs...).
		Scan(&c.ID, &c.Name, &c.Contact, &c.Notes, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Events.Publish(stream.ResourceWrite("client", id, "update", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "update", "client", id, c.Name)
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	clause, extra := scope.Clause(ac, "created_by", 2)
	args := append([]any{id}, extra...)
	tag, err := s.DB.Exec(r.Context(), `DELETE FROM clients WHERE id = $1`+clause, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.Error(w, http.StatusNotFound, "client not found")
		return
	}
	s.Events.Publish(stream.ResourceWrite("client", id, "delete", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "delete", "client", id, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
