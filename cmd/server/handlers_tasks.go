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

type taskWriteRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	DueDate     *time.Time `json:"dueDate"`
}

const taskColumns = `id, title, COALESCE(description, ''), status, due_date, created_by, created_at, updated_at`

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1 = 1`
	args := []any{}
	if clause, extra := scope.Clause(ac, "created_by", 1); clause != "" {
		query += clause
		args = append(args, extra...)
	}
	if status := strings.TrimSpace(r.URL.Query().Get("status")); status != "" {
		if !models.ValidWorkStatus(status) {
			httpx.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid status %q", status))
			return
		}
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.DB.Query(r.Context(), query, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req taskWriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	status := req.Status
	if status == "" {
		status = models.StatusPending
	}
	if err := models.ValidateTaskInput(req.Title, req.Description, status); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	t := models.Task{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Status:      status,
		DueDate:     req.DueDate,
		CreatedBy:   ac.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.DB.Exec(r.Context(), `
		INSERT INTO tasks (id, title, description, status, due_date, created_by, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	`, t.ID, t.Title, t.Description, t.Status, t.DueDate, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Events.Publish(stream.ResourceWrite("task", t.ID, "create", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "create", "task", t.ID, t.Title)
	httpx.WriteJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req taskWriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	status := req.Status
	if status == "" {
		status = models.StatusPending
	}
	if err := models.ValidateTaskInput(req.Title, req.Description, status); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	clause, extra := scope.Clause(ac, "created_by", 7)
	args := append([]any{
		strings.TrimSpace(req.Title),
		strings.TrimSpace(req.Description),
		status,
		req.DueDate,
		time.Now().UTC(),
		id,
	}, extra...)
	tag, err := s.DB.Exec(r.Context(), `
		UPDATE tasks SET title = $1, description = NULLIF($2, ''), status = $3,
			due_date = $4, updated_at = $5
		WHERE id = $6`+clause, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.Error(w, http.StatusNotFound, "task not found")
		return
	}

	readClause, readExtra := scope.Clause(ac, "created_by", 2)
	readArgs := append([]any{id}, readExtra...)
	var t models.Task
	err = s.DB.QueryRow(r.Context(), `SELECT `+taskColumns+` FROM tasks WHERE id = $1`+readClause, readArgs...).
		Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.DueDate, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Events.Publish(stream.ResourceWrite("task", id, "update", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "update", "task", id, t.Title)
	httpx.WriteJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	clause, extra := scope.Clause(ac, "created_by", 2)
	args := append([]any{id}, extra...)
	tag, err := s.DB.Exec(r.Context(), `DELETE FROM tasks WHERE id = $1`+clause, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.Error(w, http.StatusNotFound, "task not found")
		return
	}
	s.Events.Publish(stream.ResourceWrite("task", id, "delete", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "delete", "task", id, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}
