package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/blob"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/scope"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/stream"
)

var allowedUploadTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

type caseWriteRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assignedTo"`
}

type commentRequest struct {
	Text string `json:"text"`
}

const caseColumns = `id, title, description, status, COALESCE(assigned_to, ''), created_by, created_at, updated_at`

func scanCase(row pgx.Row) (models.Case, error) {
	var c models.Case
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &c.AssignedTo, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// loadCase fetches one case visible to the caller, with documents and
// comments attached. Out-of-scope rows read as not found.
func (s *Server) loadCase(ctx context.Context, ac scopeCtx, id string) (models.Case, error) {
	clause, extra := scope.Clause(ac, "created_by", 2)
	args := append([]any{id}, extra...)
	c, err := scanCase(s.DB.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`+clause, args...))
	if err != nil {
		return models.Case{}, err
	}
	cases := []*models.Case{&c}
	if err := s.attachCaseChildren(ctx, cases); err != nil {
		return models.Case{}, err
	}
	return c, nil
}

// attachCaseChildren fills Documents and Comments for a page of cases with
// two array-bound queries instead of one pair per case.
func (s *Server) attachCaseChildren(ctx context.Context, cases []*models.Case) error {
	byID := make(map[string]*models.Case, len(cases))
	ids := make([]string, 0, len(cases))
	for _, c := range cases {
		c.Documents = []models.Document{}
		c.Comments = []models.Comment{}
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	docRows, err := s.DB.Query(ctx, `
		SELECT id, case_id, filename, storage_key, mimetype, uploaded_at
		FROM case_documents WHERE case_id = ANY($1) ORDER BY uploaded_at
	`, ids)
	if err != nil {
		return err
	}
	defer docRows.Close()
	for docRows.Next() {
		var d models.Document
		var caseID string
		if err := docRows.Scan(&d.ID, &caseID, &d.Filename, &d.StorageKey, &d.Mimetype, &d.UploadedAt); err != nil {
			return err
		}
		d.URL = documentURL(caseID, d.ID)
		if c, ok := byID[caseID]; ok {
			c.Documents = append(c.Documents, d)
		}
	}
	if err := docRows.Err(); err != nil {
		return err
	}

	commentRows, err := s.DB.Query(ctx, `
		SELECT cc.id, cc.case_id, cc.author_id, COALESCE(u.name, ''), cc.text, cc.created_at
		FROM case_comments cc
		LEFT JOIN users u ON u.id = cc.author_id
		WHERE cc.case_id = ANY($1) ORDER BY cc.created_at
	`, ids)
	if err != nil {
		return err
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var cm models.Comment
		var caseID string
		if err := commentRows.Scan(&cm.ID, &caseID, &cm.AuthorID, &cm.AuthorName, &cm.Text, &cm.CreatedAt); err != nil {
			return err
		}
		if c, ok := byID[caseID]; ok {
			c.Comments = append(c.Comments, cm)
		}
	}
	return commentRows.Err()
}

func documentURL(caseID, docID string) string {
	return fmt.Sprintf("/api/cases/%s/documents/%s", caseID, docID)
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	query := `SELECT ` + caseColumns + ` FROM cases WHERE 1 = 1`
	args := []any{}
	if clause, extra := scope.Clause(ac, "created_by", len(args)+1); clause != "" {
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
	if search := strings.TrimSpace(r.URL.Query().Get("search")); search != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+search+"%")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.DB.Query(r.Context(), query, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	cases := []*models.Case{}
	for rows.Next() {
		var c models.Case
		if err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.Status, &c.AssignedTo, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		cases = append(cases, &c)
	}
	if err := rows.Err(); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := s.attachCaseChildren(r.Context(), cases); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]models.Case, len(cases))
	for i, c := range cases {
		out[i] = *c
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCase(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req caseWriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	status := req.Status
	if status == "" {
		status = models.StatusPending
	}
	if err := models.ValidateCaseInput(req.Title, req.Description, status); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	c := models.Case{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Status:      status,
		AssignedTo:  strings.TrimSpace(req.AssignedTo),
		CreatedBy:   ac.UserID,
		Documents:   []models.Document{},
		Comments:    []models.Comment{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.DB.Exec(r.Context(), `
		INSERT INTO cases (id, title, description, status, assigned_to, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
	`, c.ID, c.Title, c.Description, c.Status, c.AssignedTo, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Events.Publish(stream.ResourceWrite("case", c.ID, "create", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "create", "case", c.ID, c.Title)
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCase(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req caseWriteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	status := req.Status
	if status == "" {
		status = models.StatusPending
	}
	if err := models.ValidateCaseInput(req.Title, req.Description, status); err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	clause, extra := scope.Clause(ac, "created_by", 7)
	args := append([]any{
		strings.TrimSpace(req.Title),
		strings.TrimSpace(req.Description),
		status,
		strings.TrimSpace(req.AssignedTo),
		time.Now().UTC(),
		id,
	}, extra...)
	tag, err := s.DB.Exec(r.Context(), `
		UPDATE cases SET title = $1, description = $2, status = $3,
			assigned_to = NULLIF($4, ''), updated_at = $5
		WHERE id = $6`+clause, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.Error(w, http.StatusNotFound, "case not found")
		return
	}

	c, err := s.loadCase(r.Context(), ac, id)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Events.Publish(stream.ResourceWrite("case", id, "update", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "update", "case", id, c.Title)
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCase(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	// Collect blob keys before the row cascade removes document metadata.
	keys := []string{}
	clause, extra := scope.Clause(ac, "c.created_by", 2)
	keyArgs := append([]any{id}, extra...)
	rows, err := s.DB.Query(r.Context(), `
		SELECT d.storage_key FROM case_documents d
		JOIN cases c ON c.id = d.case_id
		WHERE d.case_id = $1`+clause, keyArgs...)
	if err == nil {
		for rows.Next() {
			var key string
			if rows.Scan(&key) == nil && key != "" {
				keys = append(keys, key)
			}
		}
		rows.Close()
	}

	delClause, delExtra := scope.Clause(ac, "created_by", 2)
	delArgs := append([]any{id}, delExtra...)
	tag, err := s.DB.Exec(r.Context(), `DELETE FROM cases WHERE id = $1`+delClause, delArgs...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.Error(w, http.StatusNotFound, "case not found")
		return
	}
	for _, key := range keys {
		if err := s.Blob.Delete(r.Context(), key); err != nil && !errors.Is(err, blob.ErrNotFound) {
			// Row is gone; orphaned blobs are cleanup work, not a failure.
			continue
		}
	}
	s.Events.Publish(stream.ResourceWrite("case", id, "delete", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "delete", "case", id, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

var filenameSafe = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename strips directories and anything outside a conservative
// character set so blob keys stay flat and predictable.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = filenameSafe.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "upload"
	}
	return name
}

// caseVisible reports whether the case exists within the caller's scope.
func (s *Server) caseVisible(r *http.Request, ac scopeCtx, id string) (bool, error) {
	clause, extra := scope.Clause(ac, "created_by", 2)
	args := append([]any{id}, extra...)
	var one int
	err := s.DB.QueryRow(r.Context(), `SELECT 1 FROM cases WHERE id = $1`+clause, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	visible, err := s.caseVisible(r, ac, id)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !visible {
		httpx.Error(w, http.StatusNotFound, "case not found")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "request body too large") {
			httpx.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		httpx.Error(w, http.StatusBadRequest, "file field required")
		return
	}
	defer file.Close()

	body, err := io.ReadAll(io.LimitReader(file, s.MaxUploadBytes+1))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "could not read upload")
		return
	}
	if int64(len(body)) > s.MaxUploadBytes {
		httpx.Error(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	// Sniffed type wins over the client-declared header.
	mimetype := strings.ToLower(strings.TrimSpace(strings.SplitN(http.DetectContentType(body), ";", 2)[0]))
	if _, allowed := allowedUploadTypes[mimetype]; !allowed {
		httpx.Error(w, http.StatusUnsupportedMediaType, "file type not allowed")
		return
	}

	doc := models.Document{
		ID:         uuid.NewString(),
		Filename:   sanitizeFilename(header.Filename),
		Mimetype:   mimetype,
		UploadedAt: time.Now().UTC(),
	}
	// The document id keeps the key unique when a filename repeats.
	doc.StorageKey = fmt.Sprintf("cases/%s/%s/%s", id, doc.ID, doc.Filename)
	doc.URL = documentURL(id, doc.ID)

	if err := s.Blob.Put(r.Context(), doc.StorageKey, body, doc.Mimetype); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	_, err = s.DB.Exec(r.Context(), `
		INSERT INTO case_documents (id, case_id, filename, storage_key, url, mimetype, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, id, doc.Filename, doc.StorageKey, doc.URL, doc.Mimetype, doc.UploadedAt)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Metrics.IncUpload()
	s.Events.Publish(stream.ResourceWrite("document", doc.ID, "create", ac.UserID))
	s.Audit.Record(r.Context(), ac.UserID, "upload", "document", doc.ID, doc.Filename)
	httpx.WriteJSON(w, http.StatusOK, map[string]models.Document{"document": doc})
}

func (s *Server) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	caseID := chi.URLParam(r, "id")
	docID := chi.URLParam(r, "docID")
	visible, err := s.caseVisible(r, ac, caseID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !visible {
		httpx.Error(w, http.StatusNotFound, "document not found")
		return
	}

	var key, filename, mimetype string
	err = s.DB.QueryRow(r.Context(), `
		SELECT storage_key, filename, mimetype FROM case_documents
		WHERE id = $1 AND case_id = $2
	`, docID, caseID).Scan(&key, &filename, &mimetype)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.Error(w, http.StatusNotFound, "document not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	body, storedType, err := s.Blob.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "document not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if storedType != "" {
		mimetype = storedType
	}
	s.Metrics.IncDownload()
	w.Header().Set("Content-Type", mimetype)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	var req commentRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	text, err := models.ValidateCommentText(req.Text)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	visible, err := s.caseVisible(r, ac, id)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !visible {
		httpx.Error(w, http.StatusNotFound, "case not found")
		return
	}

	_, err = s.DB.Exec(r.Context(), `
		INSERT INTO case_comments (id, case_id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), id, ac.UserID, text, time.Now().UTC())
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	c, err := s.loadCase(r.Context(), ac, id)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Audit.Record(r.Context(), ac.UserID, "comment", "case", id, "")
	httpx.WriteJSON(w, http.StatusOK, c)
}
