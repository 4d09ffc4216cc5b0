package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/reportjob"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/scope"
)

type reportCreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CaseID      string `json:"caseId"`
	Format      string `json:"format"`
}

type reportUpdateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req reportCreateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	job, err := s.Reports.Create(r.Context(), ac, reportjob.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		CaseID:      req.CaseID,
		Format:      req.Format,
	})
	if err != nil {
		if errors.Is(err, reportjob.ErrInvalidInput) {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Metrics.IncJobState(job.Status)
	s.Audit.Record(r.Context(), ac.UserID, "create", "report", job.ID, job.Title)
	httpx.WriteJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	jobs, err := s.Reports.List(r.Context(), ac)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	job, err := s.Reports.Get(r.Context(), ac, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, reportjob.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "report not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (s *Server) handleUpdateReport(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req reportUpdateRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	job, err := s.Reports.Update(r.Context(), ac, chi.URLParam(r, "id"), req.Title, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, reportjob.ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "report not found")
		case errors.Is(err, reportjob.ErrInvalidInput):
			httpx.Error(w, http.StatusBadRequest, err.Error())
		default:
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	s.Audit.Record(r.Context(), ac.UserID, "update", "report", job.ID, job.Title)
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Reports.Delete(r.Context(), ac, id); err != nil {
		if errors.Is(err, reportjob.ErrNotFound) {
			httpx.Error(w, http.StatusNotFound, "report not found")
			return
		}
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.Audit.Record(r.Context(), ac.UserID, "delete", "report", id, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDownloadReport(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	body, contentType, filename, err := s.Reports.Download(r.Context(), ac, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, reportjob.ErrNotFound):
			httpx.Error(w, http.StatusNotFound, "report not found")
		case errors.Is(err, reportjob.ErrNotReady):
			httpx.Error(w, http.StatusConflict, "report not ready")
		default:
			httpx.Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	s.Metrics.IncDownload()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleReportSummary aggregates job counts for the caller and case counts
// within the caller's scope.
func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	jobCounts, err := s.countByColumn(r, `SELECT status, COUNT(*) FROM reports WHERE created_by = $1 GROUP BY status`, ac.UserID)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	caseQuery := `SELECT status, COUNT(*) FROM cases WHERE 1 = 1`
	caseArgs := []any{}
	if clause, extra := scope.Clause(ac, "created_by", 1); clause != "" {
		caseQuery += clause
		caseArgs = append(caseArgs, extra...)
	}
	caseQuery += ` GROUP BY status`
	caseCounts, err := s.countByColumn(r, caseQuery, caseArgs...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]map[string]int{
		"reports": jobCounts,
		"cases":   caseCounts,
	})
}

// handleReportCharts returns per-day case creation counts for the last 30
// days, scope-filtered.
func (s *Server) handleReportCharts(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	since := time.Now().UTC().AddDate(0, 0, -30)
	query := `SELECT to_char(created_at, 'YYYY-MM-DD'), COUNT(*) FROM cases WHERE created_at >= $1`
	args := []any{since}
	if clause, extra := scope.Clause(ac, "created_by", 2); clause != "" {
		query += clause
		args = append(args, extra...)
	}
	query += ` GROUP BY 1 ORDER BY 1`

	rows, err := s.DB.Query(r.Context(), query, args...)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer rows.Close()

	type dayCount struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	}
	series := []dayCount{}
	for rows.Next() {
		var dc dayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			httpx.Error(w, http.StatusInternalServerError, "internal error")
			return
		}
		series = append(series, dc)
	}
	if err := rows.Err(); err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"casesPerDay": series})
}

func (s *Server) countByColumn(r *http.Request, query string, args ...any) (map[string]int, error) {
	rows, err := s.DB.Query(r.Context(), query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
