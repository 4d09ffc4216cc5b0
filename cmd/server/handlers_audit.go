package main

import (
	"net/http"
	"strconv"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/httpx"
	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
)

// The trail spans every user's activity, so it is paralegal-only.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	if ac.Role != models.RoleParalegal {
		httpx.Error(w, http.StatusForbidden, "paralegal role required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.Audit.Recent(r.Context(), limit)
	if err != nil {
		httpx.Error(w, http.StatusInternalServerError, "internal error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
