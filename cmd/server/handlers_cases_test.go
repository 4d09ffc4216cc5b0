package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
)

func caseRowValues(id, title, owner string) []any {
	now := time.Now().UTC()
	return []any{id, title, "a description long enough", models.StatusPending, "", owner, now, now}
}

func TestListCasesScopesAdvocate(t *testing.T) {
	db := &fakeDB{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			if strings.Contains(sql, "FROM cases") {
				return &fakeRows{rows: [][]any{caseRowValues("c-1", "Estate dispute", "u-1")}}, nil
			}
			return &fakeRows{}, nil
		},
	}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	s.handleListCases(rr, authedRequest(http.MethodGet, "/api/cases", nil, advocateCtx(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(db.querySQL[0], "created_by = $1") {
		t.Fatalf("advocate list must be owner-scoped: %s", db.querySQL[0])
	}
	if db.queryArgs[0][0] != any("u-1") {
		t.Fatalf("owner arg %v", db.queryArgs[0])
	}

	var cases []models.Case
	if err := json.NewDecoder(rr.Body).Decode(&cases); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cases) != 1 || cases[0].ID != "c-1" {
		t.Fatalf("cases %+v", cases)
	}
	if cases[0].Documents == nil || cases[0].Comments == nil {
		t.Fatal("documents and comments must serialize as empty arrays")
	}
}

func TestListCasesParalegalSeesAll(t *testing.T) {
	db := &fakeDB{}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	s.handleListCases(rr, authedRequest(http.MethodGet, "/api/cases", nil, paralegalCtx(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if strings.Contains(db.querySQL[0], "created_by =") {
		t.Fatalf("paralegal list must not be owner-scoped: %s", db.querySQL[0])
	}
}

func TestListCasesFilters(t *testing.T) {
	db := &fakeDB{}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	s.handleListCases(rr, authedRequest(http.MethodGet, "/api/cases?status=bogus", nil, advocateCtx(), nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	s.handleListCases(rr, authedRequest(http.MethodGet, "/api/cases?status=Done&search=estate", nil, advocateCtx(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	sql := db.querySQL[len(db.querySQL)-1]
	if !strings.Contains(sql, "status = $2") || !strings.Contains(sql, "ILIKE $3") {
		t.Fatalf("filter sql %s", sql)
	}
}

func TestCreateCaseValidationAndDefaults(t *testing.T) {
	db := &fakeDB{}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/cases",
		strings.NewReader(`{"title":"ab","description":"too short"}`), advocateCtx(), nil)
	s.handleCreateCase(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if len(db.execSQL) != 0 {
		t.Fatal("invalid case must not write")
	}

	rr = httptest.NewRecorder()
	req = authedRequest(http.MethodPost, "/api/cases",
		strings.NewReader(`{"title":"Estate dispute","description":"probate challenge over the family estate"}`),
		advocateCtx(), nil)
	s.handleCreateCase(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var c models.Case
	if err := json.NewDecoder(rr.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Status != models.StatusPending {
		t.Fatalf("default status %q", c.Status)
	}
	if c.CreatedBy != "u-1" {
		t.Fatalf("createdBy %q", c.CreatedBy)
	}
	if !strings.Contains(db.execSQL[0], "INSERT INTO cases") {
		t.Fatalf("exec %v", db.execSQL)
	}
}

func TestUpdateCaseOutOfScopeIsNotFound(t *testing.T) {
	db := &fakeDB{
		execFn: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/api/cases/c-9",
		strings.NewReader(`{"title":"Estate dispute","description":"probate challenge over the family estate"}`),
		advocateCtx(), map[string]string{"id": "c-9"})
	s.handleUpdateCase(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if !strings.Contains(db.execSQL[0], "created_by = $7") {
		t.Fatalf("update must carry the scope clause: %s", db.execSQL[0])
	}
}

func TestDeleteCaseRemovesBlobObjects(t *testing.T) {
	db := &fakeDB{
		queryFn: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &fakeRows{rows: [][]any{{"cases/c-1/brief.pdf"}}}, nil
		},
		execFn: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("DELETE 1"), nil
		},
	}
	s := newTestServer(t, db)
	if err := s.Blob.Put(context.Background(), "cases/c-1/brief.pdf", []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodDelete, "/api/cases/c-1", nil, advocateCtx(), map[string]string{"id": "c-1"})
	s.handleDeleteCase(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if _, _, err := s.Blob.Get(context.Background(), "cases/c-1/brief.pdf"); err == nil {
		t.Fatal("document blob should be removed with the case")
	}
}

func multipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}

// pngHeader is a minimal valid PNG signature plus IHDR prefix, enough for
// content sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func visibleCaseDB() *fakeDB {
	return &fakeDB{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			if strings.Contains(sql, "SELECT 1 FROM cases") {
				return fakeRow{values: []any{1}}
			}
			return fakeRow{err: pgx.ErrNoRows}
		},
	}
}

func TestUploadDocument(t *testing.T) {
	db := visibleCaseDB()
	s := newTestServer(t, db)

	body, contentType := multipartBody(t, "../evidence photo.png", "image/png", pngHeader)
	req := authedRequest(http.MethodPost, "/api/cases/c-1/upload", body, advocateCtx(), map[string]string{"id": "c-1"})
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	s.handleUploadDocument(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]models.Document
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	doc := resp["document"]
	if doc.Filename != "evidence_photo.png" {
		t.Fatalf("filename %q", doc.Filename)
	}
	if doc.Mimetype != "image/png" {
		t.Fatalf("mimetype %q", doc.Mimetype)
	}
	if doc.URL != "/api/cases/c-1/documents/"+doc.ID {
		t.Fatalf("url %q", doc.URL)
	}
	wantKey := "cases/c-1/" + doc.ID + "/evidence_photo.png"
	if doc.StorageKey != wantKey {
		t.Fatalf("storage key %q, want %q", doc.StorageKey, wantKey)
	}
	stored, storedType, err := s.Blob.Get(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("blob get: %v", err)
	}
	if !bytes.Equal(stored, pngHeader) || storedType != "image/png" {
		t.Fatalf("stored %d bytes as %q", len(stored), storedType)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "INSERT INTO case_documents") {
		t.Fatalf("exec %v", db.execSQL)
	}
}

func TestUploadDocumentRepeatedFilenameKeepsBoth(t *testing.T) {
	s := newTestServer(t, visibleCaseDB())

	docs := make([]models.Document, 0, 2)
	for _, payload := range [][]byte{pngHeader, append(append([]byte(nil), pngHeader...), 0x01)} {
		body, contentType := multipartBody(t, "exhibit.png", "image/png", payload)
		req := authedRequest(http.MethodPost, "/api/cases/c-1/upload", body, advocateCtx(), map[string]string{"id": "c-1"})
		req.Header.Set("Content-Type", contentType)

		rr := httptest.NewRecorder()
		s.handleUploadDocument(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp map[string]models.Document
		if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		docs = append(docs, resp["document"])
	}

	if docs[0].StorageKey == docs[1].StorageKey {
		t.Fatalf("same filename must not share a key: %q", docs[0].StorageKey)
	}
	first, _, err := s.Blob.Get(context.Background(), docs[0].StorageKey)
	if err != nil {
		t.Fatalf("first upload gone: %v", err)
	}
	if !bytes.Equal(first, pngHeader) {
		t.Fatalf("first upload overwritten, got %d bytes", len(first))
	}
	if _, _, err := s.Blob.Get(context.Background(), docs[1].StorageKey); err != nil {
		t.Fatalf("second upload missing: %v", err)
	}
}

func TestUploadDocumentRejectsForeignMIME(t *testing.T) {
	s := newTestServer(t, visibleCaseDB())

	body, contentType := multipartBody(t, "notes.txt", "text/plain", []byte("plain text, not a document"))
	req := authedRequest(http.MethodPost, "/api/cases/c-1/upload", body, advocateCtx(), map[string]string{"id": "c-1"})
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	s.handleUploadDocument(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rr.Code)
	}
}

func TestUploadDocumentRejectsOversize(t *testing.T) {
	s := newTestServer(t, visibleCaseDB())
	s.MaxUploadBytes = 8

	payload := append(append([]byte(nil), pngHeader...), bytes.Repeat([]byte{0}, 32)...)
	body, contentType := multipartBody(t, "big.png", "image/png", payload)
	req := authedRequest(http.MethodPost, "/api/cases/c-1/upload", body, advocateCtx(), map[string]string{"id": "c-1"})
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	s.handleUploadDocument(rr, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestUploadDocumentInvisibleCase(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	body, contentType := multipartBody(t, "brief.pdf", "application/pdf", []byte("%PDF-1.4 minimal"))
	req := authedRequest(http.MethodPost, "/api/cases/c-9/upload", body, advocateCtx(), map[string]string{"id": "c-9"})
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	s.handleUploadDocument(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAddCommentBranches(t *testing.T) {
	db := &fakeDB{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			switch {
			case strings.Contains(sql, "SELECT 1 FROM cases"):
				return fakeRow{values: []any{1}}
			case strings.Contains(sql, "FROM cases"):
				return fakeRow{values: caseRowValues("c-1", "Estate dispute", "u-1")}
			}
			return fakeRow{err: pgx.ErrNoRows}
		},
	}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/api/cases/c-1/comments",
		strings.NewReader(`{"text":"   "}`), advocateCtx(), map[string]string{"id": "c-1"})
	s.handleAddComment(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank comment: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = authedRequest(http.MethodPost, "/api/cases/c-1/comments",
		strings.NewReader(`{"text":"`+strings.Repeat("x", models.MaxCommentLength+1)+`"}`),
		advocateCtx(), map[string]string{"id": "c-1"})
	s.handleAddComment(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("oversize comment: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = authedRequest(http.MethodPost, "/api/cases/c-1/comments",
		strings.NewReader(`{"text":"  filed the motion today  "}`), advocateCtx(), map[string]string{"id": "c-1"})
	s.handleAddComment(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(db.execSQL[0], "INSERT INTO case_comments") {
		t.Fatalf("exec %v", db.execSQL)
	}
	if got, _ := db.execArgs[0][3].(string); got != "filed the motion today" {
		t.Fatalf("comment text not trimmed: %q", got)
	}
}

func TestDownloadDocument(t *testing.T) {
	db := &fakeDB{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			switch {
			case strings.Contains(sql, "SELECT 1 FROM cases"):
				return fakeRow{values: []any{1}}
			case strings.Contains(sql, "FROM case_documents"):
				return fakeRow{values: []any{"cases/c-1/brief.pdf", "brief.pdf", "application/pdf"}}
			}
			return fakeRow{err: pgx.ErrNoRows}
		},
	}
	s := newTestServer(t, db)
	if err := s.Blob.Put(context.Background(), "cases/c-1/brief.pdf", []byte("%PDF-1.4"), "application/pdf"); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/api/cases/c-1/documents/d-1", nil, advocateCtx(),
		map[string]string{"id": "c-1", "docID": "d-1"})
	s.handleDownloadDocument(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("content type %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "brief.pdf") {
		t.Fatalf("disposition %q", cd)
	}
	if rr.Body.String() != "%PDF-1.4" {
		t.Fatalf("body %q", rr.Body.String())
	}
}
