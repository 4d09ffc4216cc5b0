package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestUpdateProfile(t *testing.T) {
	values := userRowValues(t, "u-1", "Asha", "a@b.co", "secret1", "advocate")
	db := &fakeDB{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{values: values}
		},
	}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/api/users/profile",
		strings.NewReader(`{"name":"","email":"a@b.co"}`), advocateCtx(), nil)
	s.handleUpdateProfile(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank name: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = authedRequest(http.MethodPut, "/api/users/profile",
		strings.NewReader(`{"name":"Asha N","email":"Asha@B.co"}`), advocateCtx(), nil)
	s.handleUpdateProfile(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(db.execSQL[0], "UPDATE users SET name") {
		t.Fatalf("exec %v", db.execSQL)
	}
	if got, _ := db.execArgs[0][1].(string); got != "asha@b.co" {
		t.Fatalf("email not normalized: %q", got)
	}
}

func TestUpdateProfileDuplicateEmail(t *testing.T) {
	db := &fakeDB{
		execFn: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: uniqueViolation}
		},
	}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/api/users/profile",
		strings.NewReader(`{"name":"Asha","email":"taken@b.co"}`), advocateCtx(), nil)
	s.handleUpdateProfile(rr, req)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestChangePassword(t *testing.T) {
	values := userRowValues(t, "u-1", "Asha", "a@b.co", "secret1", "advocate")
	db := &fakeDB{
		queryRowFn: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return fakeRow{values: values}
		},
	}
	s := newTestServer(t, db)

	rr := httptest.NewRecorder()
	req := authedRequest(http.MethodPut, "/api/users/password",
		strings.NewReader(`{"currentPassword":"wrong","newPassword":"secret2"}`), advocateCtx(), nil)
	s.handleChangePassword(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password: expected 401, got %d", rr.Code)
	}
	if len(db.execSQL) != 0 {
		t.Fatal("rejected change must not write")
	}

	rr = httptest.NewRecorder()
	req = authedRequest(http.MethodPut, "/api/users/password",
		strings.NewReader(`{"currentPassword":"secret1","newPassword":"short"}`), advocateCtx(), nil)
	s.handleChangePassword(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("short new password: expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	req = authedRequest(http.MethodPut, "/api/users/password",
		strings.NewReader(`{"currentPassword":"secret1","newPassword":"secret2"}`), advocateCtx(), nil)
	s.handleChangePassword(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(db.execSQL[0], "UPDATE users SET password_hash") {
		t.Fatalf("exec %v", db.execSQL)
	}
	if got, _ := db.execArgs[0][0].(string); got == "secret2" || got == "" {
		t.Fatal("new password stored unhashed")
	}
}
