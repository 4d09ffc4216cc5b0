package token

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dm-cr7/Legal-justice-dashboard/pkg/models"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)

	tok, expiresAt, err := svc.Issue("u-123", models.RoleAdvocate)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, role, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-123", userID)
	assert.Equal(t, models.RoleAdvocate, role)
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("  ", time.Hour)
	require.Error(t, err)
}

func TestDefaultTTLApplied(t *testing.T) {
	svc, err := NewService("s", 0)
	require.NoError(t, err)
	_, expiresAt, err := svc.Issue("u", models.RoleParalegal)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), expiresAt, 5*time.Second)
}

func TestVerifyExpired(t *testing.T) {
	svc, err := NewService("test-secret", -time.Minute)
	require.NoError(t, err)
	// ttl<=0 falls back to the default, so build an already-expired service
	// by issuing with a short-lived sibling instead.
	short := &Service{secret: []byte("test-secret"), ttl: -time.Minute}
	tok, _, err := short.Issue("u-123", models.RoleAdvocate)
	require.NoError(t, err)

	_, _, err = svc.Verify(tok)
	assert.True(t, errors.Is(err, ErrExpired), "want ErrExpired, got %v", err)
}

func TestVerifyWrongKey(t *testing.T) {
	issuer, _ := NewService("key-a", time.Hour)
	verifier, _ := NewService("key-b", time.Hour)
	tok, _, err := issuer.Issue("u-123", models.RoleAdvocate)
	require.NoError(t, err)

	_, _, err = verifier.Verify(tok)
	assert.True(t, errors.Is(err, ErrSignature), "want ErrSignature, got %v", err)
}

func TestVerifyGarbage(t *testing.T) {
	svc, _ := NewService("test-secret", time.Hour)
	for _, raw := range []string{"", "not-a-token", "a.b", "a.b.c.d", "!!!.@@@.###"} {
		_, _, err := svc.Verify(raw)
		assert.True(t, errors.Is(err, ErrMalformed), "input %q: want ErrMalformed, got %v", raw, err)
	}
}

func TestVerifyUnknownRoleRejected(t *testing.T) {
	svc, _ := NewService("test-secret", time.Hour)
	tok, _, err := svc.Issue("u-123", models.Role("superuser"))
	require.NoError(t, err)
	_, _, err = svc.Verify(tok)
	assert.True(t, errors.Is(err, ErrMalformed), "want ErrMalformed, got %v", err)
}
