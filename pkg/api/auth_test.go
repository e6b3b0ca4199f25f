package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedHandler() (http.Handler, *string) {
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &seen
}

func TestIssueValidateRoundTrip(t *testing.T) {
	a := NewAuthenticator("test-secret")
	token, err := a.Issue("user-1", "team-1", time.Minute)
	require.NoError(t, err)

	claims, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "team-1", claims.TeamID)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	a := NewAuthenticator("test-secret")
	token, err := a.Issue("user-1", "team-1", -time.Minute)
	require.NoError(t, err)

	_, err = a.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	other := NewAuthenticator("other-secret")
	token, err := other.Issue("user-1", "team-1", time.Minute)
	require.NoError(t, err)

	a := NewAuthenticator("test-secret")
	_, err = a.Validate(token)
	assert.Error(t, err)
}

func TestMiddlewareRejectsMissingHeader(t *testing.T) {
	inner, _ := authedHandler()
	h := NewMiddleware(NewAuthenticator("test-secret"))(inner)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/evaluate", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestMiddlewareRejectsBadScheme(t *testing.T) {
	inner, _ := authedHandler()
	h := NewMiddleware(NewAuthenticator("test-secret"))(inner)

	req := httptest.NewRequest("POST", "/evaluate", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareFailsClosedWithoutAuthenticator(t *testing.T) {
	inner, _ := authedHandler()
	h := NewMiddleware(nil)(inner)

	req := httptest.NewRequest("POST", "/evaluate", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareInjectsSubject(t *testing.T) {
	a := NewAuthenticator("test-secret")
	inner, seen := authedHandler()
	h := NewMiddleware(a)(inner)

	token, err := a.Issue("user-1", "team-1", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/evaluate", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", *seen)
}

func TestMiddlewareAllowsPublicPaths(t *testing.T) {
	inner, seen := authedHandler()
	h := NewMiddleware(NewAuthenticator("test-secret"))(inner)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, *seen)
}
