package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/termchat/termchat/internal/database"
	"github.com/termchat/termchat/internal/stats"
)

func Test_authMiddleware(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, &stats.MockStatsUpdater{}, nil)

	validToken, err := app.createJwtForSession(42, time.Hour)
	assert.NoError(t, err)

	expiredToken, err := app.createJwtForSession(42, -time.Hour)
	assert.NoError(t, err)

	tcases := []struct {
		name       string
		authHeader string
		wantUserId int
		wantCode   int
	}{
		{
			name:       "passes a valid bearer token",
			authHeader: "Bearer " + validToken,
			wantUserId: 42,
			wantCode:   http.StatusOK,
		},
		{
			name:     "rejects a missing header",
			wantCode: http.StatusUnauthorized,
		},
		{
			name:       "rejects a non-bearer header",
			authHeader: "Basic dXNlcjpwYXNz",
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "rejects a garbage token",
			authHeader: "Bearer not-a-token",
			wantCode:   http.StatusUnauthorized,
		},
		{
			name:       "rejects an expired token",
			authHeader: "Bearer " + expiredToken,
			wantCode:   http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var gotUserId int
			handler := app.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
				gotUserId, _ = UserId(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}

			rr := httptest.NewRecorder()
			handler(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.wantCode == http.StatusOK {
				assert.Equal(t, tc.wantUserId, gotUserId)
				assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
			}
		})
	}
}

func Test_authMiddleware_rejectsForeignSignature(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, &stats.MockStatsUpdater{}, nil)

	other := &TermchatApp{signingKey: []byte("some-other-key")}
	foreignToken, err := other.createJwtForSession(42, time.Hour)
	assert.NoError(t, err)

	handler := app.authMiddleware(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+foreignToken)

	rr := httptest.NewRecorder()
	handler(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func Test_errorHandler(t *testing.T) {
	app := newTestApp(t, &database.MockRepository{}, &stats.MockStatsUpdater{}, nil)

	handler := app.errorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/chats/public", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var apiErr ApiError
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr))
	assert.Equal(t, *NewInternalServerError(nil), apiErr, "panic details must not leak to the client")
}
