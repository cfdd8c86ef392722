package catalyst

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func token(t *testing.T, secret []byte, iat time.Time) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(iat),
	}).SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestJWTHandler(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := NewJWTHandler(testSecret, ok)
	now := time.Now()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, testSecret, now), http.StatusOK},
		{"slightly ahead", "Bearer " + token(t, testSecret, now.Add(30*time.Second)), http.StatusOK},
		{"stale", "Bearer " + token(t, testSecret, now.Add(-2*time.Minute)), http.StatusUnauthorized},
		{"future", "Bearer " + token(t, testSecret, now.Add(2*time.Minute)), http.StatusUnauthorized},
		{"wrong secret", "Bearer " + token(t, []byte("another secret of thirty-two b.."), now), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestJWTHandler_missingIssuedAt(t *testing.T) {
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString(testSecret)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+s)
	rec := httptest.NewRecorder()
	NewJWTHandler(testSecret, http.NotFoundHandler()).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing issued-at")
}

func TestObtainJWTSecret(t *testing.T) {
	log := quietLogger()
	path := filepath.Join(t.TempDir(), "sub", JWTSecretFile)

	generated, err := ObtainJWTSecret(path, log)
	require.NoError(t, err)
	assert.Len(t, generated, 32)

	again, err := ObtainJWTSecret(path, log)
	require.NoError(t, err)
	assert.Equal(t, generated, again)

	bad := filepath.Join(t.TempDir(), "bad.hex")
	require.NoError(t, os.WriteFile(bad, []byte("0x1234"), 0o600))
	_, err = ObtainJWTSecret(bad, log)
	assert.ErrorIs(t, err, errInvalidJWTSecret)
}

func TestHandler_servesEngineNamespace(t *testing.T) {
	n := newTestNode(t, nil)
	h, srv, err := NewHandler(n.api, testSecret)
	require.NoError(t, err)
	defer srv.Stop()

	ts := httptest.NewServer(h)
	defer ts.Close()

	body := `{"jsonrpc":"2.0","id":1,"method":"engine_exchangeCapabilities","params":[["engine_fooV1"]]}`
	post := func(auth string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ts.URL, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if auth != "" {
			req.Header.Set("Authorization", "Bearer "+auth)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post("")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(token(t, testSecret, time.Now()))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out struct {
		Result []string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Contains(t, out.Result, CapBlobs)
	assert.Contains(t, out.Result, "engine_fooV1")
}
