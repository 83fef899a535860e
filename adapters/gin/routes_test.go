package wallgin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	wallgin "github.com/PaulFidika/wallkit/adapters/gin"
	"github.com/PaulFidika/wallkit/catalog"
	"github.com/PaulFidika/wallkit/core"
	"github.com/PaulFidika/wallkit/entitlements"
	jwtkit "github.com/PaulFidika/wallkit/jwt"
	"github.com/PaulFidika/wallkit/logging"
	"github.com/PaulFidika/wallkit/ratelimit"
	memorylimiter "github.com/PaulFidika/wallkit/ratelimit/memory"
	memorystore "github.com/PaulFidika/wallkit/storage/memory"
	authtest "github.com/PaulFidika/wallkit/testing"
	"github.com/PaulFidika/wallkit/urlsign"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "platform-jwt-secret"

type harness struct {
	engine *gin.Engine
	store  *memorystore.Store
}

func newHarness(t *testing.T, throttle *memorylimiter.Limiter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(io.Discard)

	store := memorystore.NewStore()
	future := time.Now().Add(24 * time.Hour)
	store.PutProfile(entitlements.Entitlement{UserID: "premium-user", Tier: entitlements.TierPremium, ExpiresAt: &future})
	store.PutResource(catalog.Resource{ID: "w1", Title: "Aurora", Sources: map[catalog.Resolution]string{
		catalog.Standard: "https://cdn/aurora.jpg",
		catalog.Ultra:    "https://cdn/aurora-4k.jpg",
	}})
	store.PutResource(catalog.Resource{ID: "w2", Title: "Nebula", Premium: true, Sources: map[catalog.Resolution]string{
		catalog.Standard: "https://cdn/nebula.jpg",
	}})

	signer, err := urlsign.New([]byte("url-secret"), "https://api.example.com")
	require.NoError(t, err)
	svc, err := core.NewService(core.Deps{
		Entitlements: store,
		Resources:    store,
		Limiter:      ratelimit.NewGrantLimiter(ratelimit.EventWindow{Counter: store}, ratelimit.DefaultSettings(), store, log),
		Signer:       signer,
		Recorder:     recorder{store},
		Log:          log,
	})
	require.NoError(t, err)

	verifier, err := jwtkit.NewVerifier(context.Background(), jwtkit.AcceptConfig{HS256Secret: secret, HS256Audience: "authenticated"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(logging.Middleware(log))
	rt := wallgin.Routes{
		Service:  svc,
		Admin:    core.NewAdmin(store, ratelimit.DefaultSettings(), store),
		Verifier: verifier,
	}
	if throttle != nil {
		rt.Throttle = throttle
	}
	rt.Register(r)
	return &harness{engine: r, store: store}
}

type recorder struct{ sink core.DownloadSink }

func (r recorder) RecordDownload(ctx context.Context, ev core.DownloadEvent) {
	_ = r.sink.InsertDownload(ctx, ev)
	_ = r.sink.IncrementDownloads(ctx, ev.ResourceID)
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestDownloadURL_IssueAndRedeem(t *testing.T) {
	h := newHarness(t, nil)
	token := authtest.CreateHS256Token(secret, "free-user", "free@example.com", "")

	w := h.do(http.MethodPost, "/functions/v1/download-url", token, map[string]string{"wallpaper_id": "w1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			SignedURL     string `json:"signed_url"`
			DownloadURL   string `json:"download_url"`
			ExpiresAt     int64  `json:"expires_at"`
			ResourceTitle string `json:"resource_title"`
			Resolution    string `json:"resolution"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "standard", resp.Data.Resolution)
	assert.Equal(t, "Aurora", resp.Data.ResourceTitle)
	assert.Equal(t, "https://cdn/aurora.jpg", resp.Data.DownloadURL)
	assert.Greater(t, resp.Data.ExpiresAt, time.Now().Unix())
	assert.Len(t, h.store.Downloads(), 1)

	u, err := url.Parse(resp.Data.SignedURL)
	require.NoError(t, err)
	w = h.do(http.MethodGet, u.RequestURI(), "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://cdn/aurora.jpg", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	q := u.Query()
	q.Set("user", "someone-else")
	w = h.do(http.MethodGet, u.Path+"?"+q.Encode(), "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid_signature", decodeError(t, w).Error.Code)
}

func TestDownloadURL_Statuses(t *testing.T) {
	h := newHarness(t, nil)
	free := authtest.CreateHS256Token(secret, "free-user", "free@example.com", "")
	premium := authtest.CreateHS256Token(secret, "premium-user", "p@example.com", "")

	cases := []struct {
		name   string
		token  string
		body   map[string]string
		status int
		code   string
	}{
		{"missing id", free, map[string]string{}, http.StatusBadRequest, "missing_resource_id"},
		{"bad resolution", free, map[string]string{"resource_id": "w1", "resolution": "8k"}, http.StatusBadRequest, "invalid_resolution"},
		{"unknown wallpaper", free, map[string]string{"resource_id": "missing"}, http.StatusNotFound, "resource_not_found"},
		{"free ultra", free, map[string]string{"resource_id": "w1", "resolution": "ultra"}, http.StatusForbidden, "premium_resolution_required"},
		{"free premium wallpaper", free, map[string]string{"resource_id": "w2"}, http.StatusForbidden, "premium_required"},
		{"missing source", premium, map[string]string{"resource_id": "w2", "resolution": "ultra"}, http.StatusUnprocessableEntity, "resolution_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/v1/downloads/url", tc.token, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, decodeError(t, w).Error.Code)
		})
	}
	assert.Empty(t, h.store.Downloads())

	w := h.do(http.MethodPost, "/v1/downloads/url", premium, map[string]string{"resource_id": "w1", "resolution": "ultra"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestDownloadURL_EmptyBodyIsMissingResource(t *testing.T) {
	h := newHarness(t, nil)
	token := authtest.CreateHS256Token(secret, "free-user", "free@example.com", "")

	req := httptest.NewRequest(http.MethodPost, "/v1/downloads/url", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_resource_id", decodeError(t, w).Error.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/downloads/url", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, "invalid_request", decodeError(t, w).Error.Code)
}

func TestDownloadURL_RateLimited(t *testing.T) {
	h := newHarness(t, nil)
	token := authtest.CreateHS256Token(secret, "free-user", "free@example.com", "")
	for i := 0; i < ratelimit.DefaultLimit; i++ {
		w := h.do(http.MethodPost, "/v1/downloads/url", token, map[string]string{"resource_id": "w1"})
		require.Equal(t, http.StatusOK, w.Code, "grant %d: %s", i+1, w.Body.String())
	}
	w := h.do(http.MethodPost, "/v1/downloads/url", token, map[string]string{"resource_id": "w1"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "rate_limit_exceeded", decodeError(t, w).Error.Code)
	assert.Len(t, h.store.Downloads(), ratelimit.DefaultLimit)
}

func TestDownloadURL_Unauthenticated(t *testing.T) {
	h := newHarness(t, nil)

	w := h.do(http.MethodPost, "/v1/downloads/url", "", map[string]string{"resource_id": "w1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", decodeError(t, w).Error.Code)

	bad := authtest.CreateHS256Token("wrong-secret", "free-user", "free@example.com", "")
	w = h.do(http.MethodPost, "/v1/downloads/url", bad, map[string]string{"resource_id": "w1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, h.store.Downloads())
}

func TestThrottle(t *testing.T) {
	throttle := memorylimiter.New(map[string]memorylimiter.Limit{"default": {Limit: 2, Window: time.Minute}})
	h := newHarness(t, throttle)
	token := authtest.CreateHS256Token(secret, "free-user", "free@example.com", "")

	for i := 0; i < 2; i++ {
		w := h.do(http.MethodPost, "/v1/downloads/url", token, map[string]string{"resource_id": "w1"})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := h.do(http.MethodPost, "/v1/downloads/url", token, map[string]string{"resource_id": "w1"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, nil)
	admin := authtest.CreateHS256Token(secret, "admin-user", "admin@example.com", "admin")
	user := authtest.CreateHS256Token(secret, "free-user", "free@example.com", "")

	w := h.do(http.MethodGet, "/v1/admin/rate-limits/download", user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/v1/admin/rate-limits/download", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"limit":10`)
	assert.Contains(t, w.Body.String(), `"window_seconds":3600`)

	w = h.do(http.MethodPut, "/v1/admin/rate-limits/download", admin, map[string]any{"limit": 0, "window_seconds": 3600})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPut, "/v1/admin/rate-limits/download", admin, map[string]any{"limit": 1, "window_seconds": 3600})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// The new limit applies to the next grant.
	w = h.do(http.MethodPost, "/v1/downloads/url", user, map[string]string{"resource_id": "w1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodPost, "/v1/downloads/url", user, map[string]string{"resource_id": "w1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodGet, "/v1/admin/users/free-user/downloads?page=1&page_size=10", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []core.DownloadEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Data, 1)
}

func TestAdminUserDownloads_ReportsNormalizedPaging(t *testing.T) {
	h := newHarness(t, nil)
	admin := authtest.CreateHS256Token(secret, "admin-user", "admin@example.com", "admin")

	w := h.do(http.MethodGet, "/v1/admin/users/free-user/downloads?page=0&page_size=500", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Page)
	assert.Equal(t, 50, resp.PageSize)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
