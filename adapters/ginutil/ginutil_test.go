package ginutil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PaulFidika/wallkit/core"
	"github.com/gin-gonic/gin"
)

func TestStatusFor(t *testing.T) {
	cases := map[core.Kind]int{
		core.KindMissingInput:          http.StatusBadRequest,
		core.KindInvalidInput:          http.StatusBadRequest,
		core.KindUnauthenticated:       http.StatusUnauthorized,
		core.KindNotFound:              http.StatusNotFound,
		core.KindEntitlementRequired:   http.StatusForbidden,
		core.KindRateLimited:           http.StatusForbidden,
		core.KindInvalidGrant:          http.StatusForbidden,
		core.KindResolutionUnavailable: http.StatusUnprocessableEntity,
		core.KindUnexpected:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := StatusFor(kind); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestError_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Error(c, &core.Error{Kind: core.KindRateLimited, Code: "rate_limit_exceeded", Message: "slow down"})

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Error errorBody `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "rate_limit_exceeded" || body.Error.Message != "slow down" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestError_PlainErrorIsInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	Error(c, errors.New("boom"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
}

type denyAll struct{ err error }

func (d denyAll) AllowNamed(string, string) (bool, error) { return false, d.err }

func TestAllowNamed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if !AllowNamed(c, nil, RLDownloadURL) {
		t.Fatal("nil limiter should allow")
	}
	if AllowNamed(c, denyAll{}, RLDownloadURL) {
		t.Fatal("denying limiter should deny")
	}
	if !AllowNamed(c, denyAll{err: errors.New("redis down")}, RLDownloadURL) {
		t.Fatal("limiter errors should allow")
	}
}
