package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	l, err := New("info", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.WithField("k", "v").Info("hello")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json output, got %q", buf.String())
	}
	if line["msg"] != "hello" || line["k"] != "v" {
		t.Fatalf("unexpected line %v", line)
	}

	if _, err := New("loud", "text", nil); err == nil {
		t.Fatal("expected bad level to fail")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Fatal("expected bad format to fail")
	}
}

func TestMiddleware_RequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base, _ := New("debug", "json", &buf)

	r := gin.New()
	r.Use(Middleware(base))
	r.GET("/ping", func(c *gin.Context) {
		FromGin(c).Info("inside")
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "rid-1")
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "rid-1" {
		t.Fatalf("request id not echoed: %q", w.Header().Get("X-Request-ID"))
	}
	dec := json.NewDecoder(&buf)
	var first map[string]any
	if err := dec.Decode(&first); err != nil {
		t.Fatal(err)
	}
	if first["request_id"] != "rid-1" || first["path"] != "/ping" {
		t.Fatalf("handler log missing request fields: %v", first)
	}
}
