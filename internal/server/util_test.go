package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":           "",
		"/":          "",
		"//":         "",
		"vpn":        "/vpn",
		"/vpn/":      "/vpn",
		" vpn ":      "/vpn",
		"/vpn//v1/":  "/vpn/v1",
		"/vpn/../x/": "/x",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Errorf("sanitizeBase(%q)=%q want %q", in, got, want)
		}
	}
}

func TestWriteJSONHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	writeJSON(c, http.StatusTeapot, map[string]string{"text": "<b>"})

	if rec.Code != http.StatusTeapot {
		t.Fatalf("code: %d", rec.Code)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("cache-control: %q", rec.Header().Get("Cache-Control"))
	}
	if got := rec.Body.String(); got != "{\"text\":\"<b>\"}\n" {
		t.Fatalf("body: %q", got)
	}
}
