package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/loykin/vpnr/internal/history"
)

func TestOpenSearchSink_Send(t *testing.T) {
	var receivedBody []byte
	var receivedURL string
	var receivedMethod string
	var user, pass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedMethod = r.Method
		receivedURL = r.URL.Path
		user, pass, _ = r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		receivedBody = body
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"_id":"test","_index":"test-index","result":"created"}`))
	}))
	defer server.Close()

	sink := New(server.URL+"/", "test-index", WithBasicAuth("admin", "secret"))

	rec := history.Record{
		RunID:     "run-os",
		Name:      "office",
		PID:       12345,
		StartedAt: time.Now().Add(-time.Minute).UTC(),
		StoppedAt: time.Now().UTC(),
		Outcome:   "failure",
		ExitCode:  1,
	}
	event := history.Event{Type: history.EventStop, OccurredAt: time.Now().UTC(), Record: rec}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if receivedMethod != http.MethodPut {
		t.Errorf("Expected PUT method, got: %s", receivedMethod)
	}
	if receivedURL != "/test-index/_doc/run-os-stop" {
		t.Errorf("Expected URL path /test-index/_doc/run-os-stop, got: %s", receivedURL)
	}
	if user != "admin" || pass != "secret" {
		t.Errorf("basic auth: %q %q", user, pass)
	}

	var got map[string]any
	if err := json.Unmarshal(receivedBody, &got); err != nil {
		t.Fatalf("Failed to parse received JSON: %v", err)
	}
	if got["type"] != string(history.EventStop) {
		t.Errorf("Expected type %s, got: %v", history.EventStop, got["type"])
	}
	record, ok := got["record"].(map[string]any)
	if !ok {
		t.Fatalf("Expected record in event, got: %v", got)
	}
	if record["run_id"] != "run-os" || record["outcome"] != "failure" || record["exit_code"] != float64(1) {
		t.Errorf("unexpected record payload: %v", record)
	}
}

func TestOpenSearchSink_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer server.Close()

	sink := New(server.URL, "test-index")
	event := history.Event{Type: history.EventStart, OccurredAt: time.Now().UTC(), Record: history.Record{Name: "x"}}
	err := sink.Send(context.Background(), event)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "opensearch sink status 400") || !strings.Contains(err.Error(), "bad request") {
		t.Errorf("Expected status error message, got: %v", err)
	}
}

func TestOpenSearchSink_NoRunIDPosts(t *testing.T) {
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sink := New(server.URL, "idx")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStart}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if method != http.MethodPost || path != "/idx/_doc" {
		t.Fatalf("got %s %s", method, path)
	}
}

func TestOpenSearchSink_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	sink := New(addr, "idx")
	if err := sink.Send(context.Background(), history.Event{Type: history.EventStart}); err == nil {
		t.Fatal("Expected error for closed server")
	}
}
