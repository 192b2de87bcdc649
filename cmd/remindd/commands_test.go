package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestCreateReminderRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /reminders": `{"id":"4f1c9a2e-0000-0000-0000-000000000000","title":"Dentist","at":"2026-03-01T09:00:00+01:00"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/reminders", map[string]any{
		"title":      "Dentist",
		"at":         "2026-03-01 09:00",
		"recurrence": "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var created reminderView
	if err := decodeJSON(resp, &created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.Title != "Dentist" {
		t.Errorf("title = %q", created.Title)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/reminders" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["at"] != "2026-03-01 09:00" {
		t.Errorf("body.at = %v", body["at"])
	}
}

func TestSnoozeRequest_PresetBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /reminders/abc/snooze": `{"id":"abc","title":"Dentist","snoozed":true,"snooze_until":"2026-03-01T09:15:00+01:00"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/reminders/abc/snooze", map[string]any{"preset": 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var snoozed reminderView
	if err := decodeJSON(resp, &snoozed); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !snoozed.Snoozed || snoozed.SnoozeUntil == "" {
		t.Errorf("response = %+v", snoozed)
	}

	var body map[string]any
	json.Unmarshal([]byte(ts.requests[0].Body), &body)
	// Preset index 0 must survive encoding; a missing key means the zero
	// value was dropped.
	if v, ok := body["preset"]; !ok || v.(float64) != 0 {
		t.Errorf("body.preset = %v (present=%v)", v, ok)
	}
}

func TestErrorResponseSurfacesMessage(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.get(ctx, "/reminders/nope")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error from 404 response")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v", err)
	}
}

func TestImportRequest_RawBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /import": `{"accepted":2,"skipped":1}`,
	})

	client := ts.client()
	data := []byte("title,datetime\nDentist,2026-03-01 09:00\n")
	resp, err := client.postRaw(ctx, "/import", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]int
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["accepted"] != 2 || result["skipped"] != 1 {
		t.Errorf("result = %v", result)
	}

	r := ts.requests[0]
	if r.Body != string(data) {
		t.Errorf("raw body was re-encoded: %q", r.Body)
	}
}

func TestTokenlessClientOmitsAuthHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /reminders": `[]`,
	})

	client := ts.client()
	client.token = ""
	if _, err := client.get(ctx, "/reminders"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[0].Auth != "" {
		t.Errorf("auth header sent without token: %q", ts.requests[0].Auth)
	}
}
