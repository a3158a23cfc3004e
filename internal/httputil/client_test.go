package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			BadRequest(w, "want JSON POST")
			return
		}
		var in map[string]int
		if err := DecodeJSON(w, r, &in); err != nil {
			BadRequest(w, err.Error())
			return
		}
		WriteJSONOK(w, map[string]int{"sum": in["a"] + in["b"]})
	}))
	defer srv.Close()

	var out struct {
		Sum int `json:"sum"`
	}
	err := PostJSON(context.Background(), srv.Client(), srv.URL, map[string]int{"a": 2, "b": 3}, &out)
	if err != nil {
		t.Fatalf("PostJSON failed: %v", err)
	}
	if out.Sum != 5 {
		t.Errorf("sum = %d, want 5", out.Sum)
	}

	err = PostJSON(context.Background(), srv.Client(), srv.URL, []int{1}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest || se.Message == "" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestMockHTTPClient(t *testing.T) {
	m := &MockHTTPClient{}
	m.AddResponse(http.StatusCreated, `{"written":3}`).
		AddResponse(http.StatusInternalServerError, `{"error":"disk full"}`).
		AddErrorResponse(errors.New("connection refused"))

	ctx := context.Background()
	var out struct {
		Written int `json:"written"`
	}
	if err := PostJSON(ctx, m, "http://x/api/observations", []int{1, 2, 3}, &out); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if out.Written != 3 {
		t.Errorf("written = %d", out.Written)
	}

	err := PostJSON(ctx, m, "http://x/api/observations", nil, nil)
	if err == nil || err.Error() != "http 500: disk full" {
		t.Errorf("second request error = %v", err)
	}

	if err := PostJSON(ctx, m, "http://x/api/observations", nil, nil); err == nil {
		t.Error("expected transport error")
	}

	// Queue drained: default 200.
	if err := PostJSON(ctx, m, "http://x/", nil, nil); err != nil {
		t.Errorf("default response failed: %v", err)
	}

	if m.RequestCount() != 4 {
		t.Errorf("RequestCount = %d, want 4", m.RequestCount())
	}
	var sent []int
	if err := json.Unmarshal(m.Bodies[0], &sent); err != nil || len(sent) != 3 {
		t.Errorf("recorded body = %s", m.Bodies[0])
	}
}
