package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sloppy/internal/content"
	"sloppy/internal/jobs"
	"sloppy/internal/services"
)

func TestRemoteQueueSubmit(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"job_id":"remote-7"}`))
	}))
	t.Cleanup(srv.Close)

	queue := jobs.NewRemoteQueue(srv.URL+"/", "http://daemon:7488", 2*time.Second)
	id, err := queue.Submit(context.Background(), jobs.Job{ItemID: "a", Kind: content.KindRender, Draft: "text"})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if id != "remote-7" {
		t.Fatalf("unexpected job id %q", id)
	}
	if got["item_id"] != "a" || got["kind"] != "render" || got["draft"] != "text" {
		t.Fatalf("unexpected payload: %v", got)
	}
	if got["callback_url"] != "http://daemon:7488/api/jobs/{job_id}/outcome" {
		t.Fatalf("unexpected callback url: %v", got["callback_url"])
	}
}

func TestRemoteQueueSubmitErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		marker error
	}{
		{"server error", http.StatusServiceUnavailable, `{"error":"busy"}`, services.ErrExternalTool},
		{"missing id", http.StatusOK, `{}`, services.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			queue := jobs.NewRemoteQueue(srv.URL, "", time.Second)
			_, err := queue.Submit(context.Background(), jobs.Job{ItemID: "a", Kind: content.KindDraft})
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}

	queue := jobs.NewRemoteQueue("http://127.0.0.1:1", "", 200*time.Millisecond)
	if _, err := queue.Submit(context.Background(), jobs.Job{Kind: content.KindDraft}); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error for unreachable executor, got %v", err)
	}
}
