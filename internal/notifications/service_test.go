package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"sloppy/internal/config"
	"sloppy/internal/content"
	"sloppy/internal/notifications"
)

type capturedRequest struct {
	title    string
	tags     string
	priority string
	click    string
	body     string
}

type ntfyRecorder struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
}

func (r *ntfyRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.requests = append(r.requests, capturedRequest{
		title:    req.Header.Get("Title"),
		tags:     req.Header.Get("Tags"),
		priority: req.Header.Get("Priority"),
		click:    req.Header.Get("Click"),
		body:     string(body),
	})
	status := r.status
	r.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte("upstream says no"))
}

func (r *ntfyRecorder) all() []capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedRequest(nil), r.requests...)
}

func newNtfy(t *testing.T) (*ntfyRecorder, *config.Config) {
	t.Helper()
	rec := &ntfyRecorder{}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL + "/sloppy"
	return rec, &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if svc.Enabled() {
		t.Fatal("expected noop service without a topic")
	}
	if err := svc.NotifyPublished(context.Background(), &content.Item{ID: "a"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	item := &content.Item{
		ID:         "item-1",
		Prompt:     "a  haiku\nabout rain",
		PublishRef: "https://example.invalid/p/1",
	}
	item.AddCost(content.KindDraft, 0.5)

	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
		expectClick    string
	}{
		{
			name:          "published",
			send:          func(s notifications.Service) error { return s.NotifyPublished(context.Background(), item) },
			expectTitle:   "Sloppy - Published",
			expectMessage: "Published: a haiku about rain\nhttps://example.invalid/p/1\nCost: $0.5000",
			expectTags:    "sloppy,publish,completed",
			expectClick:   "https://example.invalid/p/1",
		},
		{
			name: "render failed",
			send: func(s notifications.Service) error {
				return s.NotifyJobFailed(context.Background(), item, content.KindRender, "renderer timeout")
			},
			expectTitle:    "Sloppy - Render Failed",
			expectMessage:  "render failed for a haiku about rain (item-1): renderer timeout",
			expectTags:     "sloppy,render,error",
			expectPriority: "high",
		},
		{
			name: "failed without item",
			send: func(s notifications.Service) error {
				return s.NotifyJobFailed(context.Background(), nil, content.KindDraft, "")
			},
			expectTitle:    "Sloppy - Draft Failed",
			expectMessage:  "draft failed for unknown item: unknown error",
			expectTags:     "sloppy,draft,error",
			expectPriority: "high",
		},
		{
			name:           "test",
			send:           func(s notifications.Service) error { return s.TestNotification(context.Background()) },
			expectTitle:    "Sloppy - Test",
			expectMessage:  "Notification system test",
			expectTags:     "sloppy,test",
			expectPriority: "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, cfg := newNtfy(t)
			svc := notifications.NewService(cfg)
			if err := tt.send(svc); err != nil {
				t.Fatalf("send failed: %v", err)
			}
			reqs := rec.all()
			if len(reqs) != 1 {
				t.Fatalf("expected 1 request, got %d", len(reqs))
			}
			got := reqs[0]
			if got.title != tt.expectTitle {
				t.Errorf("title: got %q want %q", got.title, tt.expectTitle)
			}
			if got.body != tt.expectMessage {
				t.Errorf("message: got %q want %q", got.body, tt.expectMessage)
			}
			if got.tags != tt.expectTags {
				t.Errorf("tags: got %q want %q", got.tags, tt.expectTags)
			}
			if got.priority != tt.expectPriority {
				t.Errorf("priority: got %q want %q", got.priority, tt.expectPriority)
			}
			if got.click != tt.expectClick {
				t.Errorf("click: got %q want %q", got.click, tt.expectClick)
			}
		})
	}
}

func TestNtfyServiceReportsUpstreamErrors(t *testing.T) {
	rec, cfg := newNtfy(t)
	rec.status = http.StatusForbidden
	err := notifications.NewService(cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "403") || !strings.Contains(err.Error(), "upstream says no") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
