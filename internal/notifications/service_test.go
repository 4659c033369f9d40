package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"distill/internal/config"
	"distill/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyQueueDrained(context.Background(), 3, time.Minute); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		publish        func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "auth required",
			publish: func(svc notifications.Service) error {
				return svc.NotifyAuthRequired(context.Background(), "session expired")
			},
			expectTitle:    "Distill - Login Required",
			expectMessage:  "Analysis tool needs to be logged in again: session expired",
			expectTags:     "distill,auth,alert",
			expectPriority: "high",
		},
		{
			name: "consent missing",
			publish: func(svc notifications.Service) error {
				return svc.NotifyConsentMissing(context.Background())
			},
			expectTitle:    "Distill - Consent Missing",
			expectMessage:  "Analysis is paused: consent is not granted in the configuration",
			expectTags:     "distill,consent,alert",
			expectPriority: "high",
		},
		{
			name: "batch failed",
			publish: func(svc notifications.Service) error {
				return svc.NotifyBatchFailed(context.Background(), "learning", 2)
			},
			expectTitle:   "Distill - Batch Failures",
			expectMessage: "2 learning item(s) failed permanently",
			expectTags:    "distill,batch,failed",
		},
		{
			name: "queue drained",
			publish: func(svc notifications.Service) error {
				return svc.NotifyQueueDrained(context.Background(), 5, 90*time.Second)
			},
			expectTitle:   "Distill - Queue Drained",
			expectMessage: "Processed 5 analysis item(s) in 1m30s",
			expectTags:    "distill,queue,completed",
		},
		{
			name: "suggestions pending",
			publish: func(svc notifications.Service) error {
				return svc.NotifySuggestionsPending(context.Background(), 4)
			},
			expectTitle:   "Distill - Suggestions Pending",
			expectMessage: "4 suggestion(s) awaiting review",
			expectTags:    "distill,suggestions,review",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.publish(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
