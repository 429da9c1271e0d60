package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-backend/internal/jobdomain"
	"github.com/yungbote/neurobridge-backend/internal/pkg/logger"
)

func testNotifierLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func TestNotifyDocumentComplete_SucceedsOnFirstAttempt(t *testing.T) {
	var received DocumentCompletePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(testNotifierLogger(t), Config{DocumentCompleteURL: srv.URL, MaxRetries: 3, Timeout: time.Second})
	err := n.NotifyDocumentComplete(context.Background(), "job-1", "book.pdf", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.JobID != "job-1" || received.Filename != "book.pdf" {
		t.Fatalf("unexpected payload received: %+v", received)
	}
}

func TestNotifyDocumentComplete_RetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(testNotifierLogger(t), Config{DocumentCompleteURL: srv.URL, MaxRetries: 5, Timeout: time.Second})
	err := n.NotifyDocumentComplete(context.Background(), "job-1", "book.pdf", nil)
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestNotifyDocumentComplete_DeadLettersAfterExhaustingRetries(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := New(testNotifierLogger(t), Config{DocumentCompleteURL: srv.URL, MaxRetries: 2, Timeout: time.Second})
	err := n.NotifyDocumentComplete(context.Background(), "job-1", "book.pdf", nil)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected exactly MaxRetries attempts, got %d", attempts)
	}
}

func TestNotifyDocumentComplete_NoURLConfiguredIsANoOp(t *testing.T) {
	n := New(testNotifierLogger(t), Config{})
	if err := n.NotifyDocumentComplete(context.Background(), "job-1", "book.pdf", nil); err != nil {
		t.Fatalf("expected no-op success when no callback URL is configured, got %v", err)
	}
}

func TestNotifyBlock_EmitsFlatPayloadWithVocabularyItems(t *testing.T) {
	done := make(chan struct{}, 1)
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
		done <- struct{}{}
	}))
	defer srv.Close()

	n := New(testNotifierLogger(t), Config{BlockCallbackURL: srv.URL, Timeout: time.Second})
	n.NotifyBlock(context.Background(), BlockPayload{
		JobID:            "job-1",
		TextbookID:       "tb-1",
		PageNumber:       3,
		BlockID:          "3-0",
		OriginalSentence: "photosynthesis is a biological process",
		VocabularyItems:  []jobdomain.VocabularyItem{{Word: "photosynthesis"}, {Word: "biological"}},
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for block callback delivery")
	}

	// The payload must be flat (no nested "block" key) and carry both key
	// conventions plus the vocabulary items and a stamped timestamp.
	if _, nested := raw["block"]; nested {
		t.Fatalf("expected a flat payload, found a nested \"block\" key: %+v", raw)
	}
	if raw["job_id"] != "job-1" || raw["jobId"] != "job-1" {
		t.Fatalf("expected both job_id and jobId keys, got %+v", raw)
	}
	if raw["textbook_id"] != "tb-1" || raw["textbookId"] != "tb-1" {
		t.Fatalf("expected both textbook_id and textbookId keys, got %+v", raw)
	}
	items, ok := raw["vocabulary_items"].([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("expected 2 vocabulary_items, got %+v", raw["vocabulary_items"])
	}
	if raw["created_at"] == nil || raw["created_at"] == "" {
		t.Fatalf("expected created_at to be stamped, got %+v", raw["created_at"])
	}
}

func TestNotifyBlock_NoURLConfiguredDoesNotCallOut(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(testNotifierLogger(t), Config{})
	n.NotifyBlock(context.Background(), BlockPayload{JobID: "job-1"})
	if called {
		t.Fatalf("expected no HTTP call when BlockCallbackURL is unset")
	}
}
