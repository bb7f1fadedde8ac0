package collab

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDocumentClient_Generate(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"document_id": "doc-42"})
	}))
	defer server.Close()

	client := NewDocumentClient(server.URL, time.Second)
	id, err := client.Generate(context.Background(), "invoice-v2", map[string]any{"client": "acme"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if id != "doc-42" {
		t.Errorf("expected doc-42, got %s", id)
	}
	if gotPath != "/v1/documents" {
		t.Errorf("expected /v1/documents, got %s", gotPath)
	}
	if gotBody["template_ref"] != "invoice-v2" {
		t.Errorf("expected template_ref in request, got %v", gotBody)
	}
}

func TestDocumentClient_EmptyDocumentID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer server.Close()

	client := NewDocumentClient(server.URL, time.Second)
	_, err := client.Generate(context.Background(), "invoice-v2", nil)
	if !errors.Is(err, ErrServiceRequest) {
		t.Errorf("expected ErrServiceRequest, got %v", err)
	}
}

func TestDocumentClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "template not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewDocumentClient(server.URL, time.Second)
	_, err := client.Generate(context.Background(), "missing", nil)
	if !errors.Is(err, ErrServiceRequest) {
		t.Errorf("expected ErrServiceRequest, got %v", err)
	}
}

func TestDataSyncClient_Sync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sync" {
			t.Errorf("expected /v1/sync, got %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"records_synced": 12})
	}))
	defer server.Close()

	client := NewDataSyncClient(server.URL, time.Second)
	n, err := client.Sync(context.Background(), map[string]any{"source": "crm"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12 records, got %d", n)
	}
}

func TestDataSyncClient_ConnectionRefused(t *testing.T) {
	client := NewDataSyncClient("http://127.0.0.1:1", time.Second)
	_, err := client.Sync(context.Background(), nil)
	if !errors.Is(err, ErrServiceRequest) {
		t.Errorf("expected ErrServiceRequest, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("expected hello, got %s", got)
	}
	if got := truncate("hello world", 5); got != "hello..." {
		t.Errorf("expected hello..., got %s", got)
	}
}

func TestLogNotifier_Send(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))

	delivered, err := n.Send(context.Background(), []string{"alice"}, map[string]any{"channel": "email"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !delivered {
		t.Error("expected delivered=true")
	}
}
