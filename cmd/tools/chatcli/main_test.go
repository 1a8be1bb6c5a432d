package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/config"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/chat"
	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
)

func TestListDocuments(t *testing.T) {
	var buf bytes.Buffer
	if err := listDocuments(context.Background(), &buf, document.NewMemoryStore(document.Seed())); err != nil {
		t.Fatalf("listDocuments err: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(document.Seed()) {
		t.Fatalf("expected %d lines, got %d", len(document.Seed()), len(lines))
	}
	if !strings.Contains(lines[0], document.Seed()[0].Filename) {
		t.Fatalf("missing filename in %q", lines[0])
	}
}

func TestPrintTranscript(t *testing.T) {
	var buf bytes.Buffer
	printTranscript(&buf, []chat.Message{
		{ID: "1", Role: chat.RoleAssistant, Content: "Bonjour", CreatedAt: "2024-01-01T00:00:00.000Z"},
		{ID: "2", Role: chat.RoleUser, Content: "Article 1 ?", CreatedAt: "2024-01-01T00:00:01.000Z"},
	})
	out := buf.String()
	if !strings.Contains(out, "助手: Bonjour") || !strings.Contains(out, "我: Article 1 ?") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOpenSlotUsesDir(t *testing.T) {
	dir := t.TempDir()
	slot, err := openSlot(dir)
	if err != nil {
		t.Fatalf("openSlot err: %v", err)
	}
	if err := slot.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("Set err: %v", err)
	}
}

func TestDownloadDocumentReportsSavedPath(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Catalog:  config.CatalogConfig{BaseURL: srv.URL, Timeout: time.Second},
		Download: config.DownloadConfig{ReleaseDelay: time.Millisecond},
	}
	dir := t.TempDir()

	saved, err := downloadDocument(context.Background(), cfg, "archives/constitution-2020.pdf", dir, zerolog.Nop())
	if err != nil {
		t.Fatalf("downloadDocument err: %v", err)
	}
	if want := filepath.Join(dir, "constitution-2020.pdf"); saved != want {
		t.Fatalf("expected saved path %q, got %q", want, saved)
	}
	if _, err := os.Stat(saved); err != nil {
		t.Fatalf("reported path does not exist: %v", err)
	}
	if requested != "/api/constitutions/files/archives%2Fconstitution-2020.pdf" {
		t.Fatalf("unexpected request path %q", requested)
	}
}
