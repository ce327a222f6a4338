package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Remote.DSN = filepath.Join(t.TempDir(), "remote.db")
	return cfg
}

func TestImportThenExport(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	opts := []Option{WithConfig(cfg), WithLogOutput(io.Discard)}

	doc := `[{"id":"n1","title":"Groceries","paragraphs":[{"text":"eggs"},{"text":"milk"}]}]`
	n, err := Import(ctx, "alice@example.com", strings.NewReader(doc), opts...)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 1 {
		t.Fatalf("imported = %d, want 1", n)
	}

	// A fresh process sees what the import wrote to the remote store.
	var buf bytes.Buffer
	if err := Export(ctx, "alice@example.com", &buf, opts...); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var notes []struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Paragraphs []struct {
			Text string `json:"text"`
		} `json:"paragraphs"`
	}
	if err := json.Unmarshal(buf.Bytes(), &notes); err != nil {
		t.Fatalf("decode export: %v\n%s", err, buf.String())
	}
	if len(notes) != 1 || notes[0].ID != "n1" || notes[0].Title != "Groceries" || len(notes[0].Paragraphs) != 2 {
		t.Fatalf("export = %s", buf.String())
	}

	// Another identity has its own, empty, collection.
	buf.Reset()
	if err := Export(ctx, "bob@example.com", &buf, opts...); err != nil {
		t.Fatalf("Export bob: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("bob export = %s, want []", got)
	}
}

func TestImportRejectsMalformedDocument(t *testing.T) {
	opts := []Option{WithConfig(testConfig(t)), WithLogOutput(io.Discard)}
	if _, err := Import(context.Background(), "alice", strings.NewReader(`{"not":"an array"}`), opts...); err == nil {
		t.Fatal("expected malformed import to fail")
	}
}

func TestCommandsRequireConfigAndIdentity(t *testing.T) {
	ctx := context.Background()
	if err := Run(ctx); err == nil {
		t.Error("Run without config should fail")
	}
	opts := []Option{WithConfig(testConfig(t)), WithLogOutput(io.Discard)}
	if err := Export(ctx, "  ", io.Discard, opts...); err == nil {
		t.Error("Export without identity should fail")
	}
}
