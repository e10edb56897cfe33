package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"lectern/internal/config"
	"lectern/internal/content"
	"lectern/internal/testsupport"
)

// newCLIConfig returns a config whose daemon address refuses connections and
// whose content service is served by an in-process fake.
func newCLIConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = "127.0.0.1:1"
	cfg.Storage.Endpoint = "127.0.0.1:1"
	cfg.Content.BaseURL = newContentServer(t).URL
	return cfg
}

func newContentServer(t *testing.T) *httptest.Server {
	t.Helper()
	book := content.Book{
		ID:     "book",
		Title:  "Short",
		Author: "Someone",
		Navigation: []content.NavItem{
			{Order: 0, Label: "Cover", Matter: "front"},
			{Order: 1, Label: "Chapter One", Matter: "body"},
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /books/book", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(book)
	})
	mux.HandleFunc("GET /books/book/sections/1/blocks", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]content.Node{
			"blocks": {{ID: "b1", Type: content.BlockTypeParagraph, Text: "It was a short book."}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	path := filepath.Join(testsupport.BaseDir(cfg), "lectern.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
