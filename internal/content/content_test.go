package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"lectern/internal/services"
)

func TestFlattenDepthFirst(t *testing.T) {
	nodes := []Node{
		{ID: "h1", Type: BlockTypeHeading, Text: "Chapter One"},
		{ID: "list", Type: "list", Children: []Node{
			{ID: "li1", Type: BlockTypeParagraph, Text: "First item."},
			{ID: "li2", Type: BlockTypeParagraph, Text: "Second item.", Children: []Node{
				{ID: "nested", Type: BlockTypeParagraph, Text: "Nested."},
			}},
		}},
		{ID: "p1", Type: BlockTypeParagraph, Text: "Closing."},
	}
	got := Flatten(nodes)
	var ids []string
	for i, block := range got {
		if block.Index != i {
			t.Fatalf("block %s has index %d, want %d", block.ID, block.Index, i)
		}
		ids = append(ids, block.ID)
	}
	want := []string{"h1", "list", "li1", "li2", "nested", "p1"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("order = %v, want %v", ids, want)
	}
	text := TextBlocks(got)
	if len(text) != 5 || text[1].ID != "li1" || text[1].Index != 2 {
		t.Fatalf("unexpected text blocks %+v", text)
	}
}

func TestNavItemIsBody(t *testing.T) {
	tests := []struct {
		matter string
		want   bool
	}{
		{"body", true},
		{" BODY ", true},
		{"frontmatter", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := (NavItem{Matter: tt.matter}).IsBody(); got != tt.want {
			t.Errorf("IsBody(%q) = %v, want %v", tt.matter, got, tt.want)
		}
	}
}

func TestClientGetBookAndBlocks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("missing bearer token")
		}
		switch r.URL.Path {
		case "/books/b1":
			_ = json.NewEncoder(w).Encode(Book{
				ID:    "b1",
				Title: "Example",
				Navigation: []NavItem{
					{Order: 0, Label: "Preface", Matter: "frontmatter"},
					{Order: 1, Label: "One", Matter: "body"},
				},
			})
		case "/books/b1/sections/1/blocks":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"blocks": []Node{
					{ID: "a", Type: BlockTypeHeading, Text: "  One  "},
					{ID: "b", Type: "section", Children: []Node{{ID: "c", Type: BlockTypeParagraph, Text: "Café   time."}}},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/", Token: "token"})
	book, err := client.GetBook(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if book.Title != "Example" || len(book.Navigation) != 2 {
		t.Fatalf("unexpected book %+v", book)
	}
	if item, ok := book.Section(1); !ok || !item.IsBody() {
		t.Fatalf("section 1 lookup failed: %+v", item)
	}
	blocks, err := client.GetSectionBlocks(context.Background(), "b1", 1)
	if err != nil {
		t.Fatalf("GetSectionBlocks: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Text != "One" || blocks[2].Text != "Café time." || blocks[2].Index != 2 {
		t.Fatalf("unexpected blocks %+v", blocks)
	}

	_, err = client.GetSectionBlocks(context.Background(), "b1", 9)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrConfiguration},
		{http.StatusBadGateway, services.ErrTransient},
	}
	for _, tt := range tests {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		client := NewClient(Config{BaseURL: server.URL})
		_, err := client.GetBook(context.Background(), "b1")
		server.Close()
		if !errors.Is(err, tt.marker) {
			t.Fatalf("status %d: expected %v, got %v", tt.status, tt.marker, err)
		}
	}
	if _, err := NewClient(Config{}).GetBook(context.Background(), "b1"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without base url, got %v", err)
	}
}
