package testsupport

import (
	"context"
	"fmt"
	"sync"

	"lectern/internal/content"
	"lectern/internal/services"
)

// ContentSource is an in-memory content.Source.
type ContentSource struct {
	mu       sync.Mutex
	books    map[string]content.Book
	sections map[string][]content.Block
	errs     map[string]error
	calls    map[string]int
}

// NewContentSource returns an empty fake content source.
func NewContentSource() *ContentSource {
	return &ContentSource{
		books:    make(map[string]content.Book),
		sections: make(map[string][]content.Block),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func sectionKey(bookID string, order int) string {
	return fmt.Sprintf("%s#%d", bookID, order)
}

// AddBook registers a book.
func (s *ContentSource) AddBook(book content.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[book.ID] = book
}

// SetSection registers the blocks of a section. Block indexes are assigned
// from slice position when unset.
func (s *ContentSource) SetSection(bookID string, order int, blocks ...content.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]content.Block, len(blocks))
	for i, block := range blocks {
		if block.Index == 0 {
			block.Index = i
		}
		if block.Type == "" {
			block.Type = content.BlockTypeParagraph
		}
		out[i] = block
	}
	s.sections[sectionKey(bookID, order)] = out
}

// FailSection makes GetSectionBlocks fail for a section.
func (s *ContentSource) FailSection(bookID string, order int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[sectionKey(bookID, order)] = err
}

// SectionCalls reports how often a section was fetched.
func (s *ContentSource) SectionCalls(bookID string, order int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[sectionKey(bookID, order)]
}

func (s *ContentSource) GetBook(_ context.Context, bookID string) (content.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[bookID]
	if !ok {
		return content.Book{}, services.Wrap(services.ErrNotFound, "content", "get book", bookID, nil)
	}
	return book, nil
}

func (s *ContentSource) GetSectionBlocks(_ context.Context, bookID string, order int) ([]content.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sectionKey(bookID, order)
	s.calls[key]++
	if err := s.errs[key]; err != nil {
		return nil, err
	}
	blocks, ok := s.sections[key]
	if !ok {
		return nil, nil
	}
	out := make([]content.Block, len(blocks))
	copy(out, blocks)
	return out, nil
}
