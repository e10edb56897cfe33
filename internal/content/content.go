package content

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

// MatterBody marks sections that hold the primary narrative.
const MatterBody = "body"

// Block types reported by the content service. Only text-bearing blocks are
// narrated; the type is informational.
const (
	BlockTypeParagraph = "paragraph"
	BlockTypeHeading   = "heading"
)

// Source is the content service contract.
type Source interface {
	GetBook(ctx context.Context, bookID string) (Book, error)
	GetSectionBlocks(ctx context.Context, bookID string, order int) ([]Block, error)
}

// Book is a book's identity and table of contents.
type Book struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Navigation []NavItem `json:"navigation"`
}

// NavItem is one table-of-contents entry.
type NavItem struct {
	Order  int    `json:"order"`
	Label  string `json:"label"`
	Matter string `json:"matter"`
}

var matterFolder = cases.Fold()

// IsBody reports whether the section is body matter.
func (n NavItem) IsBody() bool {
	return matterFolder.String(strings.TrimSpace(n.Matter)) == MatterBody
}

// Section returns the navigation item with the given order.
func (b Book) Section(order int) (NavItem, bool) {
	for _, item := range b.Navigation {
		if item.Order == order {
			return item, true
		}
	}
	return NavItem{}, false
}

// Block is a flattened content unit. Index is the block's position in the
// depth-first walk of its section.
type Block struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// HasText reports whether the block carries narratable text.
func (b Block) HasText() bool {
	return strings.TrimSpace(b.Text) != ""
}

// Node is a block as delivered by the content service, possibly nested.
type Node struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Text     string `json:"text"`
	Children []Node `json:"children,omitempty"`
}

// Flatten walks nodes depth-first, parents before children, and numbers the
// resulting blocks from zero.
func Flatten(nodes []Node) []Block {
	var out []Block
	var walk func([]Node)
	walk = func(level []Node) {
		for _, node := range level {
			out = append(out, Block{
				ID:    node.ID,
				Type:  node.Type,
				Text:  node.Text,
				Index: len(out),
			})
			walk(node.Children)
		}
	}
	walk(nodes)
	return out
}

// TextBlocks returns the blocks bearing non-empty text, keeping order.
func TextBlocks(blocks []Block) []Block {
	out := make([]Block, 0, len(blocks))
	for _, block := range blocks {
		if block.HasText() {
			out = append(out, block)
		}
	}
	return out
}
