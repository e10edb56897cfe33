// Package content defines the contract lectern consumes from the book content
// service and ships an HTTP adapter for it.
//
// A book exposes its table of contents as navigation items, each carrying a
// section order and a matter classification. Section content arrives as a
// nested block tree which Flatten turns into the ordered, indexed block list
// the pipeline works with.
package content
