// Package chunker splits text that exceeds a speech provider's per-request
// character limit and supplies neighbouring context for prosodic continuity.
//
// Limits are counted in runes. Split prefers sentence boundaries, then
// paragraph breaks, commas and spaces, and only cuts mid-word when the limit
// leaves no safer break. WithContext decorates chunks with the tail of the
// previous chunk and the head of the next one; providers use those as hints
// and never render them.
package chunker
