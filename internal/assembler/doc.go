// Package assembler produces one playable audio file per (book, section,
// voice) together with the per-block timestamps inside it.
//
// Block audio is normally staged ahead of time by StageBlock (one
// TEXT_TO_AUDIO job per block). Assemble reuses staged audio, converts any
// block that was not staged, restores block order by index, derives timing
// from running duration offsets (or from merged character alignment when
// every block carries it), validates the timing and commits the section.
// A section whose audio already exists in storage is skipped, which makes
// re-runs idempotent.
package assembler
