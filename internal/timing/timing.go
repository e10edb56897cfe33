// Package timing maps character-level speech alignment onto content block
// boundaries and derives running offsets from per-block durations.
package timing

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"lectern/internal/services"
)

// Alignment is the character-to-time mapping returned by providers that
// support it. The three slices are parallel.
type Alignment struct {
	Characters       []string  `json:"characters"`
	StartTimeSeconds []float64 `json:"character_start_times_seconds"`
	EndTimeSeconds   []float64 `json:"character_end_times_seconds"`
}

// Len returns the number of aligned characters.
func (a Alignment) Len() int {
	return len(a.Characters)
}

// Empty reports whether the alignment carries no characters.
func (a *Alignment) Empty() bool {
	return a == nil || len(a.Characters) == 0
}

// Offset returns a copy with every time shifted by seconds.
func (a Alignment) Offset(seconds float64) Alignment {
	out := Alignment{
		Characters:       slices.Clone(a.Characters),
		StartTimeSeconds: make([]float64, len(a.StartTimeSeconds)),
		EndTimeSeconds:   make([]float64, len(a.EndTimeSeconds)),
	}
	for i, v := range a.StartTimeSeconds {
		out.StartTimeSeconds[i] = v + seconds
	}
	for i, v := range a.EndTimeSeconds {
		out.EndTimeSeconds[i] = v + seconds
	}
	return out
}

// Append concatenates other onto a. When separator is non-empty it is
// inserted as untimed characters so character positions keep matching the
// joined text.
func (a Alignment) Append(other Alignment, separator string) Alignment {
	out := Alignment{
		Characters:       slices.Clone(a.Characters),
		StartTimeSeconds: slices.Clone(a.StartTimeSeconds),
		EndTimeSeconds:   slices.Clone(a.EndTimeSeconds),
	}
	if len(out.Characters) > 0 && separator != "" {
		for _, r := range separator {
			out.Characters = append(out.Characters, string(r))
			out.StartTimeSeconds = append(out.StartTimeSeconds, math.NaN())
			out.EndTimeSeconds = append(out.EndTimeSeconds, math.NaN())
		}
	}
	out.Characters = append(out.Characters, other.Characters...)
	out.StartTimeSeconds = append(out.StartTimeSeconds, other.StartTimeSeconds...)
	out.EndTimeSeconds = append(out.EndTimeSeconds, other.EndTimeSeconds...)
	return out
}

// EndSeconds returns the last defined end time, or zero.
func (a Alignment) EndSeconds() float64 {
	for i := len(a.EndTimeSeconds) - 1; i >= 0; i-- {
		if defined(a.EndTimeSeconds, i) {
			return a.EndTimeSeconds[i]
		}
	}
	return 0
}

// Span is a half-open range of rune offsets [Start, End).
type Span struct {
	Start int
	End   int
}

// Positions joins texts with a single space and returns each text's span in
// the joined string.
func Positions(texts []string) []Span {
	spans := make([]Span, len(texts))
	offset := 0
	for i, text := range texts {
		length := len([]rune(text))
		spans[i] = Span{Start: offset, End: offset + length}
		offset += length + 1
	}
	return spans
}

// JoinTexts joins block texts the same way Positions measures them.
func JoinTexts(texts []string) string {
	return strings.Join(texts, " ")
}

// Block is a content block positioned inside the joined section text.
type Block struct {
	ID   string
	Span Span
}

// BlockTiming is the time span of a block inside the section audio.
type BlockTiming struct {
	BlockID        string
	StartMs        int64
	EndMs          int64
	CharacterStart int
	CharacterEnd   int
}

// Map scans the alignment over each block's character range. The start is
// the first defined start time, the end the last defined end time. Blocks
// with no timed characters are omitted.
func Map(blocks []Block, alignment Alignment) []BlockTiming {
	out := make([]BlockTiming, 0, len(blocks))
	for _, block := range blocks {
		var (
			start, end       float64
			hasStart, hasEnd bool
		)
		for i := block.Span.Start; i < block.Span.End; i++ {
			if !hasStart && defined(alignment.StartTimeSeconds, i) {
				start = alignment.StartTimeSeconds[i]
				hasStart = true
			}
			if defined(alignment.EndTimeSeconds, i) {
				end = alignment.EndTimeSeconds[i]
				hasEnd = true
			}
		}
		if !hasStart || !hasEnd {
			continue
		}
		out = append(out, BlockTiming{
			BlockID:        block.ID,
			StartMs:        secondsToMs(start),
			EndMs:          secondsToMs(end),
			CharacterStart: block.Span.Start,
			CharacterEnd:   block.Span.End,
		})
	}
	return out
}

// Validate rejects timings where a block does not advance in time or where
// two time-adjacent blocks overlap.
func Validate(timings []BlockTiming) error {
	sorted := slices.Clone(timings)
	slices.SortStableFunc(sorted, func(a, b BlockTiming) int {
		switch {
		case a.StartMs < b.StartMs:
			return -1
		case a.StartMs > b.StartMs:
			return 1
		default:
			return 0
		}
	})
	for i, current := range sorted {
		if current.StartMs >= current.EndMs {
			return services.Wrap(services.ErrValidation, "timing", "validate",
				fmt.Sprintf("block %s starts at %dms but ends at %dms", current.BlockID, current.StartMs, current.EndMs), nil)
		}
		if i+1 < len(sorted) {
			next := sorted[i+1]
			if current.EndMs > next.StartMs {
				return services.Wrap(services.ErrValidation, "timing", "validate",
					fmt.Sprintf("block %s (ends %dms) overlaps block %s (starts %dms)", current.BlockID, current.EndMs, next.BlockID, next.StartMs), nil)
			}
		}
	}
	return nil
}

// Interval is a running start/end pair in milliseconds.
type Interval struct {
	StartMs int64
	EndMs   int64
}

// Offsets converts ordered durations into back-to-back intervals.
func Offsets(durations []int64) []Interval {
	out := make([]Interval, len(durations))
	var cursor int64
	for i, d := range durations {
		out[i] = Interval{StartMs: cursor, EndMs: cursor + d}
		cursor += d
	}
	return out
}

func defined(values []float64, i int) bool {
	if i < 0 || i >= len(values) {
		return false
	}
	v := values[i]
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

func secondsToMs(seconds float64) int64 {
	return int64(math.Round(seconds * 1000))
}
