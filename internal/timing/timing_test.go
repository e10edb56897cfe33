package timing_test

import (
	"errors"
	"math"
	"testing"

	"lectern/internal/services"
	"lectern/internal/timing"
)

func TestPositionsTracksSingleSpaceJoin(t *testing.T) {
	spans := timing.Positions([]string{"Hello", "wörld", "!"})
	want := []timing.Span{{0, 5}, {6, 11}, {12, 13}}
	for i := range want {
		if spans[i] != want[i] {
			t.Fatalf("span %d = %+v, want %+v", i, spans[i], want[i])
		}
	}
	if joined := timing.JoinTexts([]string{"Hello", "wörld", "!"}); len([]rune(joined)) != 13 {
		t.Fatalf("unexpected joined text %q", joined)
	}
}

func uniformAlignment(text string, perChar float64) timing.Alignment {
	var a timing.Alignment
	i := 0
	for _, r := range text {
		a.Characters = append(a.Characters, string(r))
		a.StartTimeSeconds = append(a.StartTimeSeconds, float64(i)*perChar)
		a.EndTimeSeconds = append(a.EndTimeSeconds, float64(i+1)*perChar)
		i++
	}
	return a
}

func TestMapUsesFirstStartAndLastEnd(t *testing.T) {
	texts := []string{"abc", "de"}
	spans := timing.Positions(texts)
	alignment := uniformAlignment(timing.JoinTexts(texts), 0.1)
	// Undefined trailing end time must not stop the scan early.
	alignment.EndTimeSeconds[1] = math.NaN()

	timings := timing.Map([]timing.Block{{ID: "a", Span: spans[0]}, {ID: "b", Span: spans[1]}}, alignment)
	if len(timings) != 2 {
		t.Fatalf("expected 2 timings, got %d", len(timings))
	}
	if timings[0].StartMs != 0 || timings[0].EndMs != 300 {
		t.Fatalf("unexpected first block %+v", timings[0])
	}
	if timings[1].StartMs != 400 || timings[1].EndMs != 600 || timings[1].CharacterStart != 4 || timings[1].CharacterEnd != 6 {
		t.Fatalf("unexpected second block %+v", timings[1])
	}
	if err := timing.Validate(timings); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestMapOmitsUntimedBlocks(t *testing.T) {
	alignment := timing.Alignment{
		Characters:       []string{"a", " ", "b"},
		StartTimeSeconds: []float64{0, math.NaN(), math.NaN()},
		EndTimeSeconds:   []float64{0.5, math.NaN(), math.NaN()},
	}
	timings := timing.Map([]timing.Block{{ID: "a", Span: timing.Span{0, 1}}, {ID: "b", Span: timing.Span{2, 3}}}, alignment)
	if len(timings) != 1 || timings[0].BlockID != "a" {
		t.Fatalf("expected only block a, got %+v", timings)
	}

	short := timing.Map([]timing.Block{{ID: "z", Span: timing.Span{10, 20}}}, alignment)
	if len(short) != 0 {
		t.Fatalf("blocks past the alignment must be omitted, got %+v", short)
	}
}

func TestValidateRejectsBadTimings(t *testing.T) {
	cases := []struct {
		name    string
		timings []timing.BlockTiming
	}{
		{"zero length", []timing.BlockTiming{{BlockID: "a", StartMs: 100, EndMs: 100}}},
		{"reversed", []timing.BlockTiming{{BlockID: "a", StartMs: 200, EndMs: 100}}},
		{"overlap", []timing.BlockTiming{{BlockID: "b", StartMs: 900, EndMs: 1500}, {BlockID: "a", StartMs: 0, EndMs: 1000}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := timing.Validate(tc.timings)
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	touching := []timing.BlockTiming{{BlockID: "a", StartMs: 0, EndMs: 1000}, {BlockID: "b", StartMs: 1000, EndMs: 1500}}
	if err := timing.Validate(touching); err != nil {
		t.Fatalf("touching blocks are valid: %v", err)
	}
}

func TestOffsets(t *testing.T) {
	got := timing.Offsets([]int64{1000, 1500, 0, 2000})
	want := []timing.Interval{{0, 1000}, {1000, 2500}, {2500, 2500}, {2500, 4500}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("interval %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestAlignmentOffsetAndAppend(t *testing.T) {
	first := uniformAlignment("ab", 0.5)
	second := uniformAlignment("cd", 0.5).Offset(first.EndSeconds())

	merged := first.Append(second, " ")
	if merged.Len() != 5 {
		t.Fatalf("expected separator inserted, got %d characters", merged.Len())
	}
	if !math.IsNaN(merged.StartTimeSeconds[2]) {
		t.Fatal("separator must be untimed")
	}
	if merged.StartTimeSeconds[3] != 1.0 || merged.EndSeconds() != 2.0 {
		t.Fatalf("unexpected merged times %v %v", merged.StartTimeSeconds, merged.EndTimeSeconds)
	}
	if first.StartTimeSeconds[0] != 0 {
		t.Fatal("Offset must not mutate the receiver")
	}
}
