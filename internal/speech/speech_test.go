package speech

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"lectern/internal/services"
)

type fakeProvider struct {
	name      string
	maxChars  int
	stitching bool
	aligned   bool
	native    int64
	delay     func(text string) time.Duration
	fail      map[string]error
	empty     bool

	mu       sync.Mutex
	requests []Request
	calls    int
}

func (p *fakeProvider) Name() string            { return p.name }
func (p *fakeProvider) MaxChars() int           { return p.maxChars }
func (p *fakeProvider) SupportsStitching() bool { return p.stitching }

func (p *fakeProvider) Synthesize(ctx context.Context, req Request) (Response, error) {
	if p.delay != nil {
		select {
		case <-time.After(p.delay(req.Text)):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	p.mu.Lock()
	p.calls++
	id := fmt.Sprintf("req-%d", p.calls)
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if err := p.fail[req.Text]; err != nil {
		return Response{}, err
	}
	if p.empty {
		return Response{RequestID: id}, nil
	}
	resp := Response{Audio: []byte(req.Text), RequestID: id, DurationMs: p.native}
	if p.aligned {
		resp.Alignment = charAlignment(req.Text, 0.1)
	}
	return resp, nil
}

func charAlignment(text string, step float64) *Alignment {
	a := &Alignment{}
	for i, r := range []rune(text) {
		a.Characters = append(a.Characters, string(r))
		a.StartTimeSeconds = append(a.StartTimeSeconds, float64(i)*step)
		a.EndTimeSeconds = append(a.EndTimeSeconds, float64(i+1)*step)
	}
	return a
}

func TestEstimateDurationMs(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"", 0},
		{"a", 80},
		{strings.Repeat("x", 13), 1040},
		{strings.Repeat("x", 25), 2000},
		{strings.Repeat("x", 125), 10000},
		{"héllo wörld", 880},
	}
	for _, tt := range tests {
		got := EstimateDurationMs(tt.text)
		want := int64(math.Ceil(float64(len([]rune(tt.text))) / 12.5 * 1000))
		if got != tt.want || got != want {
			t.Errorf("EstimateDurationMs(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestHistoryKeepsLastThree(t *testing.T) {
	var h History
	if ids := h.IDs(); ids != nil {
		t.Fatalf("expected empty history, got %v", ids)
	}
	for _, id := range []string{"a", "", "b", "c", "d"} {
		h.Add(id)
	}
	if got := h.IDs(); !reflect.DeepEqual(got, []string{"b", "c", "d"}) {
		t.Fatalf("IDs = %v", got)
	}
	got := h.IDs()
	got[0] = "mutated"
	if h.IDs()[0] != "b" {
		t.Fatal("IDs must return a copy")
	}
}

func TestNewConverterSelectsBehaviourClass(t *testing.T) {
	stitching, err := NewConverter(&fakeProvider{name: "s", maxChars: 100, stitching: true}, Options{})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if _, ok := stitching.(*StitchingConverter); !ok || !stitching.Stitching() {
		t.Fatalf("expected stitching converter, got %T", stitching)
	}
	estimating, err := NewConverter(&fakeProvider{name: "e", maxChars: 100}, Options{Concurrency: 2})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if _, ok := estimating.(*EstimatingConverter); !ok || estimating.Stitching() {
		t.Fatalf("expected estimating converter, got %T", estimating)
	}
	if _, err := NewConverter(nil, Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("nil provider error = %v", err)
	}
	if _, err := NewConverter(&fakeProvider{name: "zero"}, Options{}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("zero max chars error = %v", err)
	}
}

func TestStitchingConvertBlockChunksWithContext(t *testing.T) {
	provider := &fakeProvider{name: "elevenlabs", maxChars: 12, stitching: true, aligned: true}
	conv, err := NewConverter(provider, Options{})
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	history := &History{}
	history.Add("earlier")
	got, err := conv.ConvertBlock(context.Background(), BlockRequest{
		BlockID:      "b1",
		Index:        3,
		Text:         "One two. Three four.",
		VoiceID:      "v1",
		PreviousText: "Before.",
		NextText:     "After.",
	}, history)
	if err != nil {
		t.Fatalf("ConvertBlock: %v", err)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 chunk requests, got %d", len(provider.requests))
	}
	first, second := provider.requests[0], provider.requests[1]
	if first.Text != "One two." || first.PreviousText != "Before." || first.NextText != "Three four." {
		t.Fatalf("unexpected first request %+v", first)
	}
	if !reflect.DeepEqual(first.PreviousRequestIDs, []string{"earlier"}) {
		t.Fatalf("first request ids = %v", first.PreviousRequestIDs)
	}
	if second.Text != "Three four." || second.PreviousText != "One two." || second.NextText != "After." {
		t.Fatalf("unexpected second request %+v", second)
	}
	if !reflect.DeepEqual(second.PreviousRequestIDs, []string{"earlier", "req-1"}) {
		t.Fatalf("second request ids = %v", second.PreviousRequestIDs)
	}
	if got.DurationMs != 1900 {
		t.Fatalf("DurationMs = %d, want 1900", got.DurationMs)
	}
	if string(got.Audio) != "One two.Three four." {
		t.Fatalf("Audio = %q", got.Audio)
	}
	if got.Text != "One two. Three four." || got.Index != 3 {
		t.Fatalf("unexpected block result %+v", got)
	}
	if got.Alignment == nil || got.Alignment.Len() != len([]rune(got.Text)) {
		t.Fatalf("alignment does not cover joined text: %+v", got.Alignment)
	}
	if start := got.Alignment.StartTimeSeconds[9]; math.Abs(start-0.8) > 1e-9 {
		t.Fatalf("second chunk first char start = %v, want 0.8", start)
	}
	if !reflect.DeepEqual(history.IDs(), []string{"earlier", "req-1", "req-2"}) {
		t.Fatalf("history = %v", history.IDs())
	}
}

func TestStitchingConvertBlocksThreadsHistory(t *testing.T) {
	provider := &fakeProvider{name: "elevenlabs", maxChars: 100, stitching: true, aligned: true}
	conv, _ := NewConverter(provider, Options{})
	blocks := make([]BlockRequest, 5)
	for i := range blocks {
		blocks[i] = BlockRequest{BlockID: fmt.Sprintf("b%d", i), Index: i, Text: fmt.Sprintf("Block %d.", i)}
	}
	got, err := conv.ConvertBlocks(context.Background(), blocks)
	if err != nil {
		t.Fatalf("ConvertBlocks: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 results, got %d", len(got))
	}
	for i, r := range provider.requests {
		if r.Text != blocks[i].Text {
			t.Fatalf("request %d out of order: %q", i, r.Text)
		}
	}
	if ids := provider.requests[4].PreviousRequestIDs; !reflect.DeepEqual(ids, []string{"req-2", "req-3", "req-4"}) {
		t.Fatalf("fifth request ids = %v", ids)
	}
	if ids := provider.requests[0].PreviousRequestIDs; len(ids) != 0 {
		t.Fatalf("first request should carry no ids, got %v", ids)
	}
}

func TestEstimatingConvertBlocksPreservesOrder(t *testing.T) {
	provider := &fakeProvider{
		name:     "openai",
		maxChars: 100,
		delay: func(text string) time.Duration {
			return time.Duration(30-len(text)) * time.Millisecond
		},
	}
	conv, _ := NewConverter(provider, Options{Concurrency: 3})
	texts := []string{"a", strings.Repeat("b", 13), strings.Repeat("c", 25)}
	blocks := make([]BlockRequest, len(texts))
	for i, text := range texts {
		blocks[i] = BlockRequest{BlockID: fmt.Sprintf("b%d", i), Index: i, Text: text}
	}
	got, err := conv.ConvertBlocks(context.Background(), blocks)
	if err != nil {
		t.Fatalf("ConvertBlocks: %v", err)
	}
	want := []int64{80, 1040, 2000}
	for i, block := range got {
		if block.BlockID != blocks[i].BlockID || string(block.Audio) != texts[i] {
			t.Fatalf("result %d out of order: %+v", i, block)
		}
		if block.DurationMs != want[i] {
			t.Fatalf("block %d duration = %d, want %d", i, block.DurationMs, want[i])
		}
		if block.Alignment != nil {
			t.Fatalf("estimating provider should not produce alignment")
		}
	}
	for _, r := range provider.requests {
		if r.PreviousText != "" || r.NextText != "" || len(r.PreviousRequestIDs) != 0 {
			t.Fatalf("estimating request carried context: %+v", r)
		}
	}
}

func TestEstimatingPrefersNativeDuration(t *testing.T) {
	provider := &fakeProvider{name: "native", maxChars: 10, native: 700}
	conv, _ := NewConverter(provider, Options{})
	got, err := conv.ConvertBlock(context.Background(), BlockRequest{BlockID: "b", Text: "First one. Second one."}, nil)
	if err != nil {
		t.Fatalf("ConvertBlock: %v", err)
	}
	if len(provider.requests) < 2 {
		t.Fatalf("expected chunked requests, got %d", len(provider.requests))
	}
	if want := int64(700 * len(provider.requests)); got.DurationMs != want {
		t.Fatalf("DurationMs = %d, want %d", got.DurationMs, want)
	}
}

func TestEstimatingEstimatesWholeBlock(t *testing.T) {
	provider := &fakeProvider{name: "estimate", maxChars: 12}
	conv, _ := NewConverter(provider, Options{})
	text := "First one. Second one."
	got, err := conv.ConvertBlock(context.Background(), BlockRequest{BlockID: "b", Text: text}, nil)
	if err != nil {
		t.Fatalf("ConvertBlock: %v", err)
	}
	if len(provider.requests) < 2 {
		t.Fatalf("expected chunked requests, got %d", len(provider.requests))
	}
	// 22 characters at 12.5 per second, not the sum of per-chunk estimates.
	if got.DurationMs != 1760 {
		t.Fatalf("DurationMs = %d, want 1760", got.DurationMs)
	}
}

func TestConverterFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		contains string
	}{
		{
			name:     "provider error keeps message",
			provider: &fakeProvider{name: "p", maxChars: 50, fail: map[string]error{"Hello.": errors.New("quota exceeded")}},
			contains: "quota exceeded",
		},
		{
			name:     "empty audio",
			provider: &fakeProvider{name: "p", maxChars: 50, empty: true},
			contains: "empty audio",
		},
		{
			name:     "stitching without duration",
			provider: &fakeProvider{name: "p", maxChars: 50, stitching: true},
			contains: "non-positive duration",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := NewConverter(tt.provider, Options{Concurrency: 2})
			if err != nil {
				t.Fatalf("NewConverter: %v", err)
			}
			_, err = conv.ConvertBlocks(context.Background(), []BlockRequest{{BlockID: "b", Text: "Hello."}})
			if !errors.Is(err, services.ErrProvider) {
				t.Fatalf("expected provider error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Fatalf("error %q does not contain %q", err, tt.contains)
			}
		})
	}
}

func TestConvertBlockRejectsEmptyText(t *testing.T) {
	conv, _ := NewConverter(&fakeProvider{name: "p", maxChars: 50}, Options{})
	_, err := conv.ConvertBlock(context.Background(), BlockRequest{BlockID: "b", Text: "   "}, nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(&fakeProvider{name: "OpenAI"}, &fakeProvider{name: "elevenlabs"}, nil)
	if got := reg.Names(); !reflect.DeepEqual(got, []string{"elevenlabs", "openai"}) {
		t.Fatalf("Names = %v", got)
	}
	if p, err := reg.Get(" openai "); err != nil || p.Name() != "OpenAI" {
		t.Fatalf("Get openai = %v, %v", p, err)
	}
	if _, err := reg.Get("polly"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
