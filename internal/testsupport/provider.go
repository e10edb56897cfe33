package testsupport

import (
	"context"
	"fmt"
	"sync"

	"lectern/internal/speech"
)

// SpeechProvider is a scripted speech.Provider. Audio is the request text as
// bytes. Stitching providers return alignment at StepSeconds per character;
// others return NativeMs (zero means no native duration).
type SpeechProvider struct {
	ProviderName string
	Limit        int
	Stitch       bool
	StepSeconds  float64
	NativeMs     int64

	mu       sync.Mutex
	requests []speech.Request
	failures map[string]error
}

// NewStitchingProvider returns a fake that behaves like a context-stitching
// provider with 10ms per character.
func NewStitchingProvider(maxChars int) *SpeechProvider {
	return &SpeechProvider{ProviderName: "elevenlabs", Limit: maxChars, Stitch: true, StepSeconds: 0.01}
}

// NewEstimatingProvider returns a fake without alignment or native duration.
func NewEstimatingProvider(maxChars int) *SpeechProvider {
	return &SpeechProvider{ProviderName: "openai", Limit: maxChars}
}

func (p *SpeechProvider) Name() string            { return p.ProviderName }
func (p *SpeechProvider) MaxChars() int           { return p.Limit }
func (p *SpeechProvider) SupportsStitching() bool { return p.Stitch }

// FailOn makes requests for text fail with err.
func (p *SpeechProvider) FailOn(text string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures == nil {
		p.failures = make(map[string]error)
	}
	p.failures[text] = err
}

// Requests returns a copy of every request received.
func (p *SpeechProvider) Requests() []speech.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]speech.Request(nil), p.requests...)
}

func (p *SpeechProvider) Synthesize(ctx context.Context, req speech.Request) (speech.Response, error) {
	if err := ctx.Err(); err != nil {
		return speech.Response{}, err
	}
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests)
	err := p.failures[req.Text]
	p.mu.Unlock()
	if err != nil {
		return speech.Response{}, err
	}
	resp := speech.Response{
		Audio:      []byte(req.Text),
		RequestID:  fmt.Sprintf("%s-req-%d", p.ProviderName, n),
		DurationMs: p.NativeMs,
	}
	if p.Stitch {
		step := p.StepSeconds
		if step <= 0 {
			step = 0.01
		}
		alignment := &speech.Alignment{}
		for i, r := range []rune(req.Text) {
			alignment.Characters = append(alignment.Characters, string(r))
			alignment.StartTimeSeconds = append(alignment.StartTimeSeconds, float64(i)*step)
			alignment.EndTimeSeconds = append(alignment.EndTimeSeconds, float64(i+1)*step)
		}
		resp.Alignment = alignment
	}
	return resp, nil
}
