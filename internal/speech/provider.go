package speech

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"lectern/internal/services"
	"lectern/internal/timing"
)

// Alignment is the character-level timing returned by stitching providers.
type Alignment = timing.Alignment

// Request is a single provider call.
type Request struct {
	Text               string
	VoiceID            string
	Model              string
	PreviousText       string
	NextText           string
	PreviousRequestIDs []string
}

// Response is the provider's answer to a Request. DurationMs is zero when the
// provider does not report a native duration.
type Response struct {
	Audio      []byte
	DurationMs int64
	RequestID  string
	Alignment  *Alignment
}

// Provider is a text-to-speech backend.
type Provider interface {
	Name() string
	MaxChars() int
	Synthesize(ctx context.Context, req Request) (Response, error)
}

// Stitcher is implemented by providers that accept previous/next context and
// request ids and return character alignment.
type Stitcher interface {
	Provider
	SupportsStitching() bool
}

// SupportsStitching reports the provider's behaviour class.
func SupportsStitching(p Provider) bool {
	s, ok := p.(Stitcher)
	return ok && s.SupportsStitching()
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry indexes providers by their lower-cased Name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[strings.ToLower(p.Name())] = p
		}
	}
	return r
}

// Get returns the named provider or a configuration error.
func (r *Registry) Get(name string) (Provider, error) {
	if r != nil {
		if p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]; ok {
			return p, nil
		}
	}
	return nil, services.Wrap(services.ErrConfiguration, "speech", "resolve provider",
		fmt.Sprintf("provider %q is not configured", name), nil)
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
