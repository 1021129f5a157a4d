// Package providers implements the registry of supported credential
// providers and the validation of keys against them.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/keyward/keyward/internal"
)

// livenessRequestTimeout bounds every provider liveness call. A call that
// exceeds the timeout is treated as a connectivity failure.
const livenessRequestTimeout = time.Second * 5

// Provider is a supported third-party credential issuer. Implementations are
// stateless; a single instance serves all validations for its kind.
type Provider interface {
	// Kind is the unique provider identifier, eg "anthropic".
	Kind() string
	// MatchesFormat reports whether raw has the shape of a key issued by
	// this provider. The match is anchored to the whole string.
	MatchesFormat(raw string) bool
	// CheckLiveness performs a minimal, side-effect-free API call using raw
	// as the credential. A nil return means the provider currently accepts
	// the key. The error must never contain the raw key.
	CheckLiveness(ctx context.Context, raw string) error
}

// Registry is the fixed set of providers, populated at startup. Adding a
// provider means registering a new implementation; the set never changes at
// runtime.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers. Passing no
// providers registers the default set.
func NewRegistry(providers ...Provider) *Registry {
	if len(providers) == 0 {
		providers = []Provider{
			NewAnthropic(""),
			NewOpenAI(""),
			NewCohere(""),
		}
	}

	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, ok := r.providers[p.Kind()]; ok {
			panic(fmt.Sprintf("duplicate provider kind %q", p.Kind()))
		}
		r.providers[p.Kind()] = p
	}
	return r
}

// Lookup returns the provider registered for kind, or
// internal.ErrUnsupportedProvider.
func (r *Registry) Lookup(kind string) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", internal.ErrUnsupportedProvider, kind)
	}
	return p, nil
}

// Kinds returns the registered provider identifiers.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// client is the base for providers that probe a REST endpoint.
type client struct {
	kind    string
	baseURL string
	pattern *regexp.Regexp
	http    *http.Client
}

func newClient(kind, baseURL, defaultURL, pattern string) client {
	if baseURL == "" {
		baseURL = defaultURL
	}
	return client{
		kind:    kind,
		baseURL: baseURL,
		pattern: regexp.MustCompile(pattern),
		http:    &http.Client{Timeout: livenessRequestTimeout},
	}
}

func (c client) Kind() string {
	return c.kind
}

func (c client) MatchesFormat(raw string) bool {
	return c.pattern.MatchString(raw)
}

// do sends the request and translates the response into a liveness result.
// The response body is discarded; only the status matters.
func (c client) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		// the raw key lives in a request header, never in the url, so the
		// error from the http client is safe to return
		return fmt.Errorf("request %v: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("provider rate limit exceeded (status %d)", resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("provider rejected the key (status %d)", resp.StatusCode)
	default:
		return fmt.Errorf("unexpected status %d from provider", resp.StatusCode)
	}
}
