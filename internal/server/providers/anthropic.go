package providers

import (
	"context"
	"net/http"
)

const anthropicAPIVersion = "2023-06-01"

type anthropic struct {
	client
}

// NewAnthropic returns the provider for Anthropic API keys. baseURL overrides
// the production endpoint, for tests.
func NewAnthropic(baseURL string) Provider {
	return &anthropic{client: newClient(
		"anthropic",
		baseURL,
		"https://api.anthropic.com",
		`^sk-ant-[A-Za-z0-9_-]{24,}$`,
	)}
}

// CheckLiveness lists models, the cheapest read-only call that requires a
// valid key.
func (a *anthropic) CheckLiveness(ctx context.Context, raw string) error {
	ctx, cancel := context.WithTimeout(ctx, livenessRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("x-api-key", raw)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	return a.do(req)
}
