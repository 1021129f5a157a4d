package providers

import (
	"context"
	"net/http"
)

type cohere struct {
	client
}

// NewCohere returns the provider for Cohere API keys. baseURL overrides the
// production endpoint, for tests.
func NewCohere(baseURL string) Provider {
	return &cohere{client: newClient(
		"cohere",
		baseURL,
		"https://api.cohere.ai",
		`^[A-Za-z0-9]{40}$`,
	)}
}

func (c *cohere) CheckLiveness(ctx context.Context, raw string) error {
	ctx, cancel := context.WithTimeout(ctx, livenessRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+raw)

	return c.do(req)
}
