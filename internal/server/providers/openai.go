package providers

import (
	"context"
	"net/http"
)

type openai struct {
	client
}

// NewOpenAI returns the provider for OpenAI API keys. baseURL overrides the
// production endpoint, for tests.
func NewOpenAI(baseURL string) Provider {
	return &openai{client: newClient(
		"openai",
		baseURL,
		"https://api.openai.com",
		`^sk-[A-Za-z0-9]{48}$`,
	)}
}

func (o *openai) CheckLiveness(ctx context.Context, raw string) error {
	ctx, cancel := context.WithTimeout(ctx, livenessRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+raw)

	return o.do(req)
}
