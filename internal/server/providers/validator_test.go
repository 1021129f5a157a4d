package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gotest.tools/v3/assert"

	"github.com/keyward/keyward/metrics"
)

func newTestValidator(t *testing.T, registry *Registry) (*Validator, *prometheus.CounterVec, prometheus.Counter) {
	t.Helper()
	promRegistry := prometheus.NewRegistry()
	attempts := metrics.NewValidateAttempts(promRegistry)
	unknown := metrics.NewUnknownProviderAttempts(promRegistry)
	return NewValidator(registry, attempts, unknown, nil), attempts, unknown
}

// recordingProvider counts liveness calls so tests can assert the format
// check short-circuits before any network activity.
type recordingProvider struct {
	kind          string
	format        bool
	livenessCalls int
	livenessErr   error
}

func (p *recordingProvider) Kind() string              { return p.kind }
func (p *recordingProvider) MatchesFormat(string) bool { return p.format }

func (p *recordingProvider) CheckLiveness(context.Context, string) error {
	p.livenessCalls++
	return p.livenessErr
}

func TestValidateUnknownProvider(t *testing.T) {
	validator, attempts, unknown := newTestValidator(t, NewRegistry())

	result := validator.Validate(context.Background(), "acme", "sk-whatever")

	assert.Assert(t, !result.Valid)
	assert.Equal(t, result.Reason, "unsupported provider")
	assert.Equal(t, float64(1), testutil.ToFloat64(unknown))
	assert.Equal(t, 0, testutil.CollectAndCount(attempts))
}

func TestValidateInvalidFormatSkipsLivenessCall(t *testing.T) {
	provider := &recordingProvider{kind: "acme", format: false}
	validator, attempts, _ := newTestValidator(t, NewRegistry(provider))

	result := validator.Validate(context.Background(), "acme", "not-a-key")

	assert.Assert(t, !result.Valid)
	assert.Equal(t, result.Reason, "invalid key format")
	assert.Equal(t, 0, provider.livenessCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(attempts.WithLabelValues("acme", "invalid_format")))
}

func TestValidateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/v1/models")
		assert.Equal(t, r.Header.Get("Authorization"), "Bearer sk-"+strings.Repeat("a", 48))
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	validator, attempts, _ := newTestValidator(t, NewRegistry(NewOpenAI(srv.URL)))

	result := validator.Validate(context.Background(), "openai", "sk-"+strings.Repeat("a", 48))

	assert.Assert(t, result.Valid)
	assert.Equal(t, result.Reason, "")
	assert.Assert(t, !result.CheckedAt.IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(attempts.WithLabelValues("openai", "success")))
}

func TestValidateRejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	validator, attempts, _ := newTestValidator(t, NewRegistry(NewAnthropic(srv.URL)))

	result := validator.Validate(context.Background(), "anthropic", "sk-ant-"+strings.Repeat("a", 30))

	assert.Assert(t, !result.Valid)
	assert.Assert(t, strings.HasPrefix(result.Reason, "connectivity test failed:"), result.Reason)
	// the raw key must never leak into the result
	assert.Assert(t, !strings.Contains(result.Reason, "sk-ant-"))
	assert.Equal(t, float64(1), testutil.ToFloat64(attempts.WithLabelValues("anthropic", "connectivity_failed")))
}

func TestValidateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	provider := NewAnthropic(srv.URL).(*anthropic)
	provider.http = &http.Client{Timeout: 50 * time.Millisecond}

	validator, attempts, _ := newTestValidator(t, NewRegistry(provider))

	result := validator.Validate(context.Background(), "anthropic", "sk-ant-"+strings.Repeat("a", 30))

	assert.Assert(t, !result.Valid)
	assert.Assert(t, strings.HasPrefix(result.Reason, "connectivity test failed:"), result.Reason)
	assert.Equal(t, float64(1), testutil.ToFloat64(attempts.WithLabelValues("anthropic", "connectivity_failed")))
}

type panickyProvider struct {
	recordingProvider
}

func (p *panickyProvider) CheckLiveness(context.Context, string) error {
	panic("client bug")
}

func TestValidateRecoversProviderPanic(t *testing.T) {
	var reported error
	promRegistry := prometheus.NewRegistry()
	validator := NewValidator(
		NewRegistry(&panickyProvider{recordingProvider{kind: "acme", format: true}}),
		metrics.NewValidateAttempts(promRegistry),
		metrics.NewUnknownProviderAttempts(promRegistry),
		func(err error) { reported = err },
	)

	result := validator.Validate(context.Background(), "acme", "anything")

	assert.Assert(t, !result.Valid)
	assert.Assert(t, strings.HasPrefix(result.Reason, "connectivity test failed:"), result.Reason)
	assert.ErrorContains(t, reported, "panic")
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry()

	p, err := registry.Lookup("anthropic")
	assert.NilError(t, err)
	assert.Equal(t, p.Kind(), "anthropic")

	_, err = registry.Lookup("acme")
	assert.ErrorContains(t, err, "unsupported provider")
}

func TestKeyFormats(t *testing.T) {
	registry := NewRegistry()

	type testCase struct {
		provider string
		key      string
		expected bool
	}

	run := func(t *testing.T, tc testCase) {
		p, err := registry.Lookup(tc.provider)
		assert.NilError(t, err)
		assert.Equal(t, tc.expected, p.MatchesFormat(tc.key))
	}

	testCases := []testCase{
		{provider: "openai", key: "sk-" + strings.Repeat("a", 48), expected: true},
		{provider: "openai", key: "sk-" + strings.Repeat("a", 47), expected: false},
		{provider: "openai", key: "sk-" + strings.Repeat("a", 48) + "\nmore", expected: false},
		{provider: "openai", key: "pk-" + strings.Repeat("a", 48), expected: false},
		{provider: "anthropic", key: "sk-ant-" + strings.Repeat("x", 30), expected: true},
		{provider: "anthropic", key: "sk-ant-short", expected: false},
		{provider: "cohere", key: strings.Repeat("c", 40), expected: true},
		{provider: "cohere", key: strings.Repeat("c", 39), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.provider+"/"+tc.key[:min(len(tc.key), 12)], func(t *testing.T) {
			run(t, tc)
		})
	}
}
