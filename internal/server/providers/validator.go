package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keyward/keyward/internal/logging"
)

// metric label values for validation outcomes
const (
	outcomeInvalidFormat      = "invalid_format"
	outcomeConnectivityFailed = "connectivity_failed"
	outcomeSuccess            = "success"
)

// ValidationResult is the outcome of validating a single key. Format and
// connectivity failures are values, not errors; the validator never fails a
// caller because a provider misbehaved.
type ValidationResult struct {
	Valid     bool
	Reason    string
	CheckedAt time.Time
}

// Validator runs the format check and then the liveness check for a
// provider/key pair. It is stateless and safe for concurrent use.
type Validator struct {
	registry *Registry

	// attempts is incremented exactly once per Validate call against a known
	// provider, labelled by provider and outcome.
	attempts *prometheus.CounterVec
	// unknownAttempts is incremented for validations against providers that
	// are not registered.
	unknownAttempts prometheus.Counter

	// reportError forwards unexpected provider failures to the error
	// tracking sink. Best effort; never blocks validation.
	reportError func(error)
}

func NewValidator(registry *Registry, attempts *prometheus.CounterVec, unknownAttempts prometheus.Counter, reportError func(error)) *Validator {
	if reportError == nil {
		reportError = func(error) {}
	}
	return &Validator{
		registry:        registry,
		attempts:        attempts,
		unknownAttempts: unknownAttempts,
		reportError:     reportError,
	}
}

// Validate checks the format of raw for the given provider kind and then
// probes the provider's API with it. The raw key never appears in logs,
// metrics, or the returned result.
func (v *Validator) Validate(ctx context.Context, kind, raw string) ValidationResult {
	checkedAt := time.Now().UTC()

	provider, err := v.registry.Lookup(kind)
	if err != nil {
		v.unknownAttempts.Inc()
		return ValidationResult{Valid: false, Reason: "unsupported provider", CheckedAt: checkedAt}
	}

	if !provider.MatchesFormat(raw) {
		v.attempts.WithLabelValues(kind, outcomeInvalidFormat).Inc()
		return ValidationResult{Valid: false, Reason: "invalid key format", CheckedAt: checkedAt}
	}

	if err := v.checkLiveness(ctx, provider, raw); err != nil {
		v.attempts.WithLabelValues(kind, outcomeConnectivityFailed).Inc()
		logging.L.Debug().
			Str("provider", kind).
			Err(err).
			Msg("liveness check failed")
		return ValidationResult{
			Valid:     false,
			Reason:    fmt.Sprintf("connectivity test failed: %v", err),
			CheckedAt: checkedAt,
		}
	}

	v.attempts.WithLabelValues(kind, outcomeSuccess).Inc()
	return ValidationResult{Valid: true, CheckedAt: checkedAt}
}

// checkLiveness isolates the provider call. A panicking provider client is
// reported and converted to a connectivity failure so that one provider's
// misbehavior can never crash the periodic job or the store.
func (v *Validator) checkLiveness(ctx context.Context, provider Provider, raw string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %v client panic: %v", provider.Kind(), r)
			v.reportError(err)
		}
	}()

	return provider.CheckLiveness(ctx, raw)
}
