package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/server/data"
	"github.com/keyward/keyward/internal/server/models"
	"github.com/keyward/keyward/internal/server/providers"
	"github.com/keyward/keyward/metrics"
)

type fakeProvider struct {
	kind        string
	prefix      string
	livenessErr error
}

func (f fakeProvider) Kind() string { return f.kind }

func (f fakeProvider) MatchesFormat(raw string) bool {
	return strings.HasPrefix(raw, f.prefix)
}

func (f fakeProvider) CheckLiveness(_ context.Context, _ string) error {
	return f.livenessErr
}

type testEnv struct {
	db         *gorm.DB
	registry   *prometheus.Registry
	validator  *providers.Validator
	activeKeys *prometheus.GaugeVec
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	models.SkipSymmetricKey = true
	t.Cleanup(func() {
		models.SkipSymmetricKey = false
	})

	driver, err := data.NewSQLiteDriver("file::memory:")
	assert.NilError(t, err)

	db, err := data.NewDB(driver, data.NewDBOptions{})
	assert.NilError(t, err)

	promRegistry := prometheus.NewRegistry()
	registry := providers.NewRegistry(
		fakeProvider{kind: "anthropic", prefix: "sk-ant-"},
		fakeProvider{kind: "flaky", prefix: "fk-", livenessErr: errors.New("connection refused")},
	)

	return &testEnv{
		db:       db,
		registry: promRegistry,
		validator: providers.NewValidator(
			registry,
			metrics.NewValidateAttempts(promRegistry),
			metrics.NewUnknownProviderAttempts(promRegistry),
			nil,
		),
		activeKeys: metrics.NewActiveKeys(promRegistry),
	}
}

func (env *testEnv) requestContext(t *testing.T, subject string) *gin.Context {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/api-keys", nil)
	c.Set(ContextKeyDB, env.db)
	c.Set(ContextKeySubject, subject)
	c.Set(ContextKeyValidator, env.validator)
	c.Set(ContextKeyActiveKeys, env.activeKeys)
	return c
}

func TestAddKey(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	key, err := AddKey(c, "anthropic", "sk-ant-REDACTED", "prod key")
	assert.NilError(t, err)
	assert.Assert(t, key.ID != 0)
	assert.Assert(t, key.IsActive)
	assert.Equal(t, key.OwnerID, "alice@example.com")
	assert.Equal(t, string(key.Secret), "sk-ant-REDACTED")
	assert.Assert(t, !strings.Contains(key.KeyHint, "api03-aaaabbbbccccdddd"))

	entries, err := data.ListAuditEntries(env.db, data.ByAction(models.AuditActionAdded))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(entries, 1))
	assert.Equal(t, entries[0].Actor, "alice@example.com")
	assert.Equal(t, entries[0].APIKeyID, key.ID)

	gauge := env.activeKeys.WithLabelValues("anthropic")
	assert.Equal(t, testutil.ToFloat64(gauge), float64(1))
}

func TestAddKeyInvalidFormat(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	_, err := AddKey(c, "anthropic", "not-a-key", "")

	var vErr ValidationError
	assert.Assert(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Reason, "invalid key format")

	// nothing stored, nothing audited
	keys, err := data.ListAPIKeys(env.db)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(keys, 0))

	entries, err := data.ListAuditEntries(env.db)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(entries, 0))
}

func TestAddKeyConnectivityFailure(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	_, err := AddKey(c, "flaky", "fk-0000000000", "")

	var vErr ValidationError
	assert.Assert(t, errors.As(err, &vErr))
	assert.Assert(t, is.Contains(vErr.Reason, "connectivity test failed"))
}

func TestAddKeyUnsupportedProvider(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	_, err := AddKey(c, "acme", "sk-ant-whatever", "")

	var vErr ValidationError
	assert.Assert(t, errors.As(err, &vErr))
	assert.Equal(t, vErr.Reason, "unsupported provider")
}

func TestListKeysScopedToOwner(t *testing.T) {
	env := setupEnv(t)

	alice := env.requestContext(t, "alice@example.com")
	_, err := AddKey(alice, "anthropic", "sk-ant-aaaa1111", "a1")
	assert.NilError(t, err)
	_, err = AddKey(alice, "anthropic", "sk-ant-aaaa2222", "a2")
	assert.NilError(t, err)

	bob := env.requestContext(t, "bob@example.com")
	_, err = AddKey(bob, "anthropic", "sk-ant-bbbb1111", "b1")
	assert.NilError(t, err)

	keys, err := ListKeys(alice, "")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(keys, 2))

	keys, err = ListKeys(bob, "anthropic")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(keys, 1))
	assert.Equal(t, keys[0].Name, "b1")
}

func TestGetKeyOtherOwnerNotFound(t *testing.T) {
	env := setupEnv(t)

	alice := env.requestContext(t, "alice@example.com")
	key, err := AddKey(alice, "anthropic", "sk-ant-aaaa1111", "")
	assert.NilError(t, err)

	bob := env.requestContext(t, "bob@example.com")
	_, err = GetKey(bob, key.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)
}

func TestDeactivateKey(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	key, err := AddKey(c, "anthropic", "sk-ant-aaaa1111", "")
	assert.NilError(t, err)

	assert.NilError(t, DeactivateKey(c, key.ID))

	got, err := GetKey(c, key.ID)
	assert.NilError(t, err)
	assert.Assert(t, !got.IsActive)

	entries, err := data.ListAuditEntries(env.db, data.ByAction(models.AuditActionDeleted))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(entries, 1))

	gauge := env.activeKeys.WithLabelValues("anthropic")
	assert.Equal(t, testutil.ToFloat64(gauge), float64(0))

	// a second deactivate is a no-op, and does not append another entry or
	// move the gauge
	assert.NilError(t, DeactivateKey(c, key.ID))

	entries, err = data.ListAuditEntries(env.db, data.ByAction(models.AuditActionDeleted))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(entries, 1))
	assert.Equal(t, testutil.ToFloat64(gauge), float64(0))
}

func TestDeactivateKeyOtherOwner(t *testing.T) {
	env := setupEnv(t)

	alice := env.requestContext(t, "alice@example.com")
	key, err := AddKey(alice, "anthropic", "sk-ant-aaaa1111", "")
	assert.NilError(t, err)

	bob := env.requestContext(t, "bob@example.com")
	err = DeactivateKey(bob, key.ID)
	assert.ErrorIs(t, err, internal.ErrNotFound)

	// alice's key is untouched
	got, err := GetKey(alice, key.ID)
	assert.NilError(t, err)
	assert.Assert(t, got.IsActive)
}

func TestReactivateKey(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	key, err := AddKey(c, "anthropic", "sk-ant-aaaa1111", "")
	assert.NilError(t, err)

	key.IsActive = false
	key.ValidationAttempts = 4
	assert.NilError(t, data.SaveAPIKey(env.db, key))

	updated, err := ReactivateKey(c, key.ID)
	assert.NilError(t, err)
	assert.Assert(t, updated.IsActive)
	assert.Equal(t, updated.ValidationAttempts, 0)

	entries, err := data.ListAuditEntries(env.db, data.ByAction(models.AuditActionUpdated))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(entries, 1))
	assert.Equal(t, entries[0].Details["reactivated"], true)

	// reactivating an active key is a no-op
	_, err = ReactivateKey(c, key.ID)
	assert.NilError(t, err)

	entries, err = data.ListAuditEntries(env.db, data.ByAction(models.AuditActionUpdated))
	assert.NilError(t, err)
	assert.Assert(t, is.Len(entries, 1))
}

func TestListAuditEvents(t *testing.T) {
	env := setupEnv(t)
	c := env.requestContext(t, "alice@example.com")

	key, err := AddKey(c, "anthropic", "sk-ant-aaaa1111", "")
	assert.NilError(t, err)
	assert.NilError(t, DeactivateKey(c, key.ID))

	events, err := ListAuditEvents(c, AuditEventFilters{})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(events, 2))
	assert.Equal(t, events[0].Action, models.AuditActionAdded)
	assert.Equal(t, events[1].Action, models.AuditActionDeleted)

	events, err = ListAuditEvents(c, AuditEventFilters{Action: "DELETED"})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(events, 1))

	events, err = ListAuditEvents(c, AuditEventFilters{Provider: "openai"})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(events, 0))
}

func TestListAuditEventsByActor(t *testing.T) {
	env := setupEnv(t)
	alice := env.requestContext(t, "alice@example.com")
	bob := env.requestContext(t, "bob@example.com")

	key, err := AddKey(alice, "anthropic", "sk-ant-aaaa1111", "")
	assert.NilError(t, err)
	assert.NilError(t, DeactivateKey(alice, key.ID))

	_, err = AddKey(bob, "anthropic", "sk-ant-bbbb2222", "")
	assert.NilError(t, err)

	// the log is global, but actor narrows it to a single owner's actions
	events, err := ListAuditEvents(bob, AuditEventFilters{Actor: "alice@example.com"})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(events, 2))
	for _, event := range events {
		assert.Equal(t, event.Actor, "alice@example.com")
	}

	events, err = ListAuditEvents(bob, AuditEventFilters{Actor: "bob@example.com"})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(events, 1))
	assert.Equal(t, events[0].Action, models.AuditActionAdded)

	events, err = ListAuditEvents(bob, AuditEventFilters{Actor: models.ActorSystem})
	assert.NilError(t, err)
	assert.Assert(t, is.Len(events, 0))
}
