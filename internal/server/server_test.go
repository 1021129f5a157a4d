package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/keyward/keyward/api"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	providerStub := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(providerStub.Close)

	srv, err := New(Options{
		DBConnectionString: "file::memory:",
		Secrets: []SecretProvider{
			{Kind: "file", Config: FileConfig{Path: t.TempDir()}},
		},
		Providers: ProviderEndpoints{
			AnthropicURL: providerStub.URL,
			OpenAIURL:    providerStub.URL,
			CohereURL:    providerStub.URL,
		},
	})
	assert.NilError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		assert.NilError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		req.Header.Set("X-Auth-Subject", subject)
	}

	resp := httptest.NewRecorder()
	srv.router.ServeHTTP(resp, req)
	return resp
}

func createKeyRequest(t *testing.T, srv *Server, subject, provider, key, name string) api.APIKey {
	t.Helper()
	resp := doRequest(t, srv, http.MethodPost, "/v1/api-keys", subject, api.CreateAPIKeyRequest{
		Provider: provider,
		Key:      key,
		Name:     name,
	})
	assert.Equal(t, resp.Code, http.StatusCreated, resp.Body.String())

	var created api.APIKey
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	return created
}

func TestHealthEndpoint(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, resp.Code, http.StatusOK)
}

func TestAPIRequiresSubject(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/v1/api-keys", "", nil)
	assert.Equal(t, resp.Code, http.StatusUnauthorized)
}

func TestCreateAPIKey(t *testing.T) {
	srv := setupTestServer(t)

	raw := "sk-ant-REDACTED"
	created := createKeyRequest(t, srv, "alice@example.com", "anthropic", raw, "prod")

	assert.Assert(t, created.ID != 0)
	assert.Assert(t, created.Active)
	assert.Equal(t, created.Provider, "anthropic")

	// the raw key never appears in the response
	assert.Assert(t, !strings.Contains(created.KeyHint, raw))
	assert.Assert(t, is.Contains(created.KeyHint, "****"))
}

func TestCreateAPIKeyInvalidFormat(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/v1/api-keys", "alice@example.com", api.CreateAPIKeyRequest{
		Provider: "anthropic",
		Key:      "not-a-valid-key",
	})
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	var apiError api.Error
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &apiError))
	assert.Assert(t, is.Contains(apiError.Message, "invalid key format"))
}

func TestCreateAPIKeyUnknownProvider(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/v1/api-keys", "alice@example.com", api.CreateAPIKeyRequest{
		Provider: "acme",
		Key:      "sk-whatever",
	})
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	var apiError api.Error
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &apiError))
	assert.Assert(t, is.Contains(apiError.Message, "unsupported provider"))
}

func TestCreateAPIKeyMissingFields(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodPost, "/v1/api-keys", "alice@example.com", map[string]string{
		"provider": "anthropic",
	})
	assert.Equal(t, resp.Code, http.StatusBadRequest)

	var apiError api.Error
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &apiError))
	assert.Assert(t, len(apiError.FieldErrors) > 0)
}

func TestListAPIKeysScopedToSubject(t *testing.T) {
	srv := setupTestServer(t)

	createKeyRequest(t, srv, "alice@example.com", "anthropic", "sk-ant-REDACTED", "a")
	createKeyRequest(t, srv, "bob@example.com", "anthropic", "sk-ant-REDACTED", "b")

	resp := doRequest(t, srv, http.MethodGet, "/v1/api-keys", "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusOK)

	var list api.ListResponse[api.APIKey]
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Equal(t, list.Count, 1)
	assert.Equal(t, list.Items[0].Name, "a")
}

func TestDeleteAPIKey(t *testing.T) {
	srv := setupTestServer(t)

	created := createKeyRequest(t, srv, "alice@example.com", "anthropic", "sk-ant-REDACTED", "")

	resp := doRequest(t, srv, http.MethodDelete, "/v1/api-keys/"+created.ID.String(), "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusNoContent)

	resp = doRequest(t, srv, http.MethodGet, "/v1/api-keys/"+created.ID.String(), "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusOK)

	var key api.APIKey
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &key))
	assert.Assert(t, !key.Active)

	// deleting again is a no-op
	resp = doRequest(t, srv, http.MethodDelete, "/v1/api-keys/"+created.ID.String(), "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusNoContent)
}

func TestDeleteAPIKeyOtherSubject(t *testing.T) {
	srv := setupTestServer(t)

	created := createKeyRequest(t, srv, "alice@example.com", "anthropic", "sk-ant-REDACTED", "")

	resp := doRequest(t, srv, http.MethodDelete, "/v1/api-keys/"+created.ID.String(), "bob@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusNotFound)
}

func TestUpdateAPIKeyReactivates(t *testing.T) {
	srv := setupTestServer(t)

	created := createKeyRequest(t, srv, "alice@example.com", "anthropic", "sk-ant-REDACTED", "")

	// deactivate directly, as the validation job would
	err := srv.DB().Table("api_keys").
		Where("id = ?", created.ID).
		Updates(map[string]interface{}{"is_active": false, "validation_attempts": 4}).Error
	assert.NilError(t, err)

	resp := doRequest(t, srv, http.MethodPut, "/v1/api-keys/"+created.ID.String(), "alice@example.com", api.UpdateAPIKeyRequest{Active: true})
	assert.Equal(t, resp.Code, http.StatusOK, resp.Body.String())

	var updated api.APIKey
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &updated))
	assert.Assert(t, updated.Active)
	assert.Equal(t, updated.ValidationAttempts, 0)
}

func TestUpdateAPIKeyRejectsDeactivation(t *testing.T) {
	srv := setupTestServer(t)

	created := createKeyRequest(t, srv, "alice@example.com", "anthropic", "sk-ant-REDACTED", "")

	resp := doRequest(t, srv, http.MethodPut, "/v1/api-keys/"+created.ID.String(), "alice@example.com", api.UpdateAPIKeyRequest{Active: false})
	assert.Equal(t, resp.Code, http.StatusBadRequest)
}

func TestListAuditEvents(t *testing.T) {
	srv := setupTestServer(t)

	created := createKeyRequest(t, srv, "alice@example.com", "anthropic", "sk-ant-REDACTED", "")
	resp := doRequest(t, srv, http.MethodDelete, "/v1/api-keys/"+created.ID.String(), "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusNoContent)

	resp = doRequest(t, srv, http.MethodGet, "/v1/audit-events", "bob@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusOK)

	var list api.ListResponse[api.AuditEvent]
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Equal(t, list.Count, 2)
	assert.Equal(t, list.Items[0].Action, "ADDED")
	assert.Equal(t, list.Items[1].Action, "DELETED")

	resp = doRequest(t, srv, http.MethodGet, "/v1/audit-events?action=ADDED", "bob@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusOK)
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Equal(t, list.Count, 1)

	resp = doRequest(t, srv, http.MethodGet, "/v1/audit-events?actor=alice@example.com", "bob@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusOK)
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Equal(t, list.Count, 2)

	resp = doRequest(t, srv, http.MethodGet, "/v1/audit-events?actor=bob@example.com", "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusOK)
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.Equal(t, list.Count, 0)
}

func TestListProviders(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/v1/providers", "", nil)
	assert.Equal(t, resp.Code, http.StatusOK)

	var list api.ListResponse[string]
	assert.NilError(t, json.Unmarshal(resp.Body.Bytes(), &list))
	assert.DeepEqual(t, list.Items, []string{"anthropic", "cohere", "openai"})
}

func TestGetAPIKeyInvalidID(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/v1/api-keys/%21%21", "alice@example.com", nil)
	assert.Equal(t, resp.Code, http.StatusBadRequest)
}

func TestNotFoundRoute(t *testing.T) {
	srv := setupTestServer(t)

	resp := doRequest(t, srv, http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, resp.Code, http.StatusNotFound)
}

func TestSecretsGetAndSet(t *testing.T) {
	srv := setupTestServer(t)

	// the default providers are always available
	for _, name := range []string{"env", "file", "plaintext"} {
		_, found := srv.secrets[name]
		assert.Assert(t, found, "missing secret provider %v", name)
	}
}

func TestUnknownDatabaseDriver(t *testing.T) {
	_, err := New(Options{DBDriver: "oracle"})
	assert.ErrorContains(t, err, fmt.Sprintf("unknown database driver %q", "oracle"))
}
