package secrets

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func newTestKey(t *testing.T) *SymmetricKey {
	t.Helper()

	provider := NewNativeKeyProvider(NewFileSecretProviderFromConfig(FileConfig{
		Path: t.TempDir(),
	}))

	key, err := provider.GenerateDataKey("")
	assert.NilError(t, err)
	return key
}

func TestSealUnsealRoundTrip(t *testing.T) {
	key := newTestKey(t)

	plain := []byte("sk-verysecret-key-material")

	sealed, err := Seal(key, plain)
	assert.NilError(t, err)
	assert.Assert(t, string(sealed) != string(plain))

	unsealed, err := Unseal(key, sealed)
	assert.NilError(t, err)
	assert.DeepEqual(t, plain, unsealed)
}

func TestUnsealTamperedCiphertext(t *testing.T) {
	key := newTestKey(t)

	sealed, err := Seal(key, []byte("payload"))
	assert.NilError(t, err)

	// flip a byte in the middle of the envelope
	tampered := make([]byte, len(sealed))
	copy(tampered, sealed)
	tampered[len(tampered)/2] ^= 0xff

	_, err = Unseal(key, tampered)
	assert.Assert(t, errors.Is(err, ErrDecrypt), "expected ErrDecrypt, got %v", err)
}

func TestUnsealWithWrongKey(t *testing.T) {
	key := newTestKey(t)
	otherKey := newTestKey(t)

	sealed, err := Seal(key, []byte("payload"))
	assert.NilError(t, err)

	_, err = Unseal(otherKey, sealed)
	assert.Assert(t, errors.Is(err, ErrDecrypt), "expected ErrDecrypt, got %v", err)
}

func TestUnsealGarbage(t *testing.T) {
	key := newTestKey(t)

	_, err := Unseal(key, []byte("not an envelope at all"))
	assert.Assert(t, errors.Is(err, ErrDecrypt), "expected ErrDecrypt, got %v", err)
}

func TestNativeKeyProviderRoundTrip(t *testing.T) {
	storage := NewFileSecretProviderFromConfig(FileConfig{Path: t.TempDir()})
	provider := NewNativeKeyProvider(storage)

	key, err := provider.GenerateDataKey("")
	assert.NilError(t, err)

	recovered, err := provider.DecryptDataKey(key.RootKeyID, key.Encrypted)
	assert.NilError(t, err)
	assert.DeepEqual(t, key.unencrypted, recovered.unencrypted)
}

func TestDecryptDataKeyMissingRootKey(t *testing.T) {
	provider := NewNativeKeyProvider(NewFileSecretProviderFromConfig(FileConfig{
		Path: t.TempDir(),
	}))

	_, err := provider.DecryptDataKey("nokey", []byte("irrelevant"))
	assert.Assert(t, is.ErrorContains(err, "not found"))
}

func TestSecretStorageBackends(t *testing.T) {
	storages := map[string]SecretStorage{
		"file":        NewFileSecretProviderFromConfig(FileConfig{Path: t.TempDir()}),
		"file-base64": NewFileSecretProviderFromConfig(FileConfig{GenericConfig: GenericConfig{Base64: true}, Path: t.TempDir()}),
		"env":         NewEnvSecretProviderFromConfig(GenericConfig{}),
		"env-base64":  NewEnvSecretProviderFromConfig(GenericConfig{Base64: true}),
	}

	for name, storage := range storages {
		t.Run(name, func(t *testing.T) {
			_, err := storage.GetSecret("does-not-exist")
			assert.Assert(t, errors.Is(err, ErrNotFound))

			err = storage.SetSecret("testing_a_secret", []byte("the secret"))
			assert.NilError(t, err)

			got, err := storage.GetSecret("testing_a_secret")
			assert.NilError(t, err)
			assert.Equal(t, "the secret", string(got))
		})
	}
}
