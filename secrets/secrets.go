// Package secrets implements encryption of secret material at rest, and
// storage backends for the root keys that protect it.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by SecretStorage.GetSecret when no secret exists
// with the requested name.
var ErrNotFound = errors.New("secret not found")

// ErrDecrypt is returned by Unseal when the ciphertext cannot be
// authenticated. Tampered or foreign ciphertext always fails with this error,
// it never produces garbage plaintext.
var ErrDecrypt = errors.New("decryption failure")

// SecretStorage is implemented by backends that can store arbitrary secrets,
// such as the root key used to encrypt data keys.
type SecretStorage interface {
	SetSecret(name string, secret []byte) error
	GetSecret(name string) (secret []byte, err error)
}

// GetSecret resolves a secret reference of the form "kind:name" against the
// configured storage backends, eg "env:DB_PASSWORD" or "file:/var/run/pw".
// A reference with no known storage prefix is returned unchanged.
func GetSecret(reference string, storage map[string]SecretStorage) (string, error) {
	if reference == "" {
		return "", nil
	}

	kind, name, found := strings.Cut(reference, ":")
	if !found {
		return reference, nil
	}

	backend, ok := storage[kind]
	if !ok {
		return reference, nil
	}

	secret, err := backend.GetSecret(name)
	if err != nil {
		return "", fmt.Errorf("secret %q: %w", reference, err)
	}

	return string(secret), nil
}

// SymmetricKeyProvider is implemented by backends that manage a root key and
// use it to protect data keys. The root key never leaves the provider; only
// the encrypted data key is stored by the caller.
type SymmetricKeyProvider interface {
	// GenerateDataKey creates a new data key protected by the root key
	// identified by rootKeyID. If rootKeyID is empty a default root key is
	// created or referenced.
	GenerateDataKey(rootKeyID string) (*SymmetricKey, error)
	// DecryptDataKey decrypts a previously generated data key.
	DecryptDataKey(rootKeyID string, keyData []byte) (*SymmetricKey, error)
}

// SymmetricKey is a data key used to encrypt and decrypt fields at rest.
type SymmetricKey struct {
	// unencrypted is the plaintext data key. This field *MUST NOT* be persisted.
	unencrypted []byte `json:"-"`
	// Encrypted is the data key encrypted by the root key. Stored by the caller.
	Encrypted []byte `json:"key"`
	// Algorithm used for encryption. Stored by the caller.
	Algorithm string `json:"alg"`
	// RootKeyID identifies the root key that protects this data key.
	RootKeyID string `json:"rkid"`
}

// encryptedPayload is the envelope persisted for every encrypted value. The
// algorithm and root key id travel with the ciphertext so that keys can be
// rotated without re-encrypting every record at once.
type encryptedPayload struct {
	Ciphertext []byte `json:"d"` // base64 encoded
	Algorithm  string `json:"a"` // name of the algorithm used to encrypt the Ciphertext
	KeyID      string `json:"i"` // id of the root key protecting the data key
	Nonce      []byte `json:"n"` // crypto-random, unique per encryption, size = block size
}

// cryptoRandRead is a safe read from crypto/rand, checking errors and the
// number of bytes read.
func cryptoRandRead(length int) ([]byte, error) {
	b := make([]byte, length)

	i, err := rand.Read(b)
	if err != nil {
		return nil, fmt.Errorf("crypto/rand read: %w", err)
	}

	if i != length {
		return nil, fmt.Errorf("could not read %d random bytes from crypto/rand, only got %d", length, i)
	}

	return b, nil
}

// Seal encrypts plain with the data key and returns a base64 encoded envelope.
func Seal(key *SymmetricKey, plain []byte) ([]byte, error) {
	if len(key.unencrypted) == 0 {
		return nil, errors.New("missing key")
	}

	if len(key.unencrypted) != keyBlockSizeInBytes {
		return nil, errors.New("expected 256 bit key size")
	}

	blk, err := aes.NewCipher(key.unencrypted)
	if err != nil {
		return nil, err
	}

	aesgcm, err := cipher.NewGCM(blk)
	if err != nil {
		return nil, err
	}

	nonce, err := cryptoRandRead(aesgcm.NonceSize())
	if err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	encrypted := aesgcm.Seal(nil, nonce, plain, nil)

	payload := encryptedPayload{
		Ciphertext: encrypted,
		Algorithm:  key.Algorithm,
		KeyID:      key.RootKeyID,
		Nonce:      nonce,
	}

	jsonPayload, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}

	encoded := make([]byte, base64.RawStdEncoding.EncodedLen(len(jsonPayload)))
	base64.RawStdEncoding.Encode(encoded, jsonPayload)

	return encoded, nil
}

// Unseal decrypts an envelope produced by Seal. Any failure to decode or
// authenticate the payload is reported as ErrDecrypt.
func Unseal(key *SymmetricKey, encoded []byte) ([]byte, error) {
	if len(key.unencrypted) == 0 {
		return nil, errors.New("missing key")
	}

	jsonPayload := make([]byte, base64.RawStdEncoding.DecodedLen(len(encoded)))

	if _, err := base64.RawStdEncoding.Decode(jsonPayload, encoded); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", ErrDecrypt, err)
	}

	payload := &encryptedPayload{}
	if err := json.Unmarshal(jsonPayload, payload); err != nil {
		return nil, fmt.Errorf("%w: unmarshalling payload: %v", ErrDecrypt, err)
	}

	blk, err := aes.NewCipher(key.unencrypted)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aesgcm, err := cipher.NewGCM(blk)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	plaintext, err := aesgcm.Open(nil, payload.Nonce, payload.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening seal: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}
