package secrets

import (
	"errors"
	"fmt"
)

var ErrNotImplemented = errors.New("not implemented")

// implements plain "storage" for secret config

type PlainSecretProvider struct {
	GenericConfig
}

func NewPlainSecretProviderFromConfig(cfg GenericConfig) *PlainSecretProvider {
	return &PlainSecretProvider{
		GenericConfig: cfg,
	}
}

var _ SecretStorage = &PlainSecretProvider{}

func (fp *PlainSecretProvider) SetSecret(name string, secret []byte) error {
	return ErrNotImplemented // and not really possible to implement...
}

func (fp *PlainSecretProvider) GetSecret(name string) (secret []byte, err error) {
	b := []byte(name)

	if fp.Base64 {
		encoder := encoderFromConfig(fp.GenericConfig)
		result := make([]byte, encoder.DecodedLen(len(b)))

		written, err := encoder.Decode(result, b)
		if err != nil {
			return nil, fmt.Errorf("base64 decoding: %w", err)
		}

		return result[:written], nil
	}

	return b, nil
}
