package secrets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// implements env storage for secret config

type EnvSecretProvider struct {
	GenericConfig
}

func NewEnvSecretProviderFromConfig(cfg GenericConfig) *EnvSecretProvider {
	return &EnvSecretProvider{
		GenericConfig: cfg,
	}
}

var _ SecretStorage = &EnvSecretProvider{}

var invalidNameChars = regexp.MustCompile(`[^\w\d-]`)

func (ep *EnvSecretProvider) SetSecret(name string, secret []byte) error {
	if strings.Contains(name, "$") {
		return errors.New("env secrets cannot contain $")
	}

	name = invalidNameChars.ReplaceAllString(name, "_")

	var b []byte

	if ep.Base64 {
		b = make([]byte, ep.encoder().EncodedLen(len(secret)))
		ep.encoder().Encode(b, secret)
	} else {
		b = make([]byte, len(secret))
		copy(b, secret)
	}

	if err := os.Setenv(name, string(b)); err != nil {
		return fmt.Errorf("setenv: %w", err)
	}

	return nil
}

func (ep *EnvSecretProvider) GetSecret(name string) (secret []byte, err error) {
	var b []byte
	if strings.Contains(name, "$") {
		b = []byte(os.ExpandEnv(name))
	} else {
		name = invalidNameChars.ReplaceAllString(name, "_")
		b = []byte(os.Getenv(name))
	}

	if _, present := os.LookupEnv(name); !present {
		return nil, ErrNotFound
	}

	if ep.Base64 {
		result := make([]byte, ep.encoder().DecodedLen(len(b)))

		written, err := ep.encoder().Decode(result, b)
		if err != nil {
			return nil, fmt.Errorf("base64 decoding %q: %w", name, err)
		}

		return result[:written], nil
	}

	return b, nil
}

func (ep *EnvSecretProvider) encoder() *base64.Encoding {
	return encoderFromConfig(ep.GenericConfig)
}
