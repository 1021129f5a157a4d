package secrets

import (
	"encoding/base64"
	"fmt"
	"os"
	"path"
)

// implements file storage for secret config

type GenericConfig struct {
	Base64           bool `yaml:"base64"`
	Base64URLEncoded bool `yaml:"base64UrlEncoded"`
	Base64Raw        bool `yaml:"base64Raw"`
}

type FileConfig struct {
	GenericConfig `yaml:",inline"`
	Path          string `yaml:"path"`
}

type FileSecretProvider struct {
	FileConfig
}

func NewFileSecretProviderFromConfig(cfg FileConfig) *FileSecretProvider {
	return &FileSecretProvider{
		FileConfig: cfg,
	}
}

var _ SecretStorage = &FileSecretProvider{}

func (fp *FileSecretProvider) SetSecret(name string, secret []byte) error {
	fullPath := name

	if len(fp.Path) > 0 {
		fullPath = path.Join(fp.Path, name)
	}

	dir := path.Dir(fullPath)
	if len(dir) > 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", fp.Path, err)
		}
	}

	var b []byte

	if fp.Base64 {
		b = make([]byte, fp.encoder().EncodedLen(len(secret)))
		fp.encoder().Encode(b, secret)
	} else {
		b = make([]byte, len(secret))
		copy(b, secret)
	}

	if err := os.WriteFile(fullPath, b, 0o600); err != nil {
		return fmt.Errorf("writing file %q: %w", fullPath, err)
	}

	return nil
}

func (fp *FileSecretProvider) GetSecret(name string) (secret []byte, err error) {
	fullPath := path.Join(fp.Path, name)

	b, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("reading file %q: %w", fullPath, err)
	}

	if fp.Base64 {
		result := make([]byte, fp.encoder().DecodedLen(len(b)))

		written, err := fp.encoder().Decode(result, b)
		if err != nil {
			return nil, fmt.Errorf("base64 decoding file %q: %w", fullPath, err)
		}

		return result[:written], nil
	}

	return b, nil
}

func (fp *FileSecretProvider) encoder() *base64.Encoding {
	return encoderFromConfig(fp.GenericConfig)
}

func encoderFromConfig(cfg GenericConfig) *base64.Encoding {
	if cfg.Base64URLEncoded {
		if cfg.Base64Raw {
			return base64.RawURLEncoding
		}
		return base64.URLEncoding
	}
	if cfg.Base64Raw {
		return base64.RawStdEncoding
	}
	return base64.StdEncoding
}
