package secrets

import (
	"encoding/base64"
	"fmt"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

var DefaultVaultAlgorithm = "aes256-gcm96"

// ensure these interfaces are implemented properly
var (
	_ SymmetricKeyProvider = &VaultSecretProvider{}
	_ SecretStorage        = &VaultSecretProvider{}
)

// VaultSecretProvider stores secrets in the Vault KV engine and protects data
// keys with the Vault transit engine, so the root key never leaves Vault.
type VaultSecretProvider struct {
	VaultConfig
	client *vault.Client
}

type VaultConfig struct {
	TransitMount string `yaml:"transitMount"` // mounting point. defaults to /transit
	SecretMount  string `yaml:"secretMount"`  // mounting point. defaults to /secret
	Token        string `yaml:"token"`
	Namespace    string `yaml:"namespace"`
	Address      string `yaml:"address"`
}

func NewVaultConfig() VaultConfig {
	return VaultConfig{
		TransitMount: "/transit",
		SecretMount:  "/secret",
		Address:      "https://vault",
	}
}

func NewVaultSecretProviderFromConfig(cfg VaultConfig) (*VaultSecretProvider, error) {
	c, err := vault.NewClient(&vault.Config{
		Address: cfg.Address,
	})
	if err != nil {
		return nil, err
	}

	c.SetToken(cfg.Token)

	if len(cfg.Namespace) > 0 {
		c.SetNamespace(cfg.Namespace)
	}

	return &VaultSecretProvider{VaultConfig: cfg, client: c}, nil
}

func (v *VaultSecretProvider) GetSecret(name string) ([]byte, error) {
	name = nameEscape(name)
	path := fmt.Sprintf("%s/data/%s", v.SecretMount, name)

	sec, err := v.client.Logical().Read(path)
	if err != nil {
		return nil, err
	}

	if sec == nil || sec.Data == nil {
		return nil, ErrNotFound
	}

	data, ok := sec.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("vault: secret data is unexpectedly not stored in a map")
	}

	if data, ok := data["data"].(string); ok {
		return []byte(data), nil
	}

	return nil, fmt.Errorf("vault: secret data is not a string")
}

func (v *VaultSecretProvider) SetSecret(name string, secret []byte) error {
	name = nameEscape(name)
	path := fmt.Sprintf("%s/data/%s", v.SecretMount, name)
	_, err := v.client.Logical().Write(path, map[string]interface{}{
		"data": map[string]interface{}{
			"data": string(secret),
		},
	})

	return err
}

func (v *VaultSecretProvider) GenerateDataKey(rootKeyID string) (*SymmetricKey, error) {
	if rootKeyID == "" {
		rootKeyID = nameEscape(rootKeyName)
		if err := v.generateRootKey(rootKeyID); err != nil {
			return nil, err
		}
	}

	dataKey, err := cryptoRandRead(keyBlockSizeInBytes)
	if err != nil {
		return nil, fmt.Errorf("vault: generating data key: %w", err)
	}

	encrypted, err := v.RemoteEncrypt(rootKeyID, dataKey)
	if err != nil {
		return nil, fmt.Errorf("vault: remote encrypt: %w", err)
	}

	return &SymmetricKey{
		unencrypted: dataKey,
		Encrypted:   encrypted,
		Algorithm:   DefaultVaultAlgorithm,
		RootKeyID:   rootKeyID,
	}, nil
}

func (v *VaultSecretProvider) generateRootKey(name string) error {
	path := fmt.Sprintf("%s/keys/%s", v.TransitMount, nameEscape(name))

	_, err := v.client.Logical().Write(path, map[string]interface{}{
		"convergent_encryption":  false,
		"derived":                false,
		"exportable":             false,
		"allow_plaintext_backup": false,
		"type":                   DefaultVaultAlgorithm,
	})

	return err
}

func (v *VaultSecretProvider) DecryptDataKey(rootKeyID string, keyData []byte) (*SymmetricKey, error) {
	plain, err := v.RemoteDecrypt(rootKeyID, keyData)
	if err != nil {
		return nil, err
	}

	return &SymmetricKey{
		unencrypted: plain,
		Encrypted:   keyData,
		Algorithm:   DefaultVaultAlgorithm,
		RootKeyID:   rootKeyID,
	}, nil
}

func (v *VaultSecretProvider) RemoteEncrypt(keyID string, plain []byte) (encrypted []byte, err error) {
	bPlain := base64.StdEncoding.EncodeToString(plain)

	sec, err := v.client.Logical().Write(v.TransitMount+"/encrypt/"+keyID, map[string]interface{}{
		"plaintext": bPlain,
	})
	if err != nil {
		return nil, err
	}

	if data, ok := sec.Data["ciphertext"].(string); ok {
		return []byte(data), nil
	}

	return nil, fmt.Errorf("vault: unexpected encrypt response")
}

func (v *VaultSecretProvider) RemoteDecrypt(keyID string, encrypted []byte) (plain []byte, err error) {
	sec, err := v.client.Logical().Write(v.TransitMount+"/decrypt/"+keyID, map[string]interface{}{
		"ciphertext": string(encrypted),
	})
	if err != nil {
		return nil, err
	}

	if data, ok := sec.Data["plaintext"].(string); ok {
		return base64.StdEncoding.DecodeString(data)
	}

	return nil, fmt.Errorf("vault: unexpected decrypt response")
}

func nameEscape(name string) string {
	rpl := strings.NewReplacer(
		"/", "_",
		":", "_",
	)

	return rpl.Replace(name)
}
