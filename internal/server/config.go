package server

import (
	"fmt"
	"os"

	"github.com/keyward/keyward/secrets"
)

type KeyProvider struct {
	Kind   string      `mapstructure:"kind"`
	Config interface{} // contains key-provider-specific config
}

type nativeKeyProviderConfig struct {
	SecretProvider string `mapstructure:"secretProvider"`
}

type GenericConfig struct {
	Base64           bool `mapstructure:"base64"`
	Base64URLEncoded bool `mapstructure:"base64UrlEncoded"`
	Base64Raw        bool `mapstructure:"base64Raw"`
}

type FileConfig struct {
	GenericConfig `mapstructure:",squash"`
	Path          string `mapstructure:"path"`
}

type VaultConfig struct {
	TransitMount string `mapstructure:"transitMount"` // mounting point. defaults to /transit
	SecretMount  string `mapstructure:"secretMount"`  // mounting point. defaults to /secret
	Token        string `mapstructure:"token"`        // vault token
	Namespace    string `mapstructure:"namespace"`
	Address      string `mapstructure:"address"`
}

type SecretProvider struct {
	Kind   string      `mapstructure:"kind"`
	Name   string      `mapstructure:"name"`
	Config interface{} // contains secret-provider-specific config
}

var baseSecretStorageKinds = []string{
	"env",
	"file",
	"plaintext",
}

func isABaseSecretStorageKind(s string) bool {
	for _, item := range baseSecretStorageKinds {
		if item == s {
			return true
		}
	}

	return false
}

func importKeyProviders(
	cfg []KeyProvider,
	storage map[string]secrets.SecretStorage,
	keys map[string]secrets.SymmetricKeyProvider,
) error {
	var err error

	// default to file-based native secret provider
	keys["native"] = secrets.NewNativeKeyProvider(storage["file"])

	for _, keyConfig := range cfg {
		switch keyConfig.Kind {
		case "native":
			cfg, ok := keyConfig.Config.(nativeKeyProviderConfig)
			if !ok {
				return fmt.Errorf("expected key config to be nativeKeyProviderConfig, but was %T", keyConfig.Config)
			}

			storageProvider, found := storage[cfg.SecretProvider]
			if !found {
				return fmt.Errorf("secret storage name %q not found", cfg.SecretProvider)
			}

			keys[keyConfig.Kind] = secrets.NewNativeKeyProvider(storageProvider)
		case "vault":
			cfg, ok := keyConfig.Config.(VaultConfig)
			if !ok {
				return fmt.Errorf("expected key config to be VaultConfig, but was %T", keyConfig.Config)
			}

			cfg.Token, err = secrets.GetSecret(cfg.Token, storage)
			if err != nil {
				return err
			}

			sp, err := vaultProviderFromConfig(cfg)
			if err != nil {
				return err
			}

			keys[keyConfig.Kind] = sp
		default:
			return fmt.Errorf("unknown key provider type %q", keyConfig.Kind)
		}
	}

	return nil
}

func vaultProviderFromConfig(cfg VaultConfig) (*secrets.VaultSecretProvider, error) {
	vcfg := secrets.NewVaultConfig()
	if len(cfg.TransitMount) > 0 {
		vcfg.TransitMount = cfg.TransitMount
	}
	if len(cfg.SecretMount) > 0 {
		vcfg.SecretMount = cfg.SecretMount
	}
	if len(cfg.Address) > 0 {
		vcfg.Address = cfg.Address
	}
	vcfg.Token = cfg.Token
	vcfg.Namespace = cfg.Namespace

	return secrets.NewVaultSecretProviderFromConfig(vcfg)
}

func importSecrets(cfg []SecretProvider, storage map[string]secrets.SecretStorage) error {
	loadSecretConfig := func(secret SecretProvider) (err error) {
		name := secret.Name
		if len(name) == 0 {
			name = secret.Kind
		}

		if _, found := storage[name]; found {
			return fmt.Errorf("duplicate secret configuration for %q, please provide a unique name for this secret configuration", name)
		}

		switch secret.Kind {
		case "vault":
			cfg, ok := secret.Config.(VaultConfig)
			if !ok {
				return fmt.Errorf("expected secret config to be VaultConfig, but was %T", secret.Config)
			}

			cfg.Token, err = secrets.GetSecret(cfg.Token, storage)
			if err != nil {
				return err
			}

			vault, err := vaultProviderFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("creating vault provider: %w", err)
			}

			storage[name] = vault
		case "env":
			cfg, ok := secret.Config.(GenericConfig)
			if !ok {
				return fmt.Errorf("expected secret config to be GenericConfig, but was %T", secret.Config)
			}

			storage[name] = secrets.NewEnvSecretProviderFromConfig(secrets.GenericConfig{
				Base64:           cfg.Base64,
				Base64URLEncoded: cfg.Base64URLEncoded,
				Base64Raw:        cfg.Base64Raw,
			})
		case "file":
			cfg, ok := secret.Config.(FileConfig)
			if !ok {
				return fmt.Errorf("expected secret config to be FileConfig, but was %T", secret.Config)
			}

			storage[name] = secrets.NewFileSecretProviderFromConfig(secrets.FileConfig{
				GenericConfig: secrets.GenericConfig{
					Base64:           cfg.Base64,
					Base64URLEncoded: cfg.Base64URLEncoded,
					Base64Raw:        cfg.Base64Raw,
				},
				Path: cfg.Path,
			})
		case "plaintext", "":
			cfg, ok := secret.Config.(GenericConfig)
			if !ok {
				return fmt.Errorf("expected secret config to be GenericConfig, but was %T", secret.Config)
			}

			storage[name] = secrets.NewPlainSecretProviderFromConfig(secrets.GenericConfig{
				Base64:           cfg.Base64,
				Base64URLEncoded: cfg.Base64URLEncoded,
				Base64Raw:        cfg.Base64Raw,
			})
		default:
			return fmt.Errorf("unknown secret provider type %q", secret.Kind)
		}

		return nil
	}

	// check all base types first
	for _, secret := range cfg {
		if !isABaseSecretStorageKind(secret.Kind) {
			continue
		}

		if err := loadSecretConfig(secret); err != nil {
			return err
		}
	}

	loadDefaultSecretConfig(storage)

	// now load non-base types which might depend on them.
	for _, secret := range cfg {
		if isABaseSecretStorageKind(secret.Kind) {
			continue
		}

		if err := loadSecretConfig(secret); err != nil {
			return err
		}
	}

	return nil
}

// loadDefaultSecretConfig loads configuration for types that should be available,
// assuming the user didn't override the configuration for them.
func loadDefaultSecretConfig(storage map[string]secrets.SecretStorage) {
	if _, found := storage["env"]; !found {
		storage["env"] = secrets.NewEnvSecretProviderFromConfig(secrets.GenericConfig{})
	}

	if _, found := storage["file"]; !found {
		storage["file"] = secrets.NewFileSecretProviderFromConfig(secrets.FileConfig{
			Path: defaultSecretsDir(),
		})
	}

	if _, found := storage["plaintext"]; !found {
		storage["plaintext"] = secrets.NewPlainSecretProviderFromConfig(secrets.GenericConfig{})
	}
}

func defaultSecretsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".keyward/keys"
	}
	return home + "/.keyward/keys"
}

// PrepareForDecode prepares the KeyProvider for mapstructure.Decode by
// setting a concrete type for the config based on the kind.
func (kp *KeyProvider) PrepareForDecode(data interface{}) error {
	if kp.Kind != "" {
		// this instance was already prepared from a previous call
		return nil
	}
	kind := getKindFromUnstructured(data)
	switch kind {
	case "vault":
		kp.Config = VaultConfig{}
	case "native":
		kp.Config = nativeKeyProviderConfig{}
	default:
		// unknown kind error is handled by importKeyProviders
	}

	return nil
}

// PrepareForDecode prepares the SecretProvider for mapstructure.Decode by
// setting a concrete type for the config based on the kind. Failures to decode
// will be handled by mapstructure, or by importSecrets.
func (sp *SecretProvider) PrepareForDecode(data interface{}) error {
	if sp.Kind != "" {
		// this instance was already prepared from a previous call
		return nil
	}
	kind := getKindFromUnstructured(data)
	switch kind {
	case "vault":
		sp.Config = VaultConfig{}
	case "env":
		sp.Config = GenericConfig{}
	case "file":
		sp.Config = FileConfig{}
	case "plaintext", "":
		sp.Kind = "plaintext"
		sp.Config = GenericConfig{}
	default:
		// unknown kind error is handled by importSecrets
	}

	return nil
}

func getKindFromUnstructured(data interface{}) string {
	switch raw := data.(type) {
	case map[string]interface{}:
		if v, ok := raw["kind"].(string); ok {
			return v
		}
	case map[interface{}]interface{}:
		if v, ok := raw["kind"].(string); ok {
			return v
		}
	case *SecretProvider:
		return raw.Kind
	}
	return ""
}
