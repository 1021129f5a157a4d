package secrets

import "fmt"

var (
	keyNamespace        = "keyward-x"                  // k8s doesn't like names that start or end with _
	rootKeyName         = keyNamespace + "/__root_key" // k8s requires one slash in the name
	keyBlockSizeInBits  = 256
	keyBlockSizeInBytes = keyBlockSizeInBits / 8
)

var AlgorithmAESGCM = "aesgcm"

// NativeKeyProvider generates and protects data keys locally with a root key
// held in a SecretStorage backend.
type NativeKeyProvider struct {
	storage SecretStorage
}

func NewNativeKeyProvider(storage SecretStorage) *NativeKeyProvider {
	return &NativeKeyProvider{storage: storage}
}

var _ SymmetricKeyProvider = &NativeKeyProvider{}

func (n *NativeKeyProvider) rootKey(rootKeyID string, create bool) (*SymmetricKey, error) {
	rootKey, err := n.storage.GetSecret(rootKeyID)
	if err != nil && err != ErrNotFound {
		return nil, fmt.Errorf("getting root key: %w", err)
	}

	if len(rootKey) == 0 {
		if !create {
			return nil, fmt.Errorf("root key %q: %w", rootKeyID, ErrNotFound)
		}

		rootKey, err = cryptoRandRead(keyBlockSizeInBytes)
		if err != nil {
			return nil, err
		}

		if err = n.storage.SetSecret(rootKeyID, rootKey); err != nil {
			return nil, fmt.Errorf("saving root key: %w", err)
		}
	}

	return &SymmetricKey{
		unencrypted: rootKey,
		Algorithm:   AlgorithmAESGCM,
	}, nil
}

func (n *NativeKeyProvider) GenerateDataKey(rootKeyID string) (*SymmetricKey, error) {
	if rootKeyID == "" {
		rootKeyID = rootKeyName
	}

	fullRootKey, err := n.rootKey(rootKeyID, true)
	if err != nil {
		return nil, err
	}

	dataKey, err := cryptoRandRead(keyBlockSizeInBytes)
	if err != nil {
		return nil, err
	}

	encDataKey, err := Seal(fullRootKey, dataKey)
	if err != nil {
		return nil, fmt.Errorf("sealing: %w", err)
	}

	return &SymmetricKey{
		unencrypted: dataKey,
		Encrypted:   encDataKey,
		Algorithm:   AlgorithmAESGCM,
		RootKeyID:   rootKeyID,
	}, nil
}

func (n *NativeKeyProvider) DecryptDataKey(rootKeyID string, keyData []byte) (*SymmetricKey, error) {
	if rootKeyID == "" {
		rootKeyID = rootKeyName
	}

	fullRootKey, err := n.rootKey(rootKeyID, false)
	if err != nil {
		return nil, err
	}

	unsealed, err := Unseal(fullRootKey, keyData)
	if err != nil {
		return nil, fmt.Errorf("unsealing: %w", err)
	}

	return &SymmetricKey{
		unencrypted: unsealed,
		Encrypted:   keyData,
		Algorithm:   AlgorithmAESGCM,
		RootKeyID:   rootKeyID,
	}, nil
}
