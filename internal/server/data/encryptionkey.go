package data

import (
	"errors"
	mathrand "math/rand"

	"gorm.io/gorm"

	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/server/models"
	"github.com/keyward/keyward/secrets"
)

func CreateEncryptionKey(db *gorm.DB, key *models.EncryptionKey) (*models.EncryptionKey, error) {
	if err := add(db, key); err != nil {
		return nil, err
	}

	return key, nil
}

func GetEncryptionKeyByName(db *gorm.DB, name string) (*models.EncryptionKey, error) {
	return get[models.EncryptionKey](db, func(db *gorm.DB) *gorm.DB {
		return db.Where("name = ?", name)
	})
}

// dbKeyName is the name of the encryption key used to seal and unseal
// encrypted fields in the database.
var dbKeyName = "dbkey"

// loadDBKey fetches the db key from the database, decrypts it with the
// provider's root key, and registers it for field encryption. The first run
// against an empty database generates the key instead.
func loadDBKey(db *gorm.DB, provider secrets.SymmetricKeyProvider, rootKeyID string) error {
	keyRec, err := GetEncryptionKeyByName(db, dbKeyName)
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			return createDBKey(db, provider, rootKeyID)
		}

		return err
	}

	sKey, err := provider.DecryptDataKey(rootKeyID, keyRec.Encrypted)
	if err != nil {
		return err
	}

	models.SymmetricKey = sKey
	return nil
}

// createDBKey generates a new data key protected by the root key and stores
// the encrypted form in the database.
func createDBKey(db *gorm.DB, provider secrets.SymmetricKeyProvider, rootKeyID string) error {
	sKey, err := provider.GenerateDataKey(rootKeyID)
	if err != nil {
		return err
	}

	key := &models.EncryptionKey{
		KeyID:     mathrand.Int31(), // nolint:gosec // the key id only needs to be unique, not unpredictable
		Name:      dbKeyName,
		Encrypted: sKey.Encrypted,
		Algorithm: sKey.Algorithm,
		RootKeyID: sKey.RootKeyID,
	}

	if _, err := CreateEncryptionKey(db, key); err != nil {
		return err
	}

	models.SymmetricKey = sKey
	return nil
}
