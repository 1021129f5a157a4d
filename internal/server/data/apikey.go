package data

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/keyward/keyward/internal/server/models"
	"github.com/keyward/keyward/uid"
)

// maxConsecutiveFailures is the number of consecutive validation failures a
// key survives. The failure after this count deactivates the key.
const maxConsecutiveFailures = 3

func CreateAPIKey(db *gorm.DB, key *models.APIKey) error {
	return add(db, key)
}

func GetAPIKey(db *gorm.DB, selectors ...SelectorFunc) (*models.APIKey, error) {
	return get[models.APIKey](db, selectors...)
}

func ListAPIKeys(db *gorm.DB, selectors ...SelectorFunc) ([]models.APIKey, error) {
	return list[models.APIKey](db, selectors...)
}

func ListActiveAPIKeys(db *gorm.DB) ([]models.APIKey, error) {
	return list[models.APIKey](db, ByActive())
}

// SaveAPIKey persists changes to a key's lifecycle fields. The secret
// ciphertext is written once by CreateAPIKey and never rewritten; saving
// through the EncryptedAtRest field would re-seal it under a fresh nonce
// and change the stored bytes.
func SaveAPIKey(db *gorm.DB, key *models.APIKey) error {
	return save(db.Omit("encrypted_secret"), key)
}

// RecordValidation applies the outcome of a validation pass to a single key
// and writes the matching audit entry in the same transaction. A failed
// validation increments the consecutive failure count; once the count exceeds
// maxConsecutiveFailures the key is deactivated. A successful validation
// resets the count to zero.
//
// Returns the updated key and whether this call deactivated it.
func RecordValidation(db *gorm.DB, keyID uid.ID, valid bool, reason string, checkedAt time.Time) (*models.APIKey, bool, error) {
	var key *models.APIKey
	deactivated := false

	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		key, err = get[models.APIKey](lockForUpdate(tx), ByID(keyID))
		if err != nil {
			return err
		}

		key.LastValidatedAt = checkedAt
		key.LastValidationStatus = valid

		action := models.AuditActionValidated
		if valid {
			key.ValidationAttempts = 0
		} else {
			action = models.AuditActionFailedValidation
			key.ValidationAttempts++
			if key.ValidationAttempts > maxConsecutiveFailures && key.IsActive {
				key.IsActive = false
				deactivated = true
			}
		}

		if err := SaveAPIKey(tx, key); err != nil {
			return fmt.Errorf("save key: %w", err)
		}

		details := models.AuditDetails{
			"attempts": key.ValidationAttempts,
		}
		if reason != "" {
			details["reason"] = reason
		}
		if deactivated {
			details["deactivated"] = true
		}

		entry := &models.AuditEntry{
			Actor:    models.ActorSystem,
			Provider: key.Provider,
			APIKeyID: key.ID,
			Action:   action,
			Details:  details,
		}

		return CreateAuditEntry(tx, entry)
	})
	if err != nil {
		return nil, false, err
	}

	return key, deactivated, nil
}
