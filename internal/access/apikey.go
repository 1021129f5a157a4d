package access

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/keyward/keyward/internal/logging"
	"github.com/keyward/keyward/internal/server/data"
	"github.com/keyward/keyward/internal/server/models"
	"github.com/keyward/keyward/uid"
)

// ValidationError indicates that a submitted key failed validation. The
// reason is safe to return to the caller; it never contains key material.
type ValidationError struct {
	Provider string
	Reason   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("key validation failed for provider %q: %v", e.Provider, e.Reason)
}

// AddKey validates the raw key against its provider and stores it encrypted.
// A key that fails validation is never stored.
func AddKey(c *gin.Context, provider, rawKey, name string) (*models.APIKey, error) {
	subject := CurrentSubject(c)
	validator := getValidator(c)

	result := validator.Validate(c.Request.Context(), provider, rawKey)
	if !result.Valid {
		logging.Infof("rejected key registration for provider %q: %v", provider, result.Reason)
		return nil, ValidationError{Provider: provider, Reason: result.Reason}
	}

	key := &models.APIKey{
		OwnerID:              subject,
		Name:                 name,
		Provider:             provider,
		Secret:               models.EncryptedAtRest(rawKey),
		KeyHint:              models.Hint(rawKey),
		IsActive:             true,
		LastValidatedAt:      result.CheckedAt,
		LastValidationStatus: true,
	}

	db := getDB(c)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := data.CreateAPIKey(tx, key); err != nil {
			return err
		}

		return data.CreateAuditEntry(tx, &models.AuditEntry{
			Actor:    subject,
			Provider: provider,
			APIKeyID: key.ID,
			Action:   models.AuditActionAdded,
			Details:  models.AuditDetails{"name": name, "keyHint": key.KeyHint},
			ClientIP: c.ClientIP(),
		})
	})
	if err != nil {
		return nil, err
	}

	getActiveKeysGauge(c).WithLabelValues(provider).Inc()
	return key, nil
}

// ListKeys returns the subject's keys, optionally filtered by provider.
func ListKeys(c *gin.Context, provider string) ([]models.APIKey, error) {
	selectors := []data.SelectorFunc{data.ByOwner(CurrentSubject(c))}
	if provider != "" {
		selectors = append(selectors, data.ByProvider(provider))
	}

	return data.ListAPIKeys(getDB(c), selectors...)
}

// GetKey returns one of the subject's keys. Keys owned by other subjects are
// reported as not found, never as forbidden.
func GetKey(c *gin.Context, id uid.ID) (*models.APIKey, error) {
	return data.GetAPIKey(getDB(c), data.ByID(id), data.ByOwner(CurrentSubject(c)))
}

// DeactivateKey revokes one of the subject's keys and records the revocation.
// Deactivating an already inactive key is a no-op, not an error, and does not
// append a second audit entry. The encrypted record is retained so the key's
// history stays queryable.
func DeactivateKey(c *gin.Context, id uid.ID) error {
	subject := CurrentSubject(c)
	deactivated := false
	provider := ""

	err := getDB(c).Transaction(func(tx *gorm.DB) error {
		key, err := data.GetAPIKey(tx, data.ByID(id), data.ByOwner(subject))
		if err != nil {
			return err
		}

		if !key.IsActive {
			return nil
		}

		key.IsActive = false
		deactivated = true
		provider = key.Provider

		if err := data.SaveAPIKey(tx, key); err != nil {
			return err
		}

		return data.CreateAuditEntry(tx, &models.AuditEntry{
			Actor:    subject,
			Provider: key.Provider,
			APIKeyID: key.ID,
			Action:   models.AuditActionDeleted,
			Details:  models.AuditDetails{"keyHint": key.KeyHint},
			ClientIP: c.ClientIP(),
		})
	})
	if err != nil {
		return err
	}

	if deactivated {
		getActiveKeysGauge(c).WithLabelValues(provider).Dec()
	}

	return nil
}

// ReactivateKey flips a deactivated key back to active and resets its
// consecutive failure count. Only the owner may reactivate; reactivating an
// already active key is a no-op.
func ReactivateKey(c *gin.Context, id uid.ID) (*models.APIKey, error) {
	subject := CurrentSubject(c)

	var key *models.APIKey
	reactivated := false

	err := getDB(c).Transaction(func(tx *gorm.DB) error {
		var err error
		key, err = data.GetAPIKey(tx, data.ByID(id), data.ByOwner(subject))
		if err != nil {
			return err
		}

		if key.IsActive {
			return nil
		}

		key.IsActive = true
		key.ValidationAttempts = 0
		reactivated = true

		if err := data.SaveAPIKey(tx, key); err != nil {
			return err
		}

		return data.CreateAuditEntry(tx, &models.AuditEntry{
			Actor:    subject,
			Provider: key.Provider,
			APIKeyID: key.ID,
			Action:   models.AuditActionUpdated,
			Details:  models.AuditDetails{"reactivated": true},
			ClientIP: c.ClientIP(),
		})
	})
	if err != nil {
		return nil, err
	}

	if reactivated {
		getActiveKeysGauge(c).WithLabelValues(key.Provider).Inc()
	}

	return key, nil
}
