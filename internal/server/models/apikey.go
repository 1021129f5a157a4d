package models

import (
	"strings"
	"time"

	"github.com/keyward/keyward/api"
)

// APIKey is a third-party provider credential registered by an owner and
// revalidated periodically. The raw key material is encrypted before it is
// written and is never overwritten in place; re-registering a credential
// creates a new record.
type APIKey struct {
	Model

	// OwnerID is the authenticated subject that registered the key.
	OwnerID string `gorm:"index"`
	Name    string

	// Provider references a registered provider kind, eg "anthropic".
	Provider string `gorm:"index"`

	// Secret is the raw key material, encrypted at rest.
	Secret EncryptedAtRest `gorm:"column:encrypted_secret"`

	// KeyHint is a masked rendering of the key for display, eg "sk-...f3ab".
	KeyHint string

	// IsActive is true from successful creation until the key is revoked by
	// its owner or deactivated by consecutive validation failures. It never
	// flips back to true without an explicit owner action.
	IsActive bool

	// ValidationAttempts counts consecutive failed validations since the last
	// success. Reset to zero on a successful validation.
	ValidationAttempts   int
	LastValidatedAt      time.Time
	LastValidationStatus bool
}

func (k *APIKey) ToAPI() *api.APIKey {
	return &api.APIKey{
		ID:                   k.ID,
		Name:                 k.Name,
		Provider:             k.Provider,
		KeyHint:              k.KeyHint,
		Created:              k.CreatedAt,
		LastValidated:        k.LastValidatedAt,
		Active:               k.IsActive,
		ValidationAttempts:   k.ValidationAttempts,
		LastValidationStatus: k.LastValidationStatus,
	}
}

// Hint masks raw key material for display and audit payloads. Short keys are
// masked entirely.
func Hint(raw string) string {
	if len(raw) < 12 {
		return "****"
	}
	return raw[:5] + strings.Repeat("*", 4) + raw[len(raw)-4:]
}
