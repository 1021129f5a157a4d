package api

import (
	"time"

	"github.com/keyward/keyward/uid"
)

// APIKey is a registered provider credential. The raw key material is never
// returned by the API; KeyHint carries a masked rendering for display.
type APIKey struct {
	ID                   uid.ID    `json:"id"`
	Name                 string    `json:"name"`
	Provider             string    `json:"provider"`
	KeyHint              string    `json:"keyHint"`
	Created              time.Time `json:"created"`
	LastValidated        time.Time `json:"lastValidated"`
	Active               bool      `json:"active"`
	ValidationAttempts   int       `json:"validationAttempts"`
	LastValidationStatus bool      `json:"lastValidationStatus"`
}

type CreateAPIKeyRequest struct {
	Provider string `json:"provider" binding:"required"`
	// Key is the raw credential issued by the provider. It is validated and
	// encrypted before storage, and never echoed back.
	Key  string `json:"key" binding:"required"`
	Name string `json:"name" binding:"max=256"`
}

type ListAPIKeysRequest struct {
	Provider string `form:"provider"`
}

type UpdateAPIKeyRequest struct {
	// Active may only be set to true, to reactivate a deactivated key.
	// Deactivation uses DELETE.
	Active bool `json:"active"`
}

type ListResponse[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

func NewListResponse[T any](items []T) *ListResponse[T] {
	return &ListResponse[T]{Count: len(items), Items: items}
}
