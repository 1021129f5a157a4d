package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/keyward/keyward/api"
	"github.com/keyward/keyward/uid"
)

type AuditAction string

const (
	AuditActionAdded            AuditAction = "ADDED"
	AuditActionUpdated          AuditAction = "UPDATED"
	AuditActionDeleted          AuditAction = "DELETED"
	AuditActionValidated        AuditAction = "VALIDATED"
	AuditActionFailedValidation AuditAction = "FAILED_VALIDATION"
)

// ActorSystem is the actor recorded for entries written by the periodic
// validation job rather than an authenticated owner.
const ActorSystem = "system"

// AuditEntry is an immutable record of a key lifecycle action. Entries are
// append-only; nothing in the data layer updates or deletes them.
type AuditEntry struct {
	ID        uid.ID
	CreatedAt time.Time

	// Actor is the owner who performed the action, or ActorSystem.
	Actor    string `gorm:"index"`
	Provider string `gorm:"index"`
	APIKeyID uid.ID `gorm:"index"`

	Action  AuditAction `gorm:"index"`
	Details AuditDetails `gorm:"type:text"`

	// ClientIP is the source address of the request, when the action was
	// triggered over the API.
	ClientIP string
}

func (AuditEntry) IsAModel() {}

func (e *AuditEntry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == 0 {
		e.ID = uid.New()
	}

	return nil
}

func (e *AuditEntry) ToAPI() *api.AuditEvent {
	return &api.AuditEvent{
		ID:        e.ID,
		Timestamp: e.CreatedAt,
		Actor:     e.Actor,
		Provider:  e.Provider,
		APIKeyID:  e.APIKeyID,
		Action:    string(e.Action),
		Details:   e.Details,
		ClientIP:  e.ClientIP,
	}
}

// AuditDetails is a structured payload stored as JSON.
type AuditDetails map[string]interface{}

func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}

	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshalling audit details: %w", err)
	}

	return string(b), nil
}

func (d *AuditDetails) Scan(v interface{}) error {
	if v == nil {
		return nil
	}

	var b []byte
	switch vv := v.(type) {
	case string:
		b = []byte(vv)
	case []byte:
		b = vv
	default:
		return fmt.Errorf("unsupported type: %T", v)
	}

	return json.Unmarshal(b, d)
}
