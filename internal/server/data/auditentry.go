package data

import (
	"time"

	"gorm.io/gorm"

	"github.com/keyward/keyward/internal/server/models"
)

func CreateAuditEntry(db *gorm.DB, entry *models.AuditEntry) error {
	return add(db, entry)
}

func ByActor(actor string) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("actor = ?", actor)
	}
}

func ByAction(action models.AuditAction) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("action = ?", action)
	}
}

func ByCreatedSince(since time.Time) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at >= ?", since)
	}
}

func ByCreatedUntil(until time.Time) SelectorFunc {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("created_at <= ?", until)
	}
}

func ListAuditEntries(db *gorm.DB, selectors ...SelectorFunc) ([]models.AuditEntry, error) {
	return list[models.AuditEntry](db, selectors...)
}
