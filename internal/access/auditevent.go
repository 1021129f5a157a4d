package access

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/keyward/keyward/internal/server/data"
	"github.com/keyward/keyward/internal/server/models"
)

// AuditEventFilters narrows a listing of the audit log. Zero values mean no
// filter.
type AuditEventFilters struct {
	Actor    string
	Provider string
	Action   string
	Since    time.Time
	Until    time.Time
}

// ListAuditEvents returns audit entries matching the filters, oldest first.
// The log is global; every subject may read it.
func ListAuditEvents(c *gin.Context, filters AuditEventFilters) ([]models.AuditEntry, error) {
	selectors := []data.SelectorFunc{}
	if filters.Actor != "" {
		selectors = append(selectors, data.ByActor(filters.Actor))
	}
	if filters.Provider != "" {
		selectors = append(selectors, data.ByProvider(filters.Provider))
	}
	if filters.Action != "" {
		selectors = append(selectors, data.ByAction(models.AuditAction(filters.Action)))
	}
	if !filters.Since.IsZero() {
		selectors = append(selectors, data.ByCreatedSince(filters.Since))
	}
	if !filters.Until.IsZero() {
		selectors = append(selectors, data.ByCreatedUntil(filters.Until))
	}

	return data.ListAuditEntries(getDB(c), selectors...)
}
