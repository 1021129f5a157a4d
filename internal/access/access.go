// Package access implements the key lifecycle operations behind the API
// handlers. It owns authorization of operations against the request subject
// and composes data layer calls into transactions.
package access

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/keyward/keyward/internal/server/providers"
)

// gin context keys set by the server middleware for every request.
const (
	ContextKeyDB         = "db"
	ContextKeySubject    = "subject"
	ContextKeyValidator  = "validator"
	ContextKeyActiveKeys = "activeKeys"
)

func getDB(c *gin.Context) *gorm.DB {
	return c.MustGet(ContextKeyDB).(*gorm.DB)
}

// CurrentSubject returns the authenticated subject for the request. The
// authentication layer upstream guarantees it is set on every request that
// reaches a handler.
func CurrentSubject(c *gin.Context) string {
	return c.MustGet(ContextKeySubject).(string)
}

func getValidator(c *gin.Context) *providers.Validator {
	return c.MustGet(ContextKeyValidator).(*providers.Validator)
}

func getActiveKeysGauge(c *gin.Context) *prometheus.GaugeVec {
	return c.MustGet(ContextKeyActiveKeys).(*prometheus.GaugeVec)
}
