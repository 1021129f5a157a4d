package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/keyward/keyward/api"
	"github.com/keyward/keyward/internal"
	"github.com/keyward/keyward/internal/access"
	"github.com/keyward/keyward/uid"
)

func (a *API) CreateAPIKey(c *gin.Context) {
	var req api.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendAPIError(c, err)
		return
	}

	key, err := access.AddKey(c, req.Provider, req.Key, req.Name)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	c.JSON(http.StatusCreated, key.ToAPI())
}

func (a *API) ListAPIKeys(c *gin.Context) {
	var req api.ListAPIKeysRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		sendAPIError(c, err)
		return
	}

	keys, err := access.ListKeys(c, req.Provider)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	results := make([]api.APIKey, 0, len(keys))
	for i := range keys {
		results = append(results, *keys[i].ToAPI())
	}

	c.JSON(http.StatusOK, api.NewListResponse(results))
}

func (a *API) GetAPIKey(c *gin.Context) {
	id, err := parseIDPath(c)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	key, err := access.GetKey(c, id)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, key.ToAPI())
}

// UpdateAPIKey reactivates a deactivated key. Deactivation is done with
// DELETE; the only accepted update is active=true.
func (a *API) UpdateAPIKey(c *gin.Context) {
	id, err := parseIDPath(c)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	var req api.UpdateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendAPIError(c, err)
		return
	}

	if !req.Active {
		sendAPIError(c, fmt.Errorf("%w: only active=true is supported, use DELETE to deactivate a key", internal.ErrBadRequest))
		return
	}

	key, err := access.ReactivateKey(c, id)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	c.JSON(http.StatusOK, key.ToAPI())
}

func (a *API) DeleteAPIKey(c *gin.Context) {
	id, err := parseIDPath(c)
	if err != nil {
		sendAPIError(c, err)
		return
	}

	if err := access.DeactivateKey(c, id); err != nil {
		sendAPIError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) ListAuditEvents(c *gin.Context) {
	var req api.ListAuditEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		sendAPIError(c, err)
		return
	}

	entries, err := access.ListAuditEvents(c, access.AuditEventFilters{
		Actor:    req.Actor,
		Provider: req.Provider,
		Action:   req.Action,
		Since:    req.Since,
		Until:    req.Until,
	})
	if err != nil {
		sendAPIError(c, err)
		return
	}

	results := make([]api.AuditEvent, 0, len(entries))
	for i := range entries {
		results = append(results, *entries[i].ToAPI())
	}

	c.JSON(http.StatusOK, api.NewListResponse(results))
}

func parseIDPath(c *gin.Context) (uid.ID, error) {
	id, err := uid.Parse([]byte(c.Param("id")))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", internal.ErrBadRequest, c.Param("id"))
	}
	return id, nil
}
