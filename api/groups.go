package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
)

// ListGroups returns the groups synced to this tenant's cache.
func (h *Handlers) ListGroups() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := utils.TenantFromContext(ctx); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		groups, err := models.ListGroups(ctx)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": groups})
	}
}

// ListGroupClients returns the cached members of one group.
func (h *Handlers) ListGroupClients() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if _, err := utils.TenantFromContext(ctx); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		groupId, ok := intParam(c, "entityId")
		if !ok {
			return
		}
		if _, err := models.GetGroup(ctx, groupId); err != nil {
			respondStoreError(c, err)
			return
		}
		clients, err := models.ListClientsByGroup(ctx, groupId)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": clients})
	}
}
