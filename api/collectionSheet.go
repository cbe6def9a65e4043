package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/models/reports"
	"github.com/mmdatafocus/fieldsync/utils"
)

// CollectionSheet serves what a group is due at its next meeting from the
// synced cache, so it works without Fineract. `?format=json` returns the rows.
func (h *Handlers) CollectionSheet() gin.HandlerFunc {
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

		sheet, err := models.GetCollectionSheet(ctx, groupId)
		if err != nil {
			respondStoreError(c, err)
			return
		}
		if c.Query("format") == "json" {
			c.JSON(http.StatusOK, sheet)
			return
		}

		var buf bytes.Buffer
		if err := reports.WriteCollectionSheet(&buf, sheet); err != nil {
			config.LogError(config.GetLogger(), "collectionSheet.go", "CollectionSheet", "WriteCollectionSheet", groupId, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("collection-sheet-%d.xlsx", groupId)))
		c.Data(http.StatusOK, reports.ContentType, buf.Bytes())
	}
}
