package offlinesync

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/models"
)

// RegisterRoutes mounts the sync endpoints on a router that already carries
// the session. The Pub/Sub push endpoint is mounted separately.
func RegisterRoutes(r gin.IRouter, w *Worker) {
	g := r.Group("/sync")
	g.POST("/groups", TriggerSyncHandler(w, models.SyncKindGroups))
	g.POST("/clients", TriggerSyncHandler(w, models.SyncKindClients))
	g.POST("/client-payloads", TriggerPayloadSyncHandler(w))
	g.GET("/runs", SyncHistoryHandler())
	g.GET("/runs/:id", SyncRunDetailHandler())
	g.GET("/runs/:id/state", SyncRunStateHandler())
	g.POST("/runs/:id/retry", RetrySyncRunHandler(w))
}
