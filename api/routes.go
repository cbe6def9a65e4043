package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/middlewares"
)

// Register mounts the app endpoints under r. Login is public; everything else
// needs the session SessionMiddleware put in the context.
func (h *Handlers) Register(r gin.IRouter) {
	r.POST("/auth/login", h.Login())

	authed := r.Group("", middlewares.RequireSession())
	authed.POST("/auth/logout", h.Logout())
	authed.POST("/auth/passcode", h.SetPasscode())
	authed.POST("/auth/passcode/verify", h.VerifyPasscode())

	authed.POST("/clients", h.CreateClient())
	authed.GET("/pending-clients", h.ListPendingClients())
	authed.DELETE("/pending-clients/:id", h.DeletePendingClient())

	authed.GET("/groups", h.ListGroups())
	authed.GET("/groups/:entityId/clients", h.ListGroupClients())
	authed.GET("/groups/:entityId/collection-sheet", h.CollectionSheet())

	for _, entityType := range fineract.EntityTypes {
		e := authed.Group("/"+entityType+"/:entityId", withEntity(entityType))
		e.GET("/documents", h.ListDocuments())
		e.POST("/documents", h.UploadDocument())
		e.GET("/documents/:documentId/attachment", h.DownloadDocument())
		e.DELETE("/documents/:documentId", h.DeleteDocument())

		e.GET("/notes", h.ListNotes())
		e.POST("/notes", h.CreateNote())
		e.PUT("/notes/:noteId", h.UpdateNote())
		e.DELETE("/notes/:noteId", h.DeleteNote())
	}
}
