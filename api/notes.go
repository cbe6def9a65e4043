package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
)

func (h *Handlers) ListNotes() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, tenantId, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}

		notes, err := remote.ListNotes(ctx, entityType, entityId)
		switch {
		case err == nil:
			rows := make([]*models.Note, 0, len(notes))
			for _, n := range notes {
				rows = append(rows, models.NewNoteFromRemote(tenantId, entityType, entityId, n))
			}
			if err := models.ReplaceNotes(ctx, entityType, entityId, rows); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
		case errors.Is(err, fineract.ErrNetwork):
			c.Header("X-Fieldsync-Offline", "true")
		default:
			respondRemoteError(c, err)
			return
		}

		cached, err := models.ListNotes(ctx, entityType, entityId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": cached})
	}
}

func bindNote(c *gin.Context) (string, bool) {
	var req models.NewNote
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return "", false
	}
	if err := utils.ValidateStruct(req); err != nil {
		respondValidation(c, err)
		return "", false
	}
	return strings.TrimSpace(req.Note), true
}

func (h *Handlers) CreateNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}
		text, ok := bindNote(c)
		if !ok {
			return
		}

		res, err := remote.CreateNote(ctx, entityType, entityId, text)
		if err != nil {
			respondRemoteError(c, err)
			return
		}
		username, _ := utils.GetUsernameFromContext(ctx)
		now := time.Now().UTC()
		note := &models.Note{
			ID:         res.ResourceID,
			EntityType: entityType,
			EntityId:   entityId,
			Text:       text,
			CreatedBy:  username,
			CreatedOn:  &now,
		}
		if err := models.SaveNote(ctx, note); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, note)
	}
}

func (h *Handlers) UpdateNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}
		noteId, ok := intParam(c, "noteId")
		if !ok {
			return
		}
		text, ok := bindNote(c)
		if !ok {
			return
		}

		if err := remote.UpdateNote(ctx, entityType, entityId, noteId, text); err != nil {
			respondRemoteError(c, err)
			return
		}

		note, err := models.GetNote(ctx, entityType, entityId, noteId)
		if err != nil {
			if !errors.Is(err, utils.ErrorRecordNotFound) {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			note = &models.Note{ID: noteId, EntityType: entityType, EntityId: entityId}
		}
		username, _ := utils.GetUsernameFromContext(ctx)
		now := time.Now().UTC()
		note.Text = text
		note.UpdatedBy = username
		note.UpdatedOn = &now
		if err := models.SaveNote(ctx, note); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, note)
	}
}

func (h *Handlers) DeleteNote() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}
		noteId, ok := intParam(c, "noteId")
		if !ok {
			return
		}

		if err := remote.DeleteNote(ctx, entityType, entityId, noteId); err != nil && !fineract.IsNotFound(err) {
			respondRemoteError(c, err)
			return
		}
		if err := models.DeleteNote(ctx, noteId); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
