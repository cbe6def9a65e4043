package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
)

// ListDocuments makes the cached documents of an entity match Fineract and
// returns them. Rows Fineract no longer has are dropped with their bytes.
// When Fineract cannot be reached the cache answers alone.
func (h *Handlers) ListDocuments() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, tenantId, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}

		docs, err := remote.ListDocuments(ctx, entityType, entityId)
		switch {
		case err == nil:
			rows := make([]*models.Document, 0, len(docs))
			for _, d := range docs {
				rows = append(rows, models.NewDocumentFromRemote(tenantId, d))
			}
			removed, err := models.ReplaceDocuments(ctx, entityType, entityId, rows)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			for _, d := range removed {
				if d.ObjectKey == "" {
					continue
				}
				if err := h.blobs.Delete(ctx, d.ObjectKey); err != nil {
					config.LogError(config.GetLogger(), "documents.go", "ListDocuments", "blobs.Delete", d.ObjectKey, err)
				}
			}
		case errors.Is(err, fineract.ErrNetwork):
			c.Header("X-Fieldsync-Offline", "true")
		default:
			respondRemoteError(c, err)
			return
		}

		cached, err := models.ListDocuments(ctx, entityType, entityId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": cached})
	}
}

// UploadDocument takes a multipart form with name, description and file.
func (h *Handlers) UploadDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, tenantId, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}

		name := strings.TrimSpace(c.PostForm("name"))
		fh, err := c.FormFile("file")
		if err != nil || name == "" {
			fields := map[string]string{}
			if name == "" {
				fields["name"] = "required"
			}
			if err != nil {
				fields["file"] = "required"
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": fields})
			return
		}
		if fh.Size > blobstore.MaxDocumentBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file is larger than %d bytes", blobstore.MaxDocumentBytes)})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, blobstore.MaxDocumentBytes+1))
		_ = f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(data) > blobstore.MaxDocumentBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file is larger than %d bytes", blobstore.MaxDocumentBytes)})
			return
		}
		contentType, err := blobstore.DetectDocumentType(data)
		if err != nil {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return
		}

		upload := fineract.DocumentUpload{
			Name:        name,
			Description: strings.TrimSpace(c.PostForm("description")),
			FileName:    fh.Filename,
			ContentType: contentType,
			Data:        data,
		}
		res, err := remote.UploadDocument(ctx, entityType, entityId, upload)
		if err != nil {
			respondRemoteError(c, err)
			return
		}

		doc := &models.Document{
			ID:          res.ResourceID,
			EntityType:  entityType,
			EntityId:    entityId,
			Name:        upload.Name,
			Description: upload.Description,
			FileName:    upload.FileName,
			ContentType: contentType,
			Size:        int64(len(data)),
		}
		key := blobstore.DocumentKey(tenantId, entityType, entityId, res.ResourceID, upload.FileName)
		if err := h.blobs.Put(ctx, key, data, contentType); err != nil {
			// Fineract has the file; the local copy is only a cache
			config.LogError(config.GetLogger(), "documents.go", "UploadDocument", "blobs.Put", key, err)
		} else {
			doc.ObjectKey = key
		}
		if err := models.SaveDocument(ctx, doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, doc)
	}
}

// DownloadDocument serves the cached bytes, fetching and caching them from
// Fineract on a miss.
func (h *Handlers) DownloadDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, tenantId, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}
		documentId, ok := intParam(c, "documentId")
		if !ok {
			return
		}

		doc, err := models.GetDocument(ctx, entityType, entityId, documentId)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if doc != nil && doc.ObjectKey != "" {
			data, contentType, err := h.blobs.Get(ctx, doc.ObjectKey)
			if err == nil {
				serveDocument(c, doc.FileName, contentType, data)
				return
			}
			if !errors.Is(err, blobstore.ErrObjectNotFound) {
				config.LogError(config.GetLogger(), "documents.go", "DownloadDocument", "blobs.Get", doc.ObjectKey, err)
			}
		}

		data, err := remote.DownloadDocument(ctx, entityType, entityId, documentId)
		if err != nil {
			respondRemoteError(c, err)
			return
		}
		fileName := fmt.Sprintf("document-%d", documentId)
		contentType := mimetype.Detect(data).String()
		if doc != nil {
			fileName = doc.FileName
			if doc.ContentType != "" {
				contentType = doc.ContentType
			}
			key := blobstore.DocumentKey(tenantId, entityType, entityId, documentId, doc.FileName)
			if err := h.blobs.Put(ctx, key, data, contentType); err == nil {
				doc.ObjectKey = key
				if err := models.SaveDocument(ctx, doc); err != nil {
					config.LogError(config.GetLogger(), "documents.go", "DownloadDocument", "SaveDocument", documentId, err)
				}
			}
		}
		serveDocument(c, fileName, contentType, data)
	}
}

func serveDocument(c *gin.Context, fileName string, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, data)
}

// DeleteDocument removes the document from Fineract, then the cached row and bytes.
func (h *Handlers) DeleteDocument() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _, remote, ok := h.session(c)
		if !ok {
			return
		}
		entityType, entityId, ok := entityParams(c)
		if !ok {
			return
		}
		documentId, ok := intParam(c, "documentId")
		if !ok {
			return
		}

		if err := remote.DeleteDocument(ctx, entityType, entityId, documentId); err != nil && !fineract.IsNotFound(err) {
			respondRemoteError(c, err)
			return
		}

		doc, err := models.GetDocument(ctx, entityType, entityId, documentId)
		if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if doc != nil {
			if err := models.DeleteDocument(ctx, documentId); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if doc.ObjectKey != "" {
				if err := h.blobs.Delete(ctx, doc.ObjectKey); err != nil {
					config.LogError(config.GetLogger(), "documents.go", "DeleteDocument", "blobs.Delete", doc.ObjectKey, err)
				}
			}
		}
		c.Status(http.StatusNoContent)
	}
}
