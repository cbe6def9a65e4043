package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
)

// Remote is the part of the Fineract client the screens' operations call.
type Remote interface {
	Authenticate(ctx context.Context, username, password string) (fineract.AuthResult, error)
	CreateClient(ctx context.Context, payload fineract.ClientPayload) (fineract.CommandResult, error)
	ListDocuments(ctx context.Context, entityType string, entityID int) ([]fineract.Document, error)
	UploadDocument(ctx context.Context, entityType string, entityID int, doc fineract.DocumentUpload) (fineract.CommandResult, error)
	DownloadDocument(ctx context.Context, entityType string, entityID int, documentID int) ([]byte, error)
	DeleteDocument(ctx context.Context, entityType string, entityID int, documentID int) error
	ListNotes(ctx context.Context, entityType string, entityID int) ([]fineract.Note, error)
	CreateNote(ctx context.Context, entityType string, entityID int, text string) (fineract.CommandResult, error)
	UpdateNote(ctx context.Context, entityType string, entityID int, noteID int, text string) error
	DeleteNote(ctx context.Context, entityType string, entityID int, noteID int) error
}

type RemoteFactory func(tenantId string) (Remote, error)

// FineractRemote talks to Fineract with the service account from the
// environment, on behalf of the given tenant.
func FineractRemote(tenantId string) (Remote, error) {
	cfg := fineract.ConfigFromEnv()
	cfg.Tenant = tenantId
	c, err := fineract.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Handlers struct {
	newRemote RemoteFactory
	blobs     blobstore.Store
}

func NewHandlers(newRemote RemoteFactory, blobs blobstore.Store) *Handlers {
	if blobs == nil {
		blobs = blobstore.NewMemoryStore()
	}
	return &Handlers{newRemote: newRemote, blobs: blobs}
}

// session resolves the tenant and a Fineract client for the request, or
// answers the request itself and returns ok=false.
func (h *Handlers) session(c *gin.Context) (context.Context, string, Remote, bool) {
	ctx := c.Request.Context()
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, "", nil, false
	}
	remote, err := h.newRemote(tenantId)
	if err != nil {
		config.LogError(config.GetLogger(), "handlers.go", "session", "newRemote", tenantId, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fineract is not configured"})
		return nil, "", nil, false
	}
	return ctx, tenantId, remote, true
}

const entityKey = "entity"

// withEntity marks the routes of one entity type. The type is a path prefix,
// not a wildcard, so it can share the tree with the other static routes.
func withEntity(entityType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(entityKey, entityType)
		c.Next()
	}
}

// entityParams reads the entity type and :entityId of the documents and notes routes.
func entityParams(c *gin.Context) (string, int, bool) {
	entityType := c.GetString(entityKey)
	if !fineract.ValidEntityType(entityType) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown entity type"})
		return "", 0, false
	}
	id, ok := intParam(c, "entityId")
	if !ok {
		return "", 0, false
	}
	return entityType, id, true
}

func intParam(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func respondValidation(c *gin.Context, err error) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondRemoteError maps a failed Fineract call to the status the app shows.
func respondRemoteError(c *gin.Context, err error) {
	switch fineract.Category(err) {
	case fineract.CategoryNetwork:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fineract is unreachable"})
	case fineract.CategoryServer:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case fineract.CategoryValidation:
		var apiErr *fineract.APIError
		errors.As(err, &apiErr)
		fields := make(map[string]string, len(apiErr.Errors))
		for _, fe := range apiErr.Errors {
			fields[fe.ParameterName] = fe.DefaultUserMessage
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "fields": fields})
	case fineract.CategoryClient:
		if fineract.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case fineract.CategoryCancelled:
		c.Status(499)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func respondStoreError(c *gin.Context, err error) {
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
