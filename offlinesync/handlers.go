package offlinesync

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
)

// TriggerSyncHandler queues a run over the posted group or client ids.
func TriggerSyncHandler(w *Worker, kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requestContext(c)
		if !ok {
			return
		}

		var req TriggerSyncRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			respondValidation(c, err)
			return
		}
		queueRun(c, ctx, w, kind, UniqueIds(req.Ids))
	}
}

// TriggerPayloadSyncHandler uploads clients created offline. Without ids every
// pending payload of the tenant is taken.
func TriggerPayloadSyncHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requestContext(c)
		if !ok {
			return
		}

		var req struct {
			Ids []int `json:"ids"`
		}
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		ids := UniqueIds(req.Ids)
		if len(ids) == 0 {
			pending, err := PendingPayloadIds(ctx)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			ids = pending
		}
		if len(ids) == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "no pending client payloads"})
			return
		}
		queueRun(c, ctx, w, models.SyncKindClientPayloads, ids)
	}
}

func queueRun(c *gin.Context, ctx context.Context, w *Worker, kind string, ids []int) {
	run, err := models.CreateSyncRun(ctx, kind, models.SyncTriggeredManual, ids, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	dispatchRun(c, ctx, w, run)
}

func dispatchRun(c *gin.Context, ctx context.Context, w *Worker, run *models.SyncRun) {
	if err := w.Dispatch(ctx, run); err != nil {
		config.LogError(config.GetLogger(), "handlers.go", "dispatchRun", "Dispatch", run.ID, err)
		// a run nobody will pick up must not stay queued
		if ferr := models.FailSyncRun(context.WithoutCancel(ctx), run, err.Error()); ferr != nil {
			config.LogError(config.GetLogger(), "handlers.go", "dispatchRun", "FailSyncRun", run.ID, ferr)
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not start sync", "id": run.ID})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": run.ID})
}

func SyncHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requestContext(c)
		if !ok {
			return
		}

		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListSyncRuns(ctx, strings.TrimSpace(c.Query("kind")), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, run, ok := loadRun(c)
		if !ok {
			return
		}
		failures, err := models.ListSyncFailures(ctx, run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(run),
			Failures:        mapFailures(failures),
		})
	}
}

// SyncRunStateHandler returns live progress. Once the run is gone from both
// the process and Redis the stored counters stand in.
func SyncRunStateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		_, run, ok := loadRun(c)
		if !ok {
			return
		}
		state, found, err := LoadState(run.ID)
		if err != nil {
			config.LogError(config.GetLogger(), "handlers.go", "SyncRunStateHandler", "LoadState", run.ID, err)
		}
		if !found {
			state = stateFromRun(run)
		}
		c.JSON(http.StatusOK, state)
	}
}

func RetrySyncRunHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, ok := requestContext(c)
		if !ok {
			return
		}
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
			return
		}

		run, err := RetryRun(ctx, uint(id))
		if err != nil {
			switch {
			case errors.Is(err, utils.ErrorRecordNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			case errors.Is(err, ErrRunNotFinished), errors.Is(err, ErrNothingToRetry):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			}
			return
		}
		dispatchRun(c, ctx, w, run)
	}
}

// requestContext answers 401 itself when the session carries no tenant.
func requestContext(c *gin.Context) (context.Context, bool) {
	ctx := c.Request.Context()
	if _, err := utils.TenantFromContext(ctx); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	return ctx, true
}

func loadRun(c *gin.Context) (context.Context, *models.SyncRun, bool) {
	ctx, ok := requestContext(c)
	if !ok {
		return nil, nil, false
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return nil, nil, false
	}
	run, err := models.GetSyncRun(ctx, uint(id))
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return ctx, run, true
}

func respondValidation(c *gin.Context, err error) {
	var verr *utils.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func stateFromRun(run *models.SyncRun) State {
	s := State{
		RunId:          run.ID,
		Kind:           run.Kind,
		TotalEntities:  run.TotalEntities,
		EntitiesSynced: run.EntitiesSynced,
		FailedCount:    run.EntitiesFailed,
		AccountsSynced: run.AccountsSynced,
		Done:           run.IsTerminal(),
		Success:        run.Status == models.SyncRunStatusSuccess,
		UpdatedAt:      run.UpdatedAt,
	}
	return s
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run *models.SyncRun) SyncRunResponse {
	ids, _ := run.EntityIds()
	if ids == nil {
		ids = []int{}
	}
	return SyncRunResponse{
		ID:             run.ID,
		Kind:           run.Kind,
		Status:         run.Status,
		TriggeredBy:    run.TriggeredBy,
		RequestedBy:    run.RequestedBy,
		EntityIds:      ids,
		TotalEntities:  run.TotalEntities,
		EntitiesSynced: run.EntitiesSynced,
		AccountsSynced: run.AccountsSynced,
		EntitiesFailed: run.EntitiesFailed,
		ErrorCount:     run.ErrorCount,
		ParentRunId:    run.ParentRunId,
		StartedAt:      formatTime(run.StartedAt),
		FinishedAt:     formatTime(run.FinishedAt),
		DurationMs:     run.DurationMs,
	}
}

func mapFailures(failures []*models.SyncFailure) []SyncFailureResponse {
	out := make([]SyncFailureResponse, 0, len(failures))
	for _, f := range failures {
		out = append(out, SyncFailureResponse{
			ID:         f.ID,
			EntityKind: f.EntityKind,
			EntityId:   f.EntityId,
			EntityName: f.EntityName,
			Category:   f.Category,
			Message:    f.Message,
		})
	}
	return out
}
