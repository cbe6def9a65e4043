package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

type SyncRun struct {
	ID             uint       `gorm:"primary_key" json:"id"`
	TenantId       string     `gorm:"index;size:64;not null" json:"tenant_id"`
	Kind           string     `gorm:"index;size:30;not null" json:"kind"`
	Status         string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy    string     `gorm:"size:20" json:"triggered_by"`
	RequestedBy    string     `gorm:"size:100" json:"requested_by"`
	EntityIdsJSON  []byte     `gorm:"type:json" json:"entity_ids"`
	TotalEntities  int        `json:"total_entities"`
	EntitiesSynced int        `json:"entities_synced"`
	AccountsSynced int        `json:"accounts_synced"`
	EntitiesFailed int        `json:"entities_failed"`
	ErrorCount     int        `json:"error_count"`
	ParentRunId    *uint      `gorm:"index" json:"parent_run_id"`
	StartedAt      *time.Time `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	DurationMs     int64      `json:"duration_ms"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncFailure struct {
	ID         uint      `gorm:"primary_key" json:"id"`
	SyncRunId  uint      `gorm:"index;not null" json:"sync_run_id"`
	TenantId   string    `gorm:"index;size:64;not null" json:"tenant_id"`
	EntityKind string    `gorm:"size:30" json:"entity_kind"`
	EntityId   int       `json:"entity_id"`
	EntityName string    `gorm:"size:255" json:"entity_name"`
	Category   string    `gorm:"size:30" json:"category"`
	Message    string    `gorm:"type:text" json:"message"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// EntityKindOf is the kind of entity a run of the given kind walks.
func EntityKindOf(runKind string) string {
	switch runKind {
	case SyncKindGroups:
		return EntityKindGroup
	case SyncKindClientPayloads:
		return EntityKindClientPayload
	default:
		return EntityKindClient
	}
}

// SyncRunResult is what a finished orchestrator reports back to its run.
type SyncRunResult struct {
	EntitiesSynced int
	AccountsSynced int
	Failures       []SyncFailure
}

func (r *SyncRun) EntityIds() ([]int, error) {
	if len(r.EntityIdsJSON) == 0 {
		return nil, nil
	}
	var ids []int
	if err := json.Unmarshal(r.EntityIdsJSON, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SyncRun) IsTerminal() bool {
	switch r.Status {
	case SyncRunStatusSuccess, SyncRunStatusFailed, SyncRunStatusPartial:
		return true
	}
	return false
}

// FinalSyncRunStatus: failed when nothing got through, partial when some did.
func FinalSyncRunStatus(synced int, errorCount int) string {
	switch {
	case errorCount > 0 && synced == 0:
		return SyncRunStatusFailed
	case errorCount > 0:
		return SyncRunStatusPartial
	default:
		return SyncRunStatusSuccess
	}
}

func CreateSyncRun(ctx context.Context, kind string, triggeredBy string, ids []int, parentRunId *uint) (*SyncRun, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []int{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	username, _ := utils.GetUsernameFromContext(ctx)
	run := SyncRun{
		TenantId:      tenantId,
		Kind:          kind,
		Status:        SyncRunStatusQueued,
		TriggeredBy:   triggeredBy,
		RequestedBy:   username,
		EntityIdsJSON: b,
		TotalEntities: len(ids),
		ParentRunId:   parentRunId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func GetSyncRun(ctx context.Context, id uint) (*SyncRun, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var run SyncRun
	err = config.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantId).First(&run, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func ListSyncRuns(ctx context.Context, kind string, limit int) ([]*SyncRun, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	db := config.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantId)
	if kind != "" {
		db = db.Where("kind = ?", kind)
	}
	var runs []*SyncRun
	err = db.Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func MarkSyncRunRunning(ctx context.Context, run *SyncRun) error {
	now := time.Now()
	run.Status = SyncRunStatusRunning
	run.StartedAt = &now
	return config.GetDB().WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     run.Status,
		"started_at": now,
	}).Error
}

// FinishSyncRun stores the failures and the final counters of a run in one transaction.
func FinishSyncRun(ctx context.Context, run *SyncRun, result SyncRunResult) error {
	now := time.Now()
	run.EntitiesSynced = result.EntitiesSynced
	run.AccountsSynced = result.AccountsSynced
	run.ErrorCount = len(result.Failures)
	run.EntitiesFailed = countFailedEntities(result.Failures, EntityKindOf(run.Kind))
	run.Status = FinalSyncRunStatus(result.EntitiesSynced, run.ErrorCount)
	run.FinishedAt = &now
	if run.StartedAt != nil {
		run.DurationMs = now.Sub(*run.StartedAt).Milliseconds()
	}

	return config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(result.Failures) > 0 {
			failures := make([]SyncFailure, len(result.Failures))
			copy(failures, result.Failures)
			for i := range failures {
				failures[i].SyncRunId = run.ID
				failures[i].TenantId = run.TenantId
			}
			if err := tx.Create(&failures).Error; err != nil {
				return err
			}
		}
		return tx.Model(run).Updates(map[string]interface{}{
			"status":          run.Status,
			"entities_synced": run.EntitiesSynced,
			"accounts_synced": run.AccountsSynced,
			"entities_failed": run.EntitiesFailed,
			"error_count":     run.ErrorCount,
			"finished_at":     now,
			"duration_ms":     run.DurationMs,
		}).Error
	})
}

// countFailedEntities counts the distinct entities of the run's own kind that
// failed. Member clients failing inside a group run are not among them.
func countFailedEntities(failures []SyncFailure, entityKind string) int {
	seen := make(map[int]bool, len(failures))
	for _, f := range failures {
		if f.EntityKind == entityKind && f.EntityId != 0 {
			seen[f.EntityId] = true
		}
	}
	return len(seen)
}

// FailSyncRun closes a run that could not execute at all. Every entity of the
// run gets a failure row so a retry picks all of them up.
func FailSyncRun(ctx context.Context, run *SyncRun, message string) error {
	entityKind := EntityKindOf(run.Kind)
	ids, _ := run.EntityIds()
	failures := make([]SyncFailure, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		failures = append(failures, SyncFailure{
			EntityKind: entityKind,
			EntityId:   id,
			Category:   "run",
			Message:    message,
		})
	}
	if len(failures) == 0 {
		failures = append(failures, SyncFailure{EntityKind: entityKind, Category: "run", Message: message})
	}
	return FinishSyncRun(ctx, run, SyncRunResult{Failures: failures})
}

func ListSyncFailures(ctx context.Context, runId uint) ([]*SyncFailure, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var failures []*SyncFailure
	err = config.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND sync_run_id = ?", tenantId, runId).
		Order("id").Find(&failures).Error
	return failures, err
}

// FailedEntityIds lists the distinct ids of entityKind that failed in a run, in failure order.
func FailedEntityIds(ctx context.Context, runId uint, entityKind string) ([]int, error) {
	failures, err := ListSyncFailures(ctx, runId)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(failures))
	ids := make([]int, 0, len(failures))
	for _, f := range failures {
		if f.EntityKind != entityKind || f.EntityId == 0 || seen[f.EntityId] {
			continue
		}
		seen[f.EntityId] = true
		ids = append(ids, f.EntityId)
	}
	return ids, nil
}
