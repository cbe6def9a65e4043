package offlinesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrRunNotFinished  = errors.New("sync run has not finished")
	ErrNothingToRetry  = errors.New("sync run has no failed entities")
	ErrUnknownSyncKind = errors.New("unknown sync kind")
)

// RemoteFactory builds the Fineract client a run of the tenant uses.
type RemoteFactory func(tenantId string) (Remote, error)

// FineractRemote connects with the service account from the environment.
func FineractRemote(tenantId string) (Remote, error) {
	cfg := fineract.ConfigFromEnv()
	cfg.Tenant = tenantId
	c, err := fineract.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type Worker struct {
	newRemote RemoteFactory
	opts      Options
	lockTTL   time.Duration
	lockWait  time.Duration
}

func NewWorker(newRemote RemoteFactory, opts Options) *Worker {
	return &Worker{
		newRemote: newRemote,
		opts:      opts,
		lockTTL:   time.Duration(config.EnvIntDefault("SYNC_LOCK_TTL_MINUTES", 30)) * time.Minute,
		lockWait:  time.Duration(config.EnvIntDefault("SYNC_LOCK_WAIT_SECONDS", 60)) * time.Second,
	}
}

func LockKey(tenantId string, kind string) string {
	return fmt.Sprintf("lock:sync:%s:%s", tenantId, kind)
}

var (
	localLocks   = make(map[string]chan struct{})
	localLocksMu sync.Mutex
)

func localLock(key string) chan struct{} {
	localLocksMu.Lock()
	defer localLocksMu.Unlock()
	sem, ok := localLocks[key]
	if !ok {
		sem = make(chan struct{}, 1)
		localLocks[key] = sem
	}
	return sem
}

// acquire serializes runs of one kind per tenant: across instances through
// Redis, inside this process when Redis is not configured. Either way it gives
// up after lockWait.
func (w *Worker) acquire(ctx context.Context, key string) (func(), error) {
	locker := config.GetRedisLock()
	if locker == nil {
		sem := localLock(key)
		timer := time.NewTimer(w.lockWait)
		defer timer.Stop()
		select {
		case sem <- struct{}{}:
			return func() { <-sem }, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("another %s is running", key)
		}
	}
	retries := int(w.lockWait / time.Second)
	lock, err := locker.Obtain(ctx, key, w.lockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(time.Second), retries),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("another %s is running", key)
		}
		return nil, err
	}
	return func() { _ = lock.Release(context.Background()) }, nil
}

// ProcessSyncRun executes a queued run to completion. Terminal runs are left
// alone so a redelivered message is harmless.
func (w *Worker) ProcessSyncRun(ctx context.Context, payload SyncPubSubPayload) error {
	if payload.RunId == 0 || payload.TenantId == "" {
		return ErrInvalidPayload
	}
	ctx = utils.SetTenantIdInContext(ctx, payload.TenantId)

	run, err := models.GetSyncRun(ctx, payload.RunId)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return nil
	}
	// bookkeeping must land even when the run itself was cancelled
	saveCtx := context.WithoutCancel(ctx)

	release, err := w.acquire(ctx, LockKey(run.TenantId, run.Kind))
	if err != nil {
		return models.FailSyncRun(saveCtx, run, err.Error())
	}
	defer release()

	// a redelivery may have finished it while we waited
	if fresh, err := models.GetSyncRun(ctx, run.ID); err == nil && fresh.IsTerminal() {
		return nil
	}

	if err := models.MarkSyncRunRunning(ctx, run); err != nil {
		return err
	}

	ids, err := run.EntityIds()
	if err != nil {
		return models.FailSyncRun(saveCtx, run, err.Error())
	}
	remote, err := w.newRemote(run.TenantId)
	if err != nil {
		return models.FailSyncRun(saveCtx, run, err.Error())
	}

	state := NewStateHolder(run.ID, run.Kind, len(UniqueIds(ids)))
	registerState(state)
	defer unregisterState(run.ID)

	ctx, span := tracer.Start(ctx, "sync.run", trace.WithAttributes(
		attribute.Int64("run.id", int64(run.ID)),
		attribute.String("run.kind", run.Kind),
		attribute.String("tenant.id", run.TenantId),
	))
	defer span.End()

	var result Result
	switch run.Kind {
	case models.SyncKindGroups:
		result, err = NewGroupSyncer(remote, state, w.opts).Sync(ctx, ids)
	case models.SyncKindClients:
		result, err = NewClientSyncer(remote, state, w.opts).Sync(ctx, ids)
	case models.SyncKindClientPayloads:
		result, err = NewPayloadSyncer(remote, state).Sync(ctx, ids)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownSyncKind, run.Kind)
	}
	if err != nil {
		span.RecordError(err)
		return models.FailSyncRun(saveCtx, run, err.Error())
	}

	span.SetAttributes(
		attribute.Int("run.synced", len(result.Synced)),
		attribute.Int("run.failed", result.Failures.Len()),
	)
	return models.FinishSyncRun(saveCtx, run, result.RunResult())
}

// RetryRun queues a new run over the entities the parent run failed on.
func RetryRun(ctx context.Context, parentId uint) (*models.SyncRun, error) {
	parent, err := models.GetSyncRun(ctx, parentId)
	if err != nil {
		return nil, err
	}
	if !parent.IsTerminal() {
		return nil, ErrRunNotFinished
	}
	ids, err := models.FailedEntityIds(ctx, parent.ID, models.EntityKindOf(parent.Kind))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNothingToRetry
	}
	return models.CreateSyncRun(ctx, parent.Kind, models.SyncTriggeredRetry, ids, &parent.ID)
}

// Dispatch hands a queued run to the worker pool, or runs it here when
// SYNC_INLINE is set.
func (w *Worker) Dispatch(ctx context.Context, run *models.SyncRun) error {
	payload := SyncPubSubPayload{RunId: run.ID, TenantId: run.TenantId}
	if config.SyncInline() {
		return w.ProcessSyncRun(ctx, payload)
	}
	return PublishSyncRun(ctx, payload)
}
