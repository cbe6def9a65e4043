package offlinesync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(remote Remote) *Worker {
	config.SetRedisDB(nil)
	return NewWorker(func(string) (Remote, error) { return remote, nil }, Options{})
}

func TestProcessSyncRunFinishesRun(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	remote.addClient(2, "Ben")
	remote.failAccounts[2] = serverError()

	run, err := models.CreateSyncRun(ctx, models.SyncKindClients, models.SyncTriggeredManual, []int{1, 2}, nil)
	require.NoError(t, err)

	w := newTestWorker(remote)
	payload := SyncPubSubPayload{RunId: run.ID, TenantId: "acme"}
	require.NoError(t, w.ProcessSyncRun(context.Background(), payload))

	got, err := models.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusPartial, got.Status)
	assert.Equal(t, 1, got.EntitiesSynced)
	assert.Equal(t, 1, got.ErrorCount)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.FinishedAt)

	failures, err := models.ListSyncFailures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].EntityId)
	assert.Equal(t, fineract.CategoryServer, failures[0].Category)

	// a redelivered message finds the run terminal and does nothing
	require.NoError(t, w.ProcessSyncRun(context.Background(), payload))
	assert.Equal(t, 1, remote.accountCalls[1])

	_, found, err := LoadState(run.ID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProcessSyncRunRejectsBadPayload(t *testing.T) {
	setupTestDB(t)
	w := newTestWorker(newFakeRemote())
	assert.ErrorIs(t, w.ProcessSyncRun(context.Background(), SyncPubSubPayload{TenantId: "acme"}), ErrInvalidPayload)
	assert.ErrorIs(t, w.ProcessSyncRun(context.Background(), SyncPubSubPayload{RunId: 1}), ErrInvalidPayload)
	assert.ErrorIs(t, w.ProcessSyncRun(context.Background(), SyncPubSubPayload{RunId: 42, TenantId: "acme"}), utils.ErrorRecordNotFound)
}

func TestProcessSyncRunFailsWhenRemoteCannotBeBuilt(t *testing.T) {
	ctx := setupTestDB(t)
	config.SetRedisDB(nil)
	w := NewWorker(func(string) (Remote, error) { return nil, errors.New("no credentials") }, Options{})

	run, err := models.CreateSyncRun(ctx, models.SyncKindGroups, models.SyncTriggeredManual, []int{5, 6}, nil)
	require.NoError(t, err)
	require.NoError(t, w.ProcessSyncRun(context.Background(), SyncPubSubPayload{RunId: run.ID, TenantId: "acme"}))

	got, err := models.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusFailed, got.Status)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, 2, got.EntitiesFailed)

	failures, err := models.ListSyncFailures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, models.EntityKindGroup, f.EntityKind)
		assert.Equal(t, "run", f.Category)
		assert.Equal(t, "no credentials", f.Message)
	}

	// nothing got synced, so the retry covers every entity of the run
	retry, err := RetryRun(ctx, run.ID)
	require.NoError(t, err)
	ids, err := retry.EntityIds()
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6}, ids)
}

func TestProcessSyncRunGivesUpWaitingForLock(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	w := newTestWorker(remote)
	w.lockWait = 50 * time.Millisecond

	held, err := w.acquire(context.Background(), LockKey("acme", models.SyncKindClients))
	require.NoError(t, err)
	defer held()

	run, err := models.CreateSyncRun(ctx, models.SyncKindClients, models.SyncTriggeredManual, []int{1}, nil)
	require.NoError(t, err)
	require.NoError(t, w.ProcessSyncRun(context.Background(), SyncPubSubPayload{RunId: run.ID, TenantId: "acme"}))

	got, err := models.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusFailed, got.Status)
	assert.Zero(t, remote.accountCalls[1])
	ids, err := models.FailedEntityIds(ctx, run.ID, models.EntityKindClient)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	w.lockWait = time.Minute
	_, err = w.acquire(cancelled, LockKey("acme", models.SyncKindClients))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryRunTakesFailedEntitiesOfItsKind(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	ann := remote.addClient(1, "Ann")
	ben := remote.addClient(2, "Ben")
	remote.groups[10] = fineract.Group{ID: 10, Name: "North"}
	remote.groups[20] = fineract.Group{ID: 20, Name: "South"}
	remote.members[10] = []fineract.Client{ann, ben}
	remote.members[20] = []fineract.Client{ann}
	remote.failAccounts[2] = serverError()

	parent, err := models.CreateSyncRun(ctx, models.SyncKindGroups, models.SyncTriggeredManual, []int{10, 20, 30}, nil)
	require.NoError(t, err)

	_, err = RetryRun(ctx, parent.ID)
	assert.ErrorIs(t, err, ErrRunNotFinished)

	w := newTestWorker(remote)
	require.NoError(t, w.ProcessSyncRun(context.Background(), SyncPubSubPayload{RunId: parent.ID, TenantId: "acme"}))

	retry, err := RetryRun(ctx, parent.ID)
	require.NoError(t, err)
	ids, err := retry.EntityIds()
	require.NoError(t, err)
	assert.Equal(t, []int{10, 30}, ids)
	assert.Equal(t, models.SyncTriggeredRetry, retry.TriggeredBy)
	require.NotNil(t, retry.ParentRunId)
	assert.Equal(t, parent.ID, *retry.ParentRunId)
	assert.Equal(t, models.SyncRunStatusQueued, retry.Status)

	_, err = RetryRun(ctx, 999)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestRetryRunWithNothingFailed(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")

	run, err := models.CreateSyncRun(ctx, models.SyncKindClients, models.SyncTriggeredManual, []int{1}, nil)
	require.NoError(t, err)
	require.NoError(t, newTestWorker(remote).ProcessSyncRun(context.Background(), SyncPubSubPayload{RunId: run.ID, TenantId: "acme"}))

	_, err = RetryRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrNothingToRetry)
}

func TestPayloadSyncPostsAndKeepsFailures(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.failCreate["Bad"] = &fineract.APIError{
		StatusCode: http.StatusBadRequest,
		Errors:     []fineract.FieldError{{ParameterName: "mobileNo", DefaultUserMessage: "mobile number in use"}},
	}

	good, err := models.CreateClientPayload(ctx, fineract.ClientPayload{OfficeID: 1, Firstname: "Good", Lastname: "One"})
	require.NoError(t, err)
	bad, err := models.CreateClientPayload(ctx, fineract.ClientPayload{OfficeID: 1, Firstname: "Bad", Lastname: "Two"})
	require.NoError(t, err)

	ids, err := PendingPayloadIds(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{int(good.ID), int(bad.ID)}, ids)

	state := NewStateHolder(0, models.SyncKindClientPayloads, len(ids))
	res, err := NewPayloadSyncer(remote, state).Sync(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, []int{int(good.ID)}, res.Synced)
	require.Equal(t, 1, res.Failures.Len())
	f := res.Failures.Items()[0]
	assert.Equal(t, models.EntityKindClientPayload, f.Kind)
	assert.Equal(t, "Bad Two", f.Name)
	assert.Equal(t, fineract.CategoryValidation, f.Category)

	require.Len(t, remote.created, 1)
	assert.Equal(t, "Good", remote.created[0].Firstname)

	_, err = models.GetClientPayload(ctx, good.ID)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
	kept, err := models.GetClientPayload(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, kept.Attempts)
	assert.Contains(t, kept.LastError, "mobile number in use")
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "lock:sync:acme:groups", LockKey("acme", models.SyncKindGroups))
}

func testRouter(w *Worker, tenant string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if tenant != "" {
			ctx := utils.SetTenantIdInContext(c.Request.Context(), tenant)
			ctx = utils.SetUsernameInContext(ctx, "officer")
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	})
	RegisterRoutes(r.Group("/api"), w)
	r.POST("/pubsub/sync", PubSubPushHandler(w))
	return r
}

func serve(r *gin.Engine, method string, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSyncHandlersInline(t *testing.T) {
	t.Setenv("SYNC_INLINE", "true")
	setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	remote.addClient(2, "Ben")
	remote.failAccounts[2] = serverError()
	r := testRouter(newTestWorker(remote), "acme")

	rec := serve(r, http.MethodPost, "/api/sync/clients", `{"ids":[1,2,2]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)

	rec = serve(r, http.MethodGet, "/api/sync/runs/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail SyncRunDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, models.SyncRunStatusPartial, detail.Status)
	assert.Equal(t, []int{1, 2}, detail.EntityIds)
	assert.Equal(t, "officer", detail.RequestedBy)
	require.Len(t, detail.Failures, 1)
	assert.Equal(t, 2, detail.Failures[0].EntityId)

	rec = serve(r, http.MethodGet, "/api/sync/runs/"+itoa(created.ID)+"/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Done)
	assert.False(t, state.Success)
	assert.Equal(t, 2, state.EntitiesSynced+state.FailedCount)

	rec = serve(r, http.MethodPost, "/api/sync/runs/"+itoa(created.ID)+"/retry", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = serve(r, http.MethodGet, "/api/sync/runs?kind=clients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history SyncHistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Items, 2)
	assert.Equal(t, models.SyncTriggeredRetry, history.Items[0].TriggeredBy)
	assert.Equal(t, []int{2}, history.Items[0].EntityIds)
}

func TestRunStateAfterGroupRunCountsGroupsOnly(t *testing.T) {
	t.Setenv("SYNC_INLINE", "true")
	setupTestDB(t)
	remote := newFakeRemote()
	ann := remote.addClient(1, "Ann")
	remote.groups[10] = fineract.Group{ID: 10, Name: "North"}
	remote.members[10] = []fineract.Client{ann}
	remote.failAccounts[1] = serverError()
	r := testRouter(newTestWorker(remote), "acme")

	rec := serve(r, http.MethodPost, "/api/sync/groups", `{"ids":[10]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var created struct {
		ID uint `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = serve(r, http.MethodGet, "/api/sync/runs/"+itoa(created.ID)+"/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Done)
	assert.Equal(t, 1, state.TotalEntities)
	assert.Equal(t, 0, state.EntitiesSynced)
	assert.Equal(t, 1, state.FailedCount)

	rec = serve(r, http.MethodGet, "/api/sync/runs/"+itoa(created.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail SyncRunDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, 2, detail.ErrorCount)
	assert.Equal(t, 1, detail.EntitiesFailed)
}

func TestSyncHandlerErrors(t *testing.T) {
	t.Setenv("SYNC_INLINE", "true")
	setupTestDB(t)
	w := newTestWorker(newFakeRemote())
	r := testRouter(w, "acme")

	rec := serve(r, http.MethodPost, "/api/sync/clients", `{"ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Ids"`)

	rec = serve(r, http.MethodPost, "/api/sync/clients", `{"ids":[0]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(r, http.MethodPost, "/api/sync/client-payloads", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(r, http.MethodGet, "/api/sync/runs/77", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = serve(r, http.MethodGet, "/api/sync/runs/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = serve(r, http.MethodPost, "/api/sync/runs/77/retry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	anon := testRouter(w, "")
	rec = serve(anon, http.MethodGet, "/api/sync/runs", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPubSubPushHandlerAlwaysAcks(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	w := newTestWorker(remote)
	r := testRouter(w, "")

	rec := serve(r, http.MethodPost, "/pubsub/sync", `not json`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	run, err := models.CreateSyncRun(ctx, models.SyncKindClients, models.SyncTriggeredManual, []int{1}, nil)
	require.NoError(t, err)
	envelope, err := json.Marshal(map[string]any{
		"message": map[string]any{"data": encodePayload(SyncPubSubPayload{RunId: run.ID, TenantId: "acme"})},
	})
	require.NoError(t, err)

	rec = serve(r, http.MethodPost, "/pubsub/sync", string(envelope))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := models.GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncRunStatusSuccess, got.Status)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
