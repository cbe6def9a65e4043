package offlinesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverError() error {
	return &fineract.APIError{StatusCode: http.StatusInternalServerError, DefaultUserMessage: "boom"}
}

func TestClientSyncSkipsFailedClientAndContinues(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	remote.addClient(2, "Ben")
	remote.addClient(3, "Cat")
	remote.failAccounts[2] = fmt.Errorf("%w: connection refused", fineract.ErrNetwork)

	state := NewStateHolder(0, models.SyncKindClients, 3)
	res, err := NewClientSyncer(remote, state, Options{}).Sync(ctx, []int{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3}, res.Synced)
	require.Equal(t, 1, res.Failures.Len())
	f := res.Failures.Items()[0]
	assert.Equal(t, models.EntityKindClient, f.Kind)
	assert.Equal(t, 2, f.ID)
	assert.Equal(t, "Ben", f.Name)
	assert.Equal(t, fineract.CategoryNetwork, f.Category)

	for id, want := range map[int]bool{1: true, 2: false, 3: true} {
		c, err := models.GetClient(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, c.Synced, "client %d", id)
	}
}

func TestClientMarkedSyncedOnlyAfterTemplates(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(5, "Eve")
	remote.accounts[5] = fineract.Accounts{LoanAccounts: []fineract.LoanAccountSummary{activeLoan(50)}}
	remote.failLoanTpl[50] = serverError()

	res, err := NewClientSyncer(remote, NewStateHolder(0, models.SyncKindClients, 1), Options{}).Sync(ctx, []int{5})
	require.NoError(t, err)
	assert.Empty(t, res.Synced)
	require.Equal(t, 1, res.Failures.Len())
	assert.Equal(t, fineract.CategoryServer, res.Failures.Items()[0].Category)

	c, err := models.GetClient(ctx, 5)
	require.NoError(t, err)
	assert.False(t, c.Synced)
	assert.Nil(t, c.SyncedAt)

	loans, err := models.ListLoanAccounts(ctx, models.AccountOwner{ClientId: 5})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	_, err = models.GetLoanRepaymentTemplate(ctx, 50)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestOnlyActiveAccountsFetchTemplates(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(7, "Gus")
	remote.accounts[7] = fineract.Accounts{
		LoanAccounts: []fineract.LoanAccountSummary{
			activeLoan(70),
			{ID: 71, Status: fineract.LoanStatus{PendingApproval: true}},
			{ID: 72, Status: fineract.LoanStatus{Closed: true}},
		},
		SavingsAccounts: []fineract.SavingsAccountSummary{
			savingsSummary(80, fineract.DepositTypeSavings, true),
			savingsSummary(81, fineract.DepositTypeRecurring, true),
			savingsSummary(82, fineract.DepositTypeFixed, true),
			savingsSummary(83, fineract.DepositTypeSavings, false),
		},
	}

	opts := Options{DepositTypes: map[string]bool{"savings": true, "recurring": true, "fixed": true}}
	state := NewStateHolder(0, models.SyncKindClients, 1)
	res, err := NewClientSyncer(remote, state, opts).Sync(ctx, []int{7})
	require.NoError(t, err)
	assert.Equal(t, []int{7}, res.Synced)
	assert.Equal(t, 7, res.AccountsSynced)

	assert.Equal(t, []int{70}, remote.loanTplCalls)
	assert.Equal(t, []templateCall{
		{id: 80, depositType: fineract.DepositTypeSavings},
		{id: 81, depositType: fineract.DepositTypeRecurring},
	}, remote.savingsTplCalls)

	tpl, err := models.GetSavingsTransactionTemplate(ctx, 81)
	require.NoError(t, err)
	assert.Equal(t, models.DepositTypeRecurring, tpl.DepositType)
	_, err = models.GetSavingsTransactionTemplate(ctx, 82)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	savings, err := models.ListSavingsAccounts(ctx, models.AccountOwner{ClientId: 7})
	require.NoError(t, err)
	assert.Len(t, savings, 4)

	s := state.Snapshot()
	assert.Equal(t, 7, s.AccountsTotal)
	assert.Equal(t, 7, s.AccountsSynced)
	assert.Equal(t, 3, s.LoanIndex)
	assert.Equal(t, 4, s.SavingsIndex)
}

func TestDepositTypesFilterSavingsTemplates(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(8, "Hal")
	remote.accounts[8] = fineract.Accounts{SavingsAccounts: []fineract.SavingsAccountSummary{
		savingsSummary(90, fineract.DepositTypeSavings, true),
		savingsSummary(91, fineract.DepositTypeRecurring, true),
	}}

	opts := Options{DepositTypes: map[string]bool{"recurring": true}}
	_, err := NewClientSyncer(remote, NewStateHolder(0, models.SyncKindClients, 1), opts).Sync(ctx, []int{8})
	require.NoError(t, err)
	assert.Equal(t, []templateCall{{id: 91, depositType: fineract.DepositTypeRecurring}}, remote.savingsTplCalls)
}

func TestStateCountersAddUpAtTheEnd(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	remote.addClient(3, "Cat")

	state := NewStateHolder(0, models.SyncKindClients, 3)
	_, err := NewClientSyncer(remote, state, Options{}).Sync(ctx, []int{1, 2, 3, 3, -1})
	require.NoError(t, err)

	s := state.Snapshot()
	assert.True(t, s.Done)
	assert.False(t, s.Success)
	assert.Equal(t, 2, s.EntitiesSynced)
	assert.Equal(t, 1, s.FailedCount)
	assert.Equal(t, s.TotalEntities, s.EntitiesSynced+s.FailedCount)
	assert.Empty(t, s.CurrentEntity)
}

func TestCancelledRunRecordsRemainingEntities(t *testing.T) {
	ctx := setupTestDB(t)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	remote := newFakeRemote()
	remote.addClient(1, "Ann")
	remote.addClient(2, "Ben")
	remote.addClient(3, "Cat")
	remote.beforeGetClient = func(id int) error {
		if id == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	state := NewStateHolder(0, models.SyncKindClients, 3)
	res, err := NewClientSyncer(remote, state, Options{}).Sync(ctx, []int{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Synced)
	assert.Equal(t, []int{2, 3}, res.Failures.IDs(models.EntityKindClient))
	for _, f := range res.Failures.Items() {
		assert.Equal(t, fineract.CategoryCancelled, f.Category)
	}
	s := state.Snapshot()
	assert.True(t, s.Done)
	assert.Equal(t, 3, s.EntitiesSynced+s.FailedCount)
	assert.Equal(t, 0, remote.accountCalls[3])
}

func TestGroupSyncWithFailingMember(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	ann := remote.addClient(1, "Ann")
	ben := remote.addClient(2, "Ben")
	cat := remote.addClient(3, "Cat")
	remote.groups[10] = fineract.Group{ID: 10, Name: "North"}
	remote.groups[20] = fineract.Group{ID: 20, Name: "South"}
	remote.groups[30] = fineract.Group{ID: 30, Name: "East"}
	remote.members[10] = []fineract.Client{ann, ben}
	remote.members[20] = []fineract.Client{ann, cat}
	remote.members[30] = []fineract.Client{ben}
	remote.groupAccounts[20] = fineract.Accounts{LoanAccounts: []fineract.LoanAccountSummary{activeLoan(200)}}
	remote.failAccounts[2] = serverError()

	state := NewStateHolder(0, models.SyncKindGroups, 3)
	res, err := NewGroupSyncer(remote, state, Options{}).Sync(ctx, []int{10, 20, 30})
	require.NoError(t, err)

	assert.Equal(t, []int{20}, res.Synced)
	assert.Equal(t, []int{10, 30}, res.Failures.IDs(models.EntityKindGroup))
	assert.Equal(t, []int{2}, res.Failures.IDs(models.EntityKindClient))

	// each client is fetched once per run, failed or not
	assert.Equal(t, 1, remote.accountCalls[1])
	assert.Equal(t, 1, remote.accountCalls[2])
	assert.Equal(t, 1, remote.accountCalls[3])

	north, err := models.GetGroup(ctx, 10)
	require.NoError(t, err)
	assert.False(t, north.Synced)
	south, err := models.GetGroup(ctx, 20)
	require.NoError(t, err)
	assert.True(t, south.Synced)

	c, err := models.GetClient(ctx, 1)
	require.NoError(t, err)
	assert.True(t, c.Synced)
	assert.Equal(t, 10, c.GroupId)

	loans, err := models.ListLoanAccounts(ctx, models.AccountOwner{GroupId: 20})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, 200, loans[0].ID)

	s := state.Snapshot()
	assert.Equal(t, 1, s.EntitiesSynced)
	assert.Equal(t, 2, s.FailedCount)
}

func TestGroupNotFoundIsAClientFailure(t *testing.T) {
	ctx := setupTestDB(t)
	res, err := NewGroupSyncer(newFakeRemote(), NewStateHolder(0, models.SyncKindGroups, 1), Options{}).Sync(ctx, []int{99})
	require.NoError(t, err)
	require.Equal(t, 1, res.Failures.Len())
	assert.Equal(t, fineract.CategoryClient, res.Failures.Items()[0].Category)
}

func TestClientImageThumbnailIsStored(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	c := remote.addClient(4, "Dan")
	c.ImagePresent = true
	remote.clients[4] = c
	remote.clients[6] = fineract.Client{ID: 6, DisplayName: "Fay", ImagePresent: true}

	img := image.NewRGBA(image.Rect(0, 0, 400, 100))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	remote.images[4] = buf.Bytes()

	blobs := blobstore.NewMemoryStore()
	opts := Options{Blobs: blobs, ClientImages: true}
	res, err := NewClientSyncer(remote, NewStateHolder(0, models.SyncKindClients, 2), opts).Sync(ctx, []int{4, 6})
	require.NoError(t, err)
	// a missing image does not fail the client
	assert.Equal(t, []int{4, 6}, res.Synced)

	row, err := models.GetClient(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, blobstore.ClientImageKey("acme", 4), row.ImageKey)
	data, contentType, err := blobs.Get(ctx, row.ImageKey)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
	assert.NotEmpty(t, data)
	assert.Equal(t, 1, blobs.Len())
}

func TestSyncRequiresTenant(t *testing.T) {
	setupTestDB(t)
	_, err := NewClientSyncer(newFakeRemote(), NewStateHolder(0, models.SyncKindClients, 0), Options{}).Sync(context.Background(), []int{1})
	assert.ErrorIs(t, err, utils.ErrorTenantRequired)
}

func TestFailureListKeepsFirstFailure(t *testing.T) {
	l := NewFailureList()
	assert.True(t, l.Add(models.EntityKindClient, 1, "Ann", errors.New("first")))
	assert.False(t, l.Add(models.EntityKindClient, 1, "Ann", errors.New("second")))
	assert.True(t, l.Add(models.EntityKindGroup, 1, "North", context.Canceled))

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Count(models.EntityKindClient))
	assert.True(t, l.Has(models.EntityKindGroup, 1))
	assert.False(t, l.Has(models.EntityKindGroup, 2))

	items := l.Items()
	assert.Equal(t, "first", items[0].Message)
	assert.Equal(t, fineract.CategoryUnknown, items[0].Category)
	assert.Equal(t, fineract.CategoryCancelled, items[1].Category)
}

func TestUniqueIds(t *testing.T) {
	assert.Equal(t, []int{3, 1, 2}, UniqueIds([]int{3, 1, 0, 3, -4, 2, 1}))
	assert.Empty(t, UniqueIds(nil))
}
