package models

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := config.OpenDatabase(config.DriverSQLite, dsn)
	require.NoError(t, err)
	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		config.SetDB(prev)
	})
	require.NoError(t, AutoMigrate())
	return utils.SetTenantIdInContext(context.Background(), "acme")
}

func TestGroupSyncedMarkIsResetOnUpsert(t *testing.T) {
	ctx := setupTestDB(t)

	g := NewGroupFromRemote("", fineract.Group{ID: 3, Name: "Alpha", Active: true})
	require.NoError(t, UpsertGroup(ctx, g))
	require.NoError(t, MarkGroupSynced(ctx, 3))

	got, err := GetGroup(ctx, 3)
	require.NoError(t, err)
	assert.True(t, got.Synced)
	require.NotNil(t, got.SyncedAt)

	require.NoError(t, UpsertGroup(ctx, NewGroupFromRemote("", fineract.Group{ID: 3, Name: "Alpha 2"})))
	got, err = GetGroup(ctx, 3)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Equal(t, "Alpha 2", got.Name)
	assert.Equal(t, "acme", got.TenantId)
}

func TestMarkSyncedUnknownEntity(t *testing.T) {
	ctx := setupTestDB(t)
	assert.ErrorIs(t, MarkClientSynced(ctx, 404), utils.ErrorRecordNotFound)
}

func TestTenantRequired(t *testing.T) {
	setupTestDB(t)
	_, err := GetGroup(context.Background(), 1)
	assert.ErrorIs(t, err, utils.ErrorTenantRequired)
}

func TestTenantsDoNotSeeEachOther(t *testing.T) {
	ctx := setupTestDB(t)
	other := utils.SetTenantIdInContext(context.Background(), "other")

	require.NoError(t, UpsertClient(ctx, &Client{ID: 1, DisplayName: "acme client"}))
	require.NoError(t, UpsertClient(other, &Client{ID: 1, DisplayName: "other client"}))

	a, err := GetClient(ctx, 1)
	require.NoError(t, err)
	b, err := GetClient(other, 1)
	require.NoError(t, err)
	assert.Equal(t, "acme client", a.DisplayName)
	assert.Equal(t, "other client", b.DisplayName)
}

func TestUpsertClientKeepsGroupAndImage(t *testing.T) {
	ctx := setupTestDB(t)

	require.NoError(t, UpsertClient(ctx, &Client{ID: 5, DisplayName: "Ann", GroupId: 3}))
	require.NoError(t, SetClientImageKey(ctx, 5, "clients/5.jpg"))
	require.NoError(t, UpsertClient(ctx, &Client{ID: 5, DisplayName: "Ann B"}))

	c, err := GetClient(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, c.GroupId)
	assert.Equal(t, "clients/5.jpg", c.ImageKey)
	assert.Equal(t, "Ann B", c.DisplayName)
}

func TestAccountStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status fineract.LoanStatus
		want   AccountStatus
	}{
		{"active", fineract.LoanStatus{Active: true}, AccountStatusActive},
		{"pending", fineract.LoanStatus{PendingApproval: true}, AccountStatusPendingApproval},
		{"awaiting", fineract.LoanStatus{WaitingForDisbursal: true}, AccountStatusAwaitingDisbursal},
		{"closed by code", fineract.LoanStatus{Code: "loanStatusType.closed.obligations.met"}, AccountStatusClosed},
		{"other", fineract.LoanStatus{Code: "loanStatusType.overpaid"}, AccountStatusOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LoanStatusOf(tt.status))
		})
	}

	assert.Equal(t, DepositTypeRecurring, DepositTypeOf(fineract.SavingsAccountSummary{DepositType: fineract.EnumOption{ID: 300}}))
	assert.Equal(t, DepositTypeFixed, DepositTypeOf(fineract.SavingsAccountSummary{DepositType: fineract.EnumOption{Code: "depositAccountType.fixedDeposit"}}))
	assert.Equal(t, DepositTypeSavings, DepositTypeOf(fineract.SavingsAccountSummary{}))
	assert.Equal(t, fineract.DepositTypeRecurring, DepositTypeRecurring.FineractID())
}

func TestCollectionSheet(t *testing.T) {
	ctx := setupTestDB(t)
	due := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, UpsertGroup(ctx, &Group{ID: 3, Name: "Alpha"}))
	require.NoError(t, UpsertClient(ctx, &Client{ID: 1, DisplayName: "Ann", GroupId: 3}))
	require.NoError(t, UpsertClient(ctx, &Client{ID: 2, DisplayName: "Bob", GroupId: 3}))

	require.NoError(t, UpsertLoanAccount(ctx, &LoanAccount{ID: 10, ClientId: 1, Status: AccountStatusActive, TotalOutstanding: decimal.NewFromInt(500)}))
	require.NoError(t, UpsertLoanRepaymentTemplate(ctx, &LoanRepaymentTemplate{LoanId: 10, TransactionDate: &due, Amount: decimal.RequireFromString("55.50"), CurrencyCode: "USD"}))
	require.NoError(t, UpsertLoanAccount(ctx, &LoanAccount{ID: 11, ClientId: 2, Status: AccountStatusClosed}))
	require.NoError(t, UpsertSavingsAccount(ctx, &SavingsAccount{ID: 20, ClientId: 2, Status: AccountStatusActive, DepositType: DepositTypeRecurring}))
	require.NoError(t, UpsertSavingsTransactionTemplate(ctx, &SavingsTransactionTemplate{SavingsId: 20, DepositType: DepositTypeRecurring, Amount: decimal.NewFromInt(10)}))
	require.NoError(t, UpsertSavingsAccount(ctx, &SavingsAccount{ID: 21, ClientId: 2, Status: AccountStatusActive, DepositType: DepositTypeFixed}))

	sheet, err := GetCollectionSheet(ctx, 3)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, CollectionKindLoan, sheet.Rows[0].Kind)
	assert.Equal(t, "Ann", sheet.Rows[0].ClientName)
	require.NotNil(t, sheet.Rows[0].DueDate)
	assert.True(t, due.Equal(*sheet.Rows[0].DueDate))
	assert.Equal(t, CollectionKindSavings, sheet.Rows[1].Kind)
	assert.True(t, decimal.RequireFromString("65.50").Equal(sheet.Total))
}

func TestSyncRunLifecycle(t *testing.T) {
	ctx := setupTestDB(t)

	run, err := CreateSyncRun(ctx, SyncKindClients, SyncTriggeredManual, []int{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, SyncRunStatusQueued, run.Status)
	assert.Equal(t, 3, run.TotalEntities)

	require.NoError(t, MarkSyncRunRunning(ctx, run))
	require.NoError(t, FinishSyncRun(ctx, run, SyncRunResult{
		EntitiesSynced: 1,
		Failures: []SyncFailure{
			{EntityKind: EntityKindClient, EntityId: 2, Category: fineract.CategoryServer, Message: "boom"},
			{EntityKind: EntityKindClient, EntityId: 3, Category: fineract.CategoryNetwork, Message: "down"},
		},
	}))

	got, err := GetSyncRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncRunStatusPartial, got.Status)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, 2, got.EntitiesFailed)
	assert.True(t, got.IsTerminal())

	ids, err := FailedEntityIds(ctx, run.ID, EntityKindClient)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ids)

	entityIds, err := got.EntityIds()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, entityIds)
}

func TestFinalSyncRunStatus(t *testing.T) {
	assert.Equal(t, SyncRunStatusSuccess, FinalSyncRunStatus(3, 0))
	assert.Equal(t, SyncRunStatusSuccess, FinalSyncRunStatus(0, 0))
	assert.Equal(t, SyncRunStatusPartial, FinalSyncRunStatus(2, 1))
	assert.Equal(t, SyncRunStatusFailed, FinalSyncRunStatus(0, 1))
}

func TestClientPayloadQueue(t *testing.T) {
	ctx := setupTestDB(t)

	p, err := CreateClientPayload(ctx, fineract.ClientPayload{OfficeID: 1, Firstname: "Ann", Lastname: "Lee"})
	require.NoError(t, err)
	require.NoError(t, RecordClientPayloadError(ctx, p.ID, "timeout"))

	got, err := GetClientPayload(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "timeout", got.LastError)
	decoded, err := got.Decode()
	require.NoError(t, err)
	assert.Equal(t, "Ann", decoded.Firstname)

	require.NoError(t, DeleteClientPayload(ctx, p.ID))
	_, err = GetClientPayload(ctx, p.ID)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestPasscode(t *testing.T) {
	ctx := setupTestDB(t)

	assert.ErrorIs(t, VerifyPasscode(ctx, "jane", "1234"), utils.ErrorRecordNotFound)
	require.NoError(t, SetPasscode(ctx, "jane", "1234"))
	assert.NoError(t, VerifyPasscode(ctx, "jane", "1234"))
	assert.ErrorIs(t, VerifyPasscode(ctx, "jane", "9999"), utils.ErrorInvalidPasscode)
}

func TestNotesReplaceAndDelete(t *testing.T) {
	ctx := setupTestDB(t)

	require.NoError(t, SaveNote(ctx, &Note{ID: 1, EntityType: "clients", EntityId: 5, Text: "stale"}))
	require.NoError(t, ReplaceNotes(ctx, "clients", 5, []*Note{
		NewNoteFromRemote("", "clients", 5, fineract.Note{ID: 2, Note: "visited", CreatedOn: 1700000000000}),
	}))

	notes, err := ListNotes(ctx, "clients", 5)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "visited", notes[0].Text)
	require.NotNil(t, notes[0].CreatedOn)

	_, err = GetNote(ctx, "groups", 5, 2)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	require.NoError(t, DeleteNote(ctx, 2))
	notes, err = ListNotes(ctx, "clients", 5)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDocumentKeepsObjectKey(t *testing.T) {
	ctx := setupTestDB(t)

	require.NoError(t, SaveDocument(ctx, &Document{ID: 9, EntityType: "clients", EntityId: 5, Name: "ID", ObjectKey: "documents/9"}))
	require.NoError(t, SaveDocument(ctx, NewDocumentFromRemote("", fineract.Document{ID: 9, ParentEntityType: "clients", ParentEntityID: 5, Name: "ID card"})))

	doc, err := GetDocument(ctx, "clients", 5, 9)
	require.NoError(t, err)
	assert.Equal(t, "ID card", doc.Name)
	assert.Equal(t, "documents/9", doc.ObjectKey)
}
