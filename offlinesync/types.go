package offlinesync

import (
	"context"
	"encoding/json"

	"github.com/mmdatafocus/fieldsync/fineract"
)

// Remote is the part of the Fineract client a sync run talks to.
type Remote interface {
	GetGroup(ctx context.Context, groupID int) (fineract.Group, error)
	GetGroupClients(ctx context.Context, groupID int) ([]fineract.Client, error)
	GetGroupAccounts(ctx context.Context, groupID int) (fineract.Accounts, error)
	GetClient(ctx context.Context, clientID int) (fineract.Client, error)
	GetClientAccounts(ctx context.Context, clientID int) (fineract.Accounts, error)
	GetClientImage(ctx context.Context, clientID int) ([]byte, error)
	GetLoanRepaymentTemplate(ctx context.Context, loanID int) (fineract.LoanRepaymentTemplate, error)
	GetSavingsTransactionTemplate(ctx context.Context, savingsID int, depositType int) (fineract.SavingsTransactionTemplate, error)
	CreateClient(ctx context.Context, payload fineract.ClientPayload) (fineract.CommandResult, error)
}

type SyncPubSubPayload struct {
	RunId    uint   `json:"run_id"`
	TenantId string `json:"tenant_id"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type TriggerSyncRequest struct {
	Ids []int `json:"ids" validate:"required,min=1,dive,gt=0"`
}

type SyncRunResponse struct {
	ID             uint    `json:"id"`
	Kind           string  `json:"kind"`
	Status         string  `json:"status"`
	TriggeredBy    string  `json:"triggered_by"`
	RequestedBy    string  `json:"requested_by"`
	EntityIds      []int   `json:"entity_ids"`
	TotalEntities  int     `json:"total_entities"`
	EntitiesSynced int     `json:"entities_synced"`
	AccountsSynced int     `json:"accounts_synced"`
	EntitiesFailed int     `json:"entities_failed"`
	ErrorCount     int     `json:"error_count"`
	ParentRunId    *uint   `json:"parent_run_id"`
	StartedAt      *string `json:"started_at"`
	FinishedAt     *string `json:"finished_at"`
	DurationMs     int64   `json:"duration_ms"`
}

type SyncFailureResponse struct {
	ID         uint   `json:"id"`
	EntityKind string `json:"entity_kind"`
	EntityId   int    `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Category   string `json:"category"`
	Message    string `json:"message"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Failures []SyncFailureResponse `json:"failures"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

func encodePayload(p SyncPubSubPayload) []byte {
	b, _ := json.Marshal(p)
	return b
}
