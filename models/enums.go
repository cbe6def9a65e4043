package models

import (
	"strings"

	"github.com/mmdatafocus/fieldsync/fineract"
)

type AccountStatus string

const (
	AccountStatusActive            AccountStatus = "active"
	AccountStatusPendingApproval   AccountStatus = "pending_approval"
	AccountStatusApproved          AccountStatus = "approved"
	AccountStatusAwaitingDisbursal AccountStatus = "awaiting_disbursal"
	AccountStatusClosed            AccountStatus = "closed"
	AccountStatusOther             AccountStatus = "other"
)

type DepositType string

const (
	DepositTypeSavings   DepositType = "savings"
	DepositTypeRecurring DepositType = "recurring"
	DepositTypeFixed     DepositType = "fixed"
)

// Sync run kinds.
const (
	SyncKindGroups         = "groups"
	SyncKindClients        = "clients"
	SyncKindClientPayloads = "client_payloads"
)

// Kinds of entities recorded in the failure list.
const (
	EntityKindGroup         = "group"
	EntityKindClient        = "client"
	EntityKindClientPayload = "client_payload"
)

func LoanStatusOf(s fineract.LoanStatus) AccountStatus {
	switch {
	case s.Active:
		return AccountStatusActive
	case s.PendingApproval:
		return AccountStatusPendingApproval
	case s.WaitingForDisbursal:
		return AccountStatusAwaitingDisbursal
	case s.Closed || strings.HasPrefix(s.Code, "loanStatusType.closed"):
		return AccountStatusClosed
	default:
		return AccountStatusOther
	}
}

func SavingsStatusOf(s fineract.SavingsStatus) AccountStatus {
	switch {
	case s.Active:
		return AccountStatusActive
	case s.SubmittedAndPendingApproval:
		return AccountStatusPendingApproval
	case s.Closed:
		return AccountStatusClosed
	case s.Approved:
		return AccountStatusApproved
	default:
		return AccountStatusOther
	}
}

func DepositTypeOf(s fineract.SavingsAccountSummary) DepositType {
	switch fineract.DepositTypeOf(s) {
	case fineract.DepositTypeRecurring:
		return DepositTypeRecurring
	case fineract.DepositTypeFixed:
		return DepositTypeFixed
	default:
		return DepositTypeSavings
	}
}

// FineractID maps the cached deposit type back to Fineract's id.
func (t DepositType) FineractID() int {
	switch t {
	case DepositTypeRecurring:
		return fineract.DepositTypeRecurring
	case DepositTypeFixed:
		return fineract.DepositTypeFixed
	default:
		return fineract.DepositTypeSavings
	}
}
