package offlinesync

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
)

// accountSyncer writes the accounts of one owner and, for active ones, the
// repayment or transaction template Fineract proposes next.
type accountSyncer struct {
	remote       Remote
	state        *StateHolder
	depositTypes map[string]bool
}

// sync stops at the first failing account; the caller fails the whole entity.
func (a *accountSyncer) sync(ctx context.Context, tenantId string, owner models.AccountOwner, accounts fineract.Accounts) (int, error) {
	a.state.addAccounts(len(accounts.LoanAccounts) + len(accounts.SavingsAccounts))

	synced := 0
	for i, l := range accounts.LoanAccounts {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		loan := models.NewLoanAccountFromRemote(tenantId, owner, l)
		if err := models.UpsertLoanAccount(ctx, loan); err != nil {
			return synced, fmt.Errorf("loan %d: %w", l.ID, err)
		}
		if loan.Status == models.AccountStatusActive {
			tpl, err := a.remote.GetLoanRepaymentTemplate(ctx, l.ID)
			if err != nil {
				return synced, fmt.Errorf("loan %d repayment template: %w", l.ID, err)
			}
			if err := models.UpsertLoanRepaymentTemplate(ctx, models.NewLoanRepaymentTemplateFromRemote(tenantId, l.ID, tpl)); err != nil {
				return synced, fmt.Errorf("loan %d repayment template: %w", l.ID, err)
			}
		}
		a.state.loanDone(i)
		synced++
	}

	for i, s := range accounts.SavingsAccounts {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		savings := models.NewSavingsAccountFromRemote(tenantId, owner, s)
		if err := models.UpsertSavingsAccount(ctx, savings); err != nil {
			return synced, fmt.Errorf("savings %d: %w", s.ID, err)
		}
		if wantsSavingsTemplate(savings, a.depositTypes) {
			tpl, err := a.remote.GetSavingsTransactionTemplate(ctx, s.ID, savings.DepositType.FineractID())
			if err != nil {
				return synced, fmt.Errorf("savings %d transaction template: %w", s.ID, err)
			}
			row := models.NewSavingsTransactionTemplateFromRemote(tenantId, s.ID, savings.DepositType, tpl)
			if err := models.UpsertSavingsTransactionTemplate(ctx, row); err != nil {
				return synced, fmt.Errorf("savings %d transaction template: %w", s.ID, err)
			}
		}
		a.state.savingsDone(i)
		synced++
	}
	return synced, nil
}

// Fixed deposits take no periodic deposits, so they never have a template.
func wantsSavingsTemplate(s *models.SavingsAccount, depositTypes map[string]bool) bool {
	if s.Status != models.AccountStatusActive || s.DepositType == models.DepositTypeFixed {
		return false
	}
	return depositTypes[string(s.DepositType)]
}
