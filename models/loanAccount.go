package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

type LoanAccount struct {
	TenantId         string          `gorm:"primaryKey;size:64" json:"tenant_id"`
	ID               int             `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountNo        string          `gorm:"size:50" json:"account_no"`
	ProductId        int             `json:"product_id"`
	ProductName      string          `gorm:"size:255" json:"product_name"`
	ClientId         int             `gorm:"index" json:"client_id"`
	GroupId          int             `gorm:"index" json:"group_id"`
	Status           AccountStatus   `gorm:"size:30;index" json:"status"`
	Principal        decimal.Decimal `gorm:"type:decimal(20,4)" json:"principal"`
	TotalOutstanding decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_outstanding"`
	AmountPaid       decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount_paid"`
	SyncedAt         time.Time       `json:"synced_at"`
}

// LoanRepaymentTemplate is the next repayment Fineract proposes for an active loan.
type LoanRepaymentTemplate struct {
	TenantId              string          `gorm:"primaryKey;size:64" json:"tenant_id"`
	LoanId                int             `gorm:"primaryKey;autoIncrement:false" json:"loan_id"`
	TransactionDate       *time.Time      `json:"transaction_date"`
	CurrencyCode          string          `gorm:"size:10" json:"currency_code"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	PrincipalPortion      decimal.Decimal `gorm:"type:decimal(20,4)" json:"principal_portion"`
	InterestPortion       decimal.Decimal `gorm:"type:decimal(20,4)" json:"interest_portion"`
	FeeChargesPortion     decimal.Decimal `gorm:"type:decimal(20,4)" json:"fee_charges_portion"`
	PenaltyChargesPortion decimal.Decimal `gorm:"type:decimal(20,4)" json:"penalty_charges_portion"`
	SyncedAt              time.Time       `json:"synced_at"`
}

// AccountOwner says whose accounts are being written; exactly one id is set.
type AccountOwner struct {
	ClientId int
	GroupId  int
}

func NewLoanAccountFromRemote(tenantId string, owner AccountOwner, l fineract.LoanAccountSummary) *LoanAccount {
	return &LoanAccount{
		TenantId:         tenantId,
		ID:               l.ID,
		AccountNo:        l.AccountNo,
		ProductId:        l.ProductID,
		ProductName:      l.ProductName,
		ClientId:         owner.ClientId,
		GroupId:          owner.GroupId,
		Status:           LoanStatusOf(l.Status),
		Principal:        l.OriginalLoan,
		TotalOutstanding: l.LoanBalance,
		AmountPaid:       l.AmountPaid,
	}
}

func NewLoanRepaymentTemplateFromRemote(tenantId string, loanId int, t fineract.LoanRepaymentTemplate) *LoanRepaymentTemplate {
	return &LoanRepaymentTemplate{
		TenantId:              tenantId,
		LoanId:                loanId,
		TransactionDate:       datePtr(t.Date),
		CurrencyCode:          t.Currency.Code,
		Amount:                t.Amount,
		PrincipalPortion:      t.PrincipalPortion,
		InterestPortion:       t.InterestPortion,
		FeeChargesPortion:     t.FeeChargesPortion,
		PenaltyChargesPortion: t.PenaltyChargesPortion,
	}
}

func datePtr(d fineract.LocalDate) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func UpsertLoanAccount(ctx context.Context, l *LoanAccount) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	l.TenantId = tenantId
	l.SyncedAt = time.Now()
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(l).Error
}

func UpsertLoanRepaymentTemplate(ctx context.Context, t *LoanRepaymentTemplate) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	t.TenantId = tenantId
	t.SyncedAt = time.Now()
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(t).Error
}

func ListLoanAccounts(ctx context.Context, owner AccountOwner) ([]*LoanAccount, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantId)
	if owner.GroupId != 0 {
		db = db.Where("group_id = ?", owner.GroupId)
	} else {
		db = db.Where("client_id = ?", owner.ClientId)
	}
	var loans []*LoanAccount
	err = db.Order("id").Find(&loans).Error
	return loans, err
}

func GetLoanRepaymentTemplate(ctx context.Context, loanId int) (*LoanRepaymentTemplate, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var t LoanRepaymentTemplate
	res := config.GetDB().WithContext(ctx).Where("tenant_id = ? AND loan_id = ?", tenantId, loanId).Limit(1).Find(&t)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return &t, nil
}
