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

type SavingsAccount struct {
	TenantId       string          `gorm:"primaryKey;size:64" json:"tenant_id"`
	ID             int             `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountNo      string          `gorm:"size:50" json:"account_no"`
	ProductId      int             `json:"product_id"`
	ProductName    string          `gorm:"size:255" json:"product_name"`
	ClientId       int             `gorm:"index" json:"client_id"`
	GroupId        int             `gorm:"index" json:"group_id"`
	Status         AccountStatus   `gorm:"size:30;index" json:"status"`
	DepositType    DepositType     `gorm:"size:20" json:"deposit_type"`
	CurrencyCode   string          `gorm:"size:10" json:"currency_code"`
	AccountBalance decimal.Decimal `gorm:"type:decimal(20,4)" json:"account_balance"`
	SyncedAt       time.Time       `json:"synced_at"`
}

type SavingsTransactionTemplate struct {
	TenantId        string          `gorm:"primaryKey;size:64" json:"tenant_id"`
	SavingsId       int             `gorm:"primaryKey;autoIncrement:false" json:"savings_id"`
	DepositType     DepositType     `gorm:"size:20" json:"deposit_type"`
	TransactionDate *time.Time      `json:"transaction_date"`
	CurrencyCode    string          `gorm:"size:10" json:"currency_code"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	SyncedAt        time.Time       `json:"synced_at"`
}

func NewSavingsAccountFromRemote(tenantId string, owner AccountOwner, s fineract.SavingsAccountSummary) *SavingsAccount {
	return &SavingsAccount{
		TenantId:       tenantId,
		ID:             s.ID,
		AccountNo:      s.AccountNo,
		ProductId:      s.ProductID,
		ProductName:    s.ProductName,
		ClientId:       owner.ClientId,
		GroupId:        owner.GroupId,
		Status:         SavingsStatusOf(s.Status),
		DepositType:    DepositTypeOf(s),
		CurrencyCode:   s.Currency.Code,
		AccountBalance: s.AccountBalance,
	}
}

func NewSavingsTransactionTemplateFromRemote(tenantId string, savingsId int, depositType DepositType, t fineract.SavingsTransactionTemplate) *SavingsTransactionTemplate {
	return &SavingsTransactionTemplate{
		TenantId:        tenantId,
		SavingsId:       savingsId,
		DepositType:     depositType,
		TransactionDate: datePtr(t.Date),
		CurrencyCode:    t.Currency.Code,
		Amount:          t.Amount,
	}
}

func UpsertSavingsAccount(ctx context.Context, s *SavingsAccount) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	s.TenantId = tenantId
	s.SyncedAt = time.Now()
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(s).Error
}

func UpsertSavingsTransactionTemplate(ctx context.Context, t *SavingsTransactionTemplate) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	t.TenantId = tenantId
	t.SyncedAt = time.Now()
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(t).Error
}

func ListSavingsAccounts(ctx context.Context, owner AccountOwner) ([]*SavingsAccount, error) {
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
	var accounts []*SavingsAccount
	err = db.Order("id").Find(&accounts).Error
	return accounts, err
}

func GetSavingsTransactionTemplate(ctx context.Context, savingsId int) (*SavingsTransactionTemplate, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var t SavingsTransactionTemplate
	res := config.GetDB().WithContext(ctx).Where("tenant_id = ? AND savings_id = ?", tenantId, savingsId).Limit(1).Find(&t)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return &t, nil
}
