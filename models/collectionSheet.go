package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	CollectionKindLoan    = "loan"
	CollectionKindSavings = "savings"
)

// CollectionSheetRow is one due amount a field officer collects at a group meeting.
type CollectionSheetRow struct {
	ClientId     int             `json:"client_id"`
	ClientName   string          `json:"client_name"`
	Kind         string          `json:"kind"`
	AccountId    int             `json:"account_id"`
	AccountNo    string          `json:"account_no"`
	ProductName  string          `json:"product_name"`
	DueDate      *time.Time      `json:"due_date"`
	DueAmount    decimal.Decimal `json:"due_amount"`
	Balance      decimal.Decimal `json:"balance"`
	CurrencyCode string          `json:"currency_code"`
}

type CollectionSheet struct {
	Group *Group                `json:"group"`
	Rows  []*CollectionSheetRow `json:"rows"`
	Total decimal.Decimal       `json:"total"`
}

type sheetOwner struct {
	owner AccountOwner
	id    int
	name  string
}

// GetCollectionSheet builds the sheet from the cache: every active account of
// the group and of its member clients, with the synced template amounts.
func GetCollectionSheet(ctx context.Context, groupId int) (*CollectionSheet, error) {
	group, err := GetGroup(ctx, groupId)
	if err != nil {
		return nil, err
	}
	clients, err := ListClientsByGroup(ctx, groupId)
	if err != nil {
		return nil, err
	}

	sheet := &CollectionSheet{Group: group, Total: decimal.Zero}
	owners := []sheetOwner{{owner: AccountOwner{GroupId: groupId}, name: group.Name}}
	for _, c := range clients {
		owners = append(owners, sheetOwner{owner: AccountOwner{ClientId: c.ID}, id: c.ID, name: c.DisplayName})
	}

	for _, o := range owners {
		loans, err := ListLoanAccounts(ctx, o.owner)
		if err != nil {
			return nil, err
		}
		for _, l := range loans {
			if l.Status != AccountStatusActive {
				continue
			}
			row := &CollectionSheetRow{
				ClientId:    o.id,
				ClientName:  o.name,
				Kind:        CollectionKindLoan,
				AccountId:   l.ID,
				AccountNo:   l.AccountNo,
				ProductName: l.ProductName,
				DueAmount:   decimal.Zero,
				Balance:     l.TotalOutstanding,
			}
			if t, err := GetLoanRepaymentTemplate(ctx, l.ID); err == nil {
				row.DueDate = t.TransactionDate
				row.DueAmount = t.Amount
				row.CurrencyCode = t.CurrencyCode
			}
			sheet.Rows = append(sheet.Rows, row)
			sheet.Total = sheet.Total.Add(row.DueAmount)
		}

		savings, err := ListSavingsAccounts(ctx, o.owner)
		if err != nil {
			return nil, err
		}
		for _, s := range savings {
			if s.Status != AccountStatusActive || s.DepositType == DepositTypeFixed {
				continue
			}
			row := &CollectionSheetRow{
				ClientId:     o.id,
				ClientName:   o.name,
				Kind:         CollectionKindSavings,
				AccountId:    s.ID,
				AccountNo:    s.AccountNo,
				ProductName:  s.ProductName,
				DueAmount:    decimal.Zero,
				Balance:      s.AccountBalance,
				CurrencyCode: s.CurrencyCode,
			}
			if t, err := GetSavingsTransactionTemplate(ctx, s.ID); err == nil {
				row.DueDate = t.TransactionDate
				row.DueAmount = t.Amount
			}
			sheet.Rows = append(sheet.Rows, row)
			sheet.Total = sheet.Total.Add(row.DueAmount)
		}
	}
	return sheet, nil
}
