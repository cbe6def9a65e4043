package fineract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LocalDate decodes Fineract's [yyyy, m, d] date arrays as well as "yyyy-MM-dd" strings.
type LocalDate struct {
	time.Time
}

func (d *LocalDate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var parts []int
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		if len(parts) != 3 {
			return fmt.Errorf("fineract date: want 3 parts, got %d", len(parts))
		}
		d.Time = time.Date(parts[0], time.Month(parts[1]), parts[2], 0, 0, 0, 0, time.UTC)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d LocalDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal([]int{d.Year(), int(d.Month()), d.Day()})
}

// EnumOption is the {id, code, value} triple Fineract uses for enumerations.
type EnumOption struct {
	ID    int    `json:"id"`
	Code  string `json:"code"`
	Value string `json:"value"`
}

type Currency struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	DecimalPlaces int    `json:"decimalPlaces"`
}

type Group struct {
	ID            int        `json:"id"`
	AccountNo     string     `json:"accountNo"`
	Name          string     `json:"name"`
	ExternalID    string     `json:"externalId"`
	Status        EnumOption `json:"status"`
	Active        bool       `json:"active"`
	OfficeID      int        `json:"officeId"`
	OfficeName    string     `json:"officeName"`
	ClientMembers []Client   `json:"clientMembers"`
}

type Client struct {
	ID           int        `json:"id"`
	AccountNo    string     `json:"accountNo"`
	DisplayName  string     `json:"displayName"`
	Firstname    string     `json:"firstname"`
	Lastname     string     `json:"lastname"`
	OfficeID     int        `json:"officeId"`
	OfficeName   string     `json:"officeName"`
	MobileNo     string     `json:"mobileNo"`
	Status       EnumOption `json:"status"`
	Active       bool       `json:"active"`
	ImageID      int        `json:"imageId"`
	ImagePresent bool       `json:"imagePresent"`
}

type LoanStatus struct {
	ID                  int    `json:"id"`
	Code                string `json:"code"`
	Value               string `json:"value"`
	PendingApproval     bool   `json:"pendingApproval"`
	WaitingForDisbursal bool   `json:"waitingForDisbursal"`
	Active              bool   `json:"active"`
	Closed              bool   `json:"closed"`
}

type LoanAccountSummary struct {
	ID           int             `json:"id"`
	AccountNo    string          `json:"accountNo"`
	ProductID    int             `json:"productId"`
	ProductName  string          `json:"productName"`
	Status       LoanStatus      `json:"status"`
	LoanType     EnumOption      `json:"loanType"`
	OriginalLoan decimal.Decimal `json:"originalLoan"`
	LoanBalance  decimal.Decimal `json:"loanBalance"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
}

type SavingsStatus struct {
	ID                          int    `json:"id"`
	Code                        string `json:"code"`
	Value                       string `json:"value"`
	SubmittedAndPendingApproval bool   `json:"submittedAndPendingApproval"`
	Approved                    bool   `json:"approved"`
	Active                      bool   `json:"active"`
	Closed                      bool   `json:"closed"`
}

type SavingsAccountSummary struct {
	ID             int             `json:"id"`
	AccountNo      string          `json:"accountNo"`
	ProductID      int             `json:"productId"`
	ProductName    string          `json:"productName"`
	Status         SavingsStatus   `json:"status"`
	DepositType    EnumOption      `json:"depositType"`
	AccountBalance decimal.Decimal `json:"accountBalance"`
	Currency       Currency        `json:"currency"`
}

// Accounts is the body of /clients/{id}/accounts and /groups/{id}/accounts.
type Accounts struct {
	LoanAccounts    []LoanAccountSummary    `json:"loanAccounts"`
	SavingsAccounts []SavingsAccountSummary `json:"savingsAccounts"`
}

type LoanRepaymentTemplate struct {
	Type                  EnumOption      `json:"type"`
	Date                  LocalDate       `json:"date"`
	Currency              Currency        `json:"currency"`
	Amount                decimal.Decimal `json:"amount"`
	PrincipalPortion      decimal.Decimal `json:"principalPortion"`
	InterestPortion       decimal.Decimal `json:"interestPortion"`
	FeeChargesPortion     decimal.Decimal `json:"feeChargesPortion"`
	PenaltyChargesPortion decimal.Decimal `json:"penaltyChargesPortion"`
}

type SavingsTransactionTemplate struct {
	AccountID int             `json:"accountId"`
	AccountNo string          `json:"accountNo"`
	Date      LocalDate       `json:"date"`
	Currency  Currency        `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
}

type Document struct {
	ID               int    `json:"id"`
	ParentEntityType string `json:"parentEntityType"`
	ParentEntityID   int    `json:"parentEntityId"`
	Name             string `json:"name"`
	FileName         string `json:"fileName"`
	Size             int64  `json:"size"`
	Type             string `json:"type"`
	Description      string `json:"description"`
}

type Note struct {
	ID                int    `json:"id"`
	Note              string `json:"note"`
	CreatedByID       int    `json:"createdById"`
	CreatedByUsername string `json:"createdByUsername"`
	CreatedOn         int64  `json:"createdOn"`
	UpdatedByID       int    `json:"updatedById"`
	UpdatedByUsername string `json:"updatedByUsername"`
	UpdatedOn         int64  `json:"updatedOn"`
}

type Address struct {
	AddressTypeID   int    `json:"addressTypeId"`
	Street          string `json:"street"`
	AddressLine1    string `json:"addressLine1,omitempty"`
	City            string `json:"city"`
	StateProvinceID int    `json:"stateProvinceId,omitempty"`
	CountryID       int    `json:"countryId"`
	PostalCode      string `json:"postalCode,omitempty"`
	IsActive        bool   `json:"isActive"`
}

// ClientPayload is the create-client request body.
type ClientPayload struct {
	OfficeID        int       `json:"officeId"`
	GroupID         int       `json:"groupId,omitempty"`
	Firstname       string    `json:"firstname"`
	Middlename      string    `json:"middlename,omitempty"`
	Lastname        string    `json:"lastname"`
	MobileNo        string    `json:"mobileNo,omitempty"`
	ExternalID      string    `json:"externalId,omitempty"`
	Active          bool      `json:"active"`
	ActivationDate  string    `json:"activationDate,omitempty"`
	SubmittedOnDate string    `json:"submittedOnDate,omitempty"`
	DateFormat      string    `json:"dateFormat,omitempty"`
	Locale          string    `json:"locale,omitempty"`
	Address         []Address `json:"address,omitempty"`
}

// CommandResult is the standard write response.
type CommandResult struct {
	OfficeID   int `json:"officeId"`
	GroupID    int `json:"groupId"`
	ClientID   int `json:"clientId"`
	ResourceID int `json:"resourceId"`
}

type AuthResult struct {
	Username                       string `json:"username"`
	UserID                         int    `json:"userId"`
	Base64EncodedAuthenticationKey string `json:"base64EncodedAuthenticationKey"`
	Authenticated                  bool   `json:"authenticated"`
	OfficeID                       int    `json:"officeId"`
	OfficeName                     string `json:"officeName"`
}
