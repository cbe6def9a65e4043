package fineract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Fineract deposit account type ids.
const (
	DepositTypeSavings   = 100
	DepositTypeFixed     = 200
	DepositTypeRecurring = 300
)

// DepositTypeOf resolves the deposit type of a savings account summary. Older
// servers only send the code.
func DepositTypeOf(s SavingsAccountSummary) int {
	if s.DepositType.ID != 0 {
		return s.DepositType.ID
	}
	switch s.DepositType.Code {
	case "depositAccountType.fixedDeposit":
		return DepositTypeFixed
	case "depositAccountType.recurringDeposit":
		return DepositTypeRecurring
	default:
		return DepositTypeSavings
	}
}

func (c *APIClient) GetGroup(ctx context.Context, groupID int) (Group, error) {
	var g Group
	err := c.getJSON(ctx, fmt.Sprintf("/groups/%d", groupID), nil, &g)
	return g, err
}

// GetGroupClients returns the members of a group.
func (c *APIClient) GetGroupClients(ctx context.Context, groupID int) ([]Client, error) {
	var g Group
	params := url.Values{"associations": []string{"clientMembers"}}
	if err := c.getJSON(ctx, fmt.Sprintf("/groups/%d", groupID), params, &g); err != nil {
		return nil, err
	}
	return g.ClientMembers, nil
}

func (c *APIClient) GetGroupAccounts(ctx context.Context, groupID int) (Accounts, error) {
	var a Accounts
	err := c.getJSON(ctx, fmt.Sprintf("/groups/%d/accounts", groupID), nil, &a)
	return a, err
}

func (c *APIClient) GetClient(ctx context.Context, clientID int) (Client, error) {
	var cl Client
	err := c.getJSON(ctx, fmt.Sprintf("/clients/%d", clientID), nil, &cl)
	return cl, err
}

func (c *APIClient) GetClientAccounts(ctx context.Context, clientID int) (Accounts, error) {
	var a Accounts
	err := c.getJSON(ctx, fmt.Sprintf("/clients/%d/accounts", clientID), nil, &a)
	return a, err
}

func (c *APIClient) CreateClient(ctx context.Context, payload ClientPayload) (CommandResult, error) {
	var res CommandResult
	err := c.sendJSON(ctx, http.MethodPost, "/clients", payload, &res)
	return res, err
}

// GetClientImage returns the decoded bytes of the client's profile image.
func (c *APIClient) GetClientImage(ctx context.Context, clientID int) ([]byte, error) {
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/clients/%d/images", clientID),
		accept: "text/plain",
	})
	if err != nil {
		return nil, err
	}
	return decodeDataURL(string(body))
}

func decodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ","); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return nil, errors.New("empty image body")
	}
	return base64.StdEncoding.DecodeString(s)
}

func (c *APIClient) GetLoanRepaymentTemplate(ctx context.Context, loanID int) (LoanRepaymentTemplate, error) {
	var t LoanRepaymentTemplate
	params := url.Values{"command": []string{"repayment"}}
	err := c.getJSON(ctx, fmt.Sprintf("/loans/%d/transactions/template", loanID), params, &t)
	return t, err
}

// GetSavingsTransactionTemplate picks the endpoint from the deposit type:
// recurring deposits have their own resource, everything else goes through
// savingsaccounts.
func (c *APIClient) GetSavingsTransactionTemplate(ctx context.Context, savingsID int, depositType int) (SavingsTransactionTemplate, error) {
	var t SavingsTransactionTemplate
	var path string
	var params url.Values
	switch depositType {
	case DepositTypeRecurring:
		path = fmt.Sprintf("/recurringdepositaccounts/%d/transactions/template", savingsID)
		params = url.Values{"command": []string{"deposit"}}
	case DepositTypeFixed:
		return t, fmt.Errorf("fixed deposit %d has no transaction template", savingsID)
	default:
		path = fmt.Sprintf("/savingsaccounts/%d/transactions/template", savingsID)
	}
	err := c.getJSON(ctx, path, params, &t)
	return t, err
}
