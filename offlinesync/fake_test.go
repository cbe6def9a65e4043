package offlinesync

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
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
	require.NoError(t, models.AutoMigrate())
	return utils.SetTenantIdInContext(context.Background(), "acme")
}

type templateCall struct {
	id          int
	depositType int
}

// fakeRemote serves canned Fineract data and records what the sync asked for.
type fakeRemote struct {
	groups          map[int]fineract.Group
	members         map[int][]fineract.Client
	clients         map[int]fineract.Client
	accounts        map[int]fineract.Accounts
	groupAccounts   map[int]fineract.Accounts
	images          map[int][]byte
	failAccounts    map[int]error
	failClient      map[int]error
	failLoanTpl     map[int]error
	failCreate      map[string]error
	beforeGetClient func(id int) error

	accountCalls    map[int]int
	loanTplCalls    []int
	savingsTplCalls []templateCall
	created         []fineract.ClientPayload
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		groups:        map[int]fineract.Group{},
		members:       map[int][]fineract.Client{},
		clients:       map[int]fineract.Client{},
		accounts:      map[int]fineract.Accounts{},
		groupAccounts: map[int]fineract.Accounts{},
		images:        map[int][]byte{},
		failAccounts:  map[int]error{},
		failClient:    map[int]error{},
		failLoanTpl:   map[int]error{},
		failCreate:    map[string]error{},
		accountCalls:  map[int]int{},
	}
}

func (f *fakeRemote) addClient(id int, name string) fineract.Client {
	c := fineract.Client{ID: id, DisplayName: name, Active: true}
	f.clients[id] = c
	return c
}

func notFound() error {
	return &fineract.APIError{StatusCode: http.StatusNotFound, DefaultUserMessage: "not found"}
}

func (f *fakeRemote) GetGroup(_ context.Context, id int) (fineract.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return fineract.Group{}, notFound()
	}
	return g, nil
}

func (f *fakeRemote) GetGroupClients(_ context.Context, id int) ([]fineract.Client, error) {
	return f.members[id], nil
}

func (f *fakeRemote) GetGroupAccounts(_ context.Context, id int) (fineract.Accounts, error) {
	return f.groupAccounts[id], nil
}

func (f *fakeRemote) GetClient(_ context.Context, id int) (fineract.Client, error) {
	if f.beforeGetClient != nil {
		if err := f.beforeGetClient(id); err != nil {
			return fineract.Client{}, err
		}
	}
	if err := f.failClient[id]; err != nil {
		return fineract.Client{}, err
	}
	c, ok := f.clients[id]
	if !ok {
		return fineract.Client{}, notFound()
	}
	return c, nil
}

func (f *fakeRemote) GetClientAccounts(_ context.Context, id int) (fineract.Accounts, error) {
	f.accountCalls[id]++
	if err := f.failAccounts[id]; err != nil {
		return fineract.Accounts{}, err
	}
	return f.accounts[id], nil
}

func (f *fakeRemote) GetClientImage(_ context.Context, id int) ([]byte, error) {
	data, ok := f.images[id]
	if !ok {
		return nil, notFound()
	}
	return data, nil
}

func (f *fakeRemote) GetLoanRepaymentTemplate(_ context.Context, id int) (fineract.LoanRepaymentTemplate, error) {
	f.loanTplCalls = append(f.loanTplCalls, id)
	if err := f.failLoanTpl[id]; err != nil {
		return fineract.LoanRepaymentTemplate{}, err
	}
	return fineract.LoanRepaymentTemplate{Currency: fineract.Currency{Code: "USD"}}, nil
}

func (f *fakeRemote) GetSavingsTransactionTemplate(_ context.Context, id int, depositType int) (fineract.SavingsTransactionTemplate, error) {
	f.savingsTplCalls = append(f.savingsTplCalls, templateCall{id: id, depositType: depositType})
	return fineract.SavingsTransactionTemplate{AccountID: id, Currency: fineract.Currency{Code: "USD"}}, nil
}

func (f *fakeRemote) CreateClient(_ context.Context, payload fineract.ClientPayload) (fineract.CommandResult, error) {
	if err := f.failCreate[payload.Firstname]; err != nil {
		return fineract.CommandResult{}, err
	}
	f.created = append(f.created, payload)
	return fineract.CommandResult{ClientID: 1000 + len(f.created), ResourceID: 1000 + len(f.created)}, nil
}

func activeLoan(id int) fineract.LoanAccountSummary {
	return fineract.LoanAccountSummary{ID: id, Status: fineract.LoanStatus{Active: true}}
}

func savingsSummary(id int, depositType int, active bool) fineract.SavingsAccountSummary {
	return fineract.SavingsAccountSummary{
		ID:          id,
		Status:      fineract.SavingsStatus{Active: active, Closed: !active},
		DepositType: fineract.EnumOption{ID: depositType},
	}
}
