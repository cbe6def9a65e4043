package models

import (
	"log"

	"github.com/mmdatafocus/fieldsync/config"
)

func MigrateTable() {
	if err := AutoMigrate(); err != nil {
		log.Fatal(err)
	}
}

func AutoMigrate() error {
	db := config.GetDB()

	return db.AutoMigrate(
		&Group{}, &Client{},
		&LoanAccount{}, &LoanRepaymentTemplate{},
		&SavingsAccount{}, &SavingsTransactionTemplate{},
		&Document{}, &Note{},
		&ClientPayload{},
		&SyncRun{}, &SyncFailure{},
		&Passcode{},
	)
}
