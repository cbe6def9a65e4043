package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm/clause"
)

// Passcode unlocks the cached data on a device without a round trip to Fineract.
type Passcode struct {
	TenantId  string    `gorm:"primaryKey;size:64" json:"-"`
	Username  string    `gorm:"primaryKey;size:100" json:"username"`
	Hash      string    `gorm:"size:100;not null" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewPasscode struct {
	Passcode string `json:"passcode" validate:"required,numeric,min=4,max=8"`
}

func SetPasscode(ctx context.Context, username string, plain string) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	hash, err := utils.HashSecret(plain)
	if err != nil {
		return err
	}
	p := Passcode{TenantId: tenantId, Username: username, Hash: hash}
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&p).Error
}

func VerifyPasscode(ctx context.Context, username string, plain string) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	var p Passcode
	res := config.GetDB().WithContext(ctx).Where("tenant_id = ? AND username = ?", tenantId, username).Limit(1).Find(&p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	if !utils.SecretMatches(p.Hash, plain) {
		return utils.ErrorInvalidPasscode
	}
	return nil
}
