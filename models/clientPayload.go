package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm"
)

// ClientPayload is a client created while Fineract could not be reached,
// waiting for the next payload sync.
type ClientPayload struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	TenantId    string    `gorm:"index;size:64;not null" json:"tenant_id"`
	OfficeId    int       `json:"office_id"`
	GroupId     int       `json:"group_id"`
	Firstname   string    `gorm:"size:100" json:"firstname"`
	Lastname    string    `gorm:"size:100" json:"lastname"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Attempts    int       `json:"attempts"`
	LastError   string    `gorm:"type:text" json:"last_error"`
	CreatedBy   string    `gorm:"size:100" json:"created_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *ClientPayload) Decode() (fineract.ClientPayload, error) {
	var out fineract.ClientPayload
	if err := json.Unmarshal(p.PayloadJSON, &out); err != nil {
		return out, err
	}
	return out, nil
}

func CreateClientPayload(ctx context.Context, payload fineract.ClientPayload) (*ClientPayload, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	username, _ := utils.GetUsernameFromContext(ctx)
	p := ClientPayload{
		TenantId:    tenantId,
		OfficeId:    payload.OfficeID,
		GroupId:     payload.GroupID,
		Firstname:   payload.Firstname,
		Lastname:    payload.Lastname,
		PayloadJSON: b,
		CreatedBy:   username,
	}
	if err := config.GetDB().WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func ListClientPayloads(ctx context.Context) ([]*ClientPayload, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var payloads []*ClientPayload
	err = config.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantId).Order("id").Find(&payloads).Error
	return payloads, err
}

func GetClientPayload(ctx context.Context, id uint) (*ClientPayload, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var p ClientPayload
	err = config.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantId).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &p, nil
}

func RecordClientPayloadError(ctx context.Context, id uint, message string) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Model(&ClientPayload{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": message,
		}).Error
}

func DeleteClientPayload(ctx context.Context, id uint) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantId, id).Delete(&ClientPayload{}).Error
}
