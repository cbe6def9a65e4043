package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm/clause"
)

type Client struct {
	TenantId    string     `gorm:"primaryKey;size:64" json:"tenant_id"`
	ID          int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountNo   string     `gorm:"size:50" json:"account_no"`
	DisplayName string     `gorm:"size:255" json:"display_name"`
	Firstname   string     `gorm:"size:100" json:"firstname"`
	Lastname    string     `gorm:"size:100" json:"lastname"`
	OfficeId    int        `gorm:"index" json:"office_id"`
	OfficeName  string     `gorm:"size:255" json:"office_name"`
	GroupId     int        `gorm:"index" json:"group_id"`
	MobileNo    string     `gorm:"size:50" json:"mobile_no"`
	Status      string     `gorm:"size:50" json:"status"`
	Active      bool       `json:"active"`
	ImageKey    string     `gorm:"size:255" json:"image_key"`
	Synced      bool       `gorm:"index" json:"synced"`
	SyncedAt    *time.Time `json:"synced_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewClientFromRemote maps a Fineract client; groupId is 0 for clients synced on their own.
func NewClientFromRemote(tenantId string, c fineract.Client, groupId int) *Client {
	name := c.DisplayName
	if name == "" {
		name = c.Firstname + " " + c.Lastname
	}
	return &Client{
		TenantId:    tenantId,
		ID:          c.ID,
		AccountNo:   c.AccountNo,
		DisplayName: name,
		Firstname:   c.Firstname,
		Lastname:    c.Lastname,
		OfficeId:    c.OfficeID,
		OfficeName:  c.OfficeName,
		GroupId:     groupId,
		MobileNo:    c.MobileNo,
		Status:      c.Status.Value,
		Active:      c.Active,
	}
}

// UpsertClient writes the client unsynced. A client already cached under a
// group keeps that group when re-synced on its own.
func UpsertClient(ctx context.Context, c *Client) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	c.TenantId = tenantId
	c.Synced = false
	c.SyncedAt = nil

	db := config.GetDB().WithContext(ctx)
	if c.GroupId == 0 || c.ImageKey == "" {
		var existing Client
		err := db.Where("tenant_id = ? AND id = ?", tenantId, c.ID).Limit(1).Find(&existing).Error
		if err != nil {
			return err
		}
		if c.GroupId == 0 {
			c.GroupId = existing.GroupId
		}
		if c.ImageKey == "" {
			c.ImageKey = existing.ImageKey
		}
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(c).Error
}

func SetClientImageKey(ctx context.Context, id int, key string) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Model(&Client{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Update("image_key", key).Error
}

func MarkClientSynced(ctx context.Context, id int) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	res := config.GetDB().WithContext(ctx).Model(&Client{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Updates(map[string]interface{}{"synced": true, "synced_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetClient(ctx context.Context, id int) (*Client, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Client](ctx, tenantId, id)
}

func ListClientsByGroup(ctx context.Context, groupId int) ([]*Client, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var clients []*Client
	err = config.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND group_id = ?", tenantId, groupId).
		Order("display_name").Order("id").
		Find(&clients).Error
	return clients, err
}
