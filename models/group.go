package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm/clause"
)

type Group struct {
	TenantId   string     `gorm:"primaryKey;size:64" json:"tenant_id"`
	ID         int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountNo  string     `gorm:"size:50" json:"account_no"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	ExternalId string     `gorm:"size:100" json:"external_id"`
	OfficeId   int        `gorm:"index" json:"office_id"`
	OfficeName string     `gorm:"size:255" json:"office_name"`
	Status     string     `gorm:"size:50" json:"status"`
	Active     bool       `json:"active"`
	Synced     bool       `gorm:"index" json:"synced"`
	SyncedAt   *time.Time `json:"synced_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewGroupFromRemote(tenantId string, g fineract.Group) *Group {
	return &Group{
		TenantId:   tenantId,
		ID:         g.ID,
		AccountNo:  g.AccountNo,
		Name:       g.Name,
		ExternalId: g.ExternalID,
		OfficeId:   g.OfficeID,
		OfficeName: g.OfficeName,
		Status:     g.Status.Value,
		Active:     g.Active,
	}
}

// UpsertGroup writes the group and clears its synced mark until its accounts are in.
func UpsertGroup(ctx context.Context, g *Group) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	g.TenantId = tenantId
	g.Synced = false
	g.SyncedAt = nil
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(g).Error
}

func MarkGroupSynced(ctx context.Context, id int) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	res := config.GetDB().WithContext(ctx).Model(&Group{}).
		Where("tenant_id = ? AND id = ?", tenantId, id).
		Updates(map[string]interface{}{"synced": true, "synced_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrorRecordNotFound
	}
	return nil
}

func GetGroup(ctx context.Context, id int) (*Group, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return utils.FetchModel[Group](ctx, tenantId, id)
}

func ListGroups(ctx context.Context) ([]*Group, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var groups []*Group
	err = config.GetDB().WithContext(ctx).Where("tenant_id = ?", tenantId).Order("name").Find(&groups).Error
	return groups, err
}
