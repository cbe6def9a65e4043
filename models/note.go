package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm/clause"
)

type Note struct {
	TenantId   string     `gorm:"primaryKey;size:64" json:"tenant_id"`
	ID         int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EntityType string     `gorm:"size:30;index:idx_note_entity,priority:1" json:"entity_type"`
	EntityId   int        `gorm:"index:idx_note_entity,priority:2" json:"entity_id"`
	Text       string     `gorm:"type:text;not null" json:"note"`
	CreatedBy  string     `gorm:"size:100" json:"created_by"`
	CreatedOn  *time.Time `json:"created_on"`
	UpdatedBy  string     `gorm:"size:100" json:"updated_by"`
	UpdatedOn  *time.Time `json:"updated_on"`
}

type NewNote struct {
	Note string `json:"note" validate:"required,notblank,max=1000"`
}

func NewNoteFromRemote(tenantId string, entityType string, entityId int, n fineract.Note) *Note {
	return &Note{
		TenantId:   tenantId,
		ID:         n.ID,
		EntityType: entityType,
		EntityId:   entityId,
		Text:       n.Note,
		CreatedBy:  n.CreatedByUsername,
		CreatedOn:  epochMillis(n.CreatedOn),
		UpdatedBy:  n.UpdatedByUsername,
		UpdatedOn:  epochMillis(n.UpdatedOn),
	}
}

func epochMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func SaveNote(ctx context.Context, n *Note) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	n.TenantId = tenantId
	return config.GetDB().WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(n).Error
}

// ReplaceNotes makes the cached notes of an entity match the remote list.
func ReplaceNotes(ctx context.Context, entityType string, entityId int, notes []*Note) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	db := config.GetDB().WithContext(ctx)
	tx := db.Begin()
	if err := tx.Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantId, entityType, entityId).Delete(&Note{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	if len(notes) > 0 {
		for _, n := range notes {
			n.TenantId = tenantId
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&notes).Error; err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit().Error
}

func ListNotes(ctx context.Context, entityType string, entityId int) ([]*Note, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var notes []*Note
	err = config.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantId, entityType, entityId).
		Order("id").Find(&notes).Error
	return notes, err
}

func GetNote(ctx context.Context, entityType string, entityId int, id int) (*Note, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	note, err := utils.FetchModel[Note](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}
	if note.EntityType != entityType || note.EntityId != entityId {
		return nil, utils.ErrorRecordNotFound
	}
	return note, nil
}

func DeleteNote(ctx context.Context, id int) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantId, id).Delete(&Note{}).Error
}
