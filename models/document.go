package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Document struct {
	TenantId    string    `gorm:"primaryKey;size:64" json:"tenant_id"`
	ID          int       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	EntityType  string    `gorm:"size:30;index:idx_document_entity,priority:1" json:"entity_type"`
	EntityId    int       `gorm:"index:idx_document_entity,priority:2" json:"entity_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	FileName    string    `gorm:"size:255" json:"file_name"`
	ContentType string    `gorm:"size:100" json:"content_type"`
	Size        int64     `json:"size"`
	ObjectKey   string    `gorm:"size:255" json:"object_key"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewDocumentFromRemote(tenantId string, d fineract.Document) *Document {
	return &Document{
		TenantId:    tenantId,
		ID:          d.ID,
		EntityType:  d.ParentEntityType,
		EntityId:    d.ParentEntityID,
		Name:        d.Name,
		Description: d.Description,
		FileName:    d.FileName,
		ContentType: d.Type,
		Size:        d.Size,
	}
}

// SaveDocument upserts the row. An existing object key survives a refresh
// from a listing, which never carries one.
func SaveDocument(ctx context.Context, d *Document) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	d.TenantId = tenantId
	db := config.GetDB().WithContext(ctx)
	if d.ObjectKey == "" {
		var existing Document
		if err := db.Where("tenant_id = ? AND id = ?", tenantId, d.ID).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		d.ObjectKey = existing.ObjectKey
	}
	return db.Clauses(clause.OnConflict{UpdateAll: true}).Create(d).Error
}

func ListDocuments(ctx context.Context, entityType string, entityId int) ([]*Document, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var docs []*Document
	err = config.GetDB().WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantId, entityType, entityId).
		Order("id").Find(&docs).Error
	return docs, err
}

func GetDocument(ctx context.Context, entityType string, entityId int, id int) (*Document, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := utils.FetchModel[Document](ctx, tenantId, id)
	if err != nil {
		return nil, err
	}
	if doc.EntityType != entityType || doc.EntityId != entityId {
		return nil, utils.ErrorRecordNotFound
	}
	return doc, nil
}

func DeleteDocument(ctx context.Context, id int) error {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantId, id).Delete(&Document{}).Error
}

// ReplaceDocuments makes the cached documents of an entity match the remote
// list. Object keys of surviving rows are kept. The removed rows are returned
// so their bytes can be dropped.
func ReplaceDocuments(ctx context.Context, entityType string, entityId int, docs []*Document) ([]*Document, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	var removed []*Document
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []*Document
		if err := tx.Where("tenant_id = ? AND entity_type = ? AND entity_id = ?", tenantId, entityType, entityId).
			Find(&existing).Error; err != nil {
			return err
		}
		keys := make(map[int]string, len(existing))
		for _, d := range existing {
			keys[d.ID] = d.ObjectKey
		}
		keep := make(map[int]bool, len(docs))
		for _, d := range docs {
			d.TenantId = tenantId
			d.EntityType = entityType
			d.EntityId = entityId
			if d.ObjectKey == "" {
				d.ObjectKey = keys[d.ID]
			}
			keep[d.ID] = true
		}
		var staleIds []int
		for _, d := range existing {
			if !keep[d.ID] {
				removed = append(removed, d)
				staleIds = append(staleIds, d.ID)
			}
		}
		if len(staleIds) > 0 {
			if err := tx.Where("tenant_id = ? AND id IN ?", tenantId, staleIds).Delete(&Document{}).Error; err != nil {
				return err
			}
		}
		if len(docs) > 0 {
			return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&docs).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
