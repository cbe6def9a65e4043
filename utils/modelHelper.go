package utils

import (
	"context"
	"errors"

	"github.com/mmdatafocus/fieldsync/config"
	"gorm.io/gorm"
)

// TenantFromContext returns the request's Fineract tenant or ErrorTenantRequired.
func TenantFromContext(ctx context.Context) (string, error) {
	tenantId, ok := GetTenantIdFromContext(ctx)
	if !ok || tenantId == "" {
		return "", ErrorTenantRequired
	}
	return tenantId, nil
}

// FetchModel loads one tenant-scoped row by its Fineract id.
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, tenantId string, id int, associations ...string) (*T, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantId, id)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}
