package config

import (
	"context"
	"reflect"
	"strings"

	"github.com/mmdatafocus/fieldsync/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// TenantGuardPlugin keeps every cache row inside the Fineract tenant carried
// by the context. Reads, updates and deletes on a model with a tenant_id
// column get a tenant filter unless the statement already has one, and
// creates get tenant_id filled in when the row left it blank.
//
// Raw SQL is not covered.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenant_guard:create", stampTenant); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenant_guard:query", scopeToTenant); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenant_guard:row", scopeToTenant); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant_guard:update", scopeToTenant); err != nil {
		return err
	}
	return cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeToTenant)
}

func tenantField(db *gorm.DB) (*schema.Field, string) {
	if db == nil || db.Statement == nil || db.Statement.Schema == nil || db.Statement.Context == nil {
		return nil, ""
	}
	tenantId := tenantFromContext(db.Statement.Context)
	if tenantId == "" {
		return nil, ""
	}
	return db.Statement.Schema.LookUpField("tenant_id"), tenantId
}

func stampTenant(db *gorm.DB) {
	field, tenantId := tenantField(db)
	if field == nil {
		return
	}
	ctx := db.Statement.Context
	rv := db.Statement.ReflectValue
	stamp := func(row reflect.Value) {
		if _, zero := field.ValueOf(ctx, row); zero {
			if err := field.Set(ctx, row, tenantId); err != nil {
				_ = db.AddError(err)
			}
		}
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			stamp(reflect.Indirect(rv.Index(i)))
		}
	case reflect.Struct:
		stamp(rv)
	}
}

func scopeToTenant(db *gorm.DB) {
	field, tenantId := tenantField(db)
	if field == nil {
		return
	}
	if where, ok := db.Statement.Clauses["WHERE"].Expression.(clause.Where); ok && filtersTenant(where.Exprs) {
		return
	}
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: "tenant_id"}, Value: tenantId},
	}})
}

func tenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(appctx.ContextKeyTenantId).(string)
	return v
}

// filtersTenant reports whether any condition already names tenant_id. The
// models write their filters as "tenant_id = ? AND ...", which gorm keeps as
// a raw clause.Expr.
func filtersTenant(exprs []clause.Expression) bool {
	for _, e := range exprs {
		switch v := e.(type) {
		case clause.Eq:
			if isTenantColumn(v.Column) {
				return true
			}
		case clause.IN:
			if isTenantColumn(v.Column) {
				return true
			}
		case clause.AndConditions:
			if filtersTenant(v.Exprs) {
				return true
			}
		case clause.Expr:
			if strings.Contains(strings.ToLower(v.SQL), "tenant_id") {
				return true
			}
		}
	}
	return false
}

func isTenantColumn(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "tenant_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "tenant_id")
	}
	return false
}
