package repository

import (
	"context"

	"opsboard/internal/model"
	"opsboard/pkg/pagination"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, entityID string, page pagination.Params) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

// List returns audit entries newest first; entityID narrows them to one record when set.
func (r *auditRepository) List(ctx context.Context, entityID string, page pagination.Params) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	forEntity := func(db *gorm.DB) *gorm.DB {
		if entityID != "" {
			return db.Where("entity_id = ?", entityID)
		}
		return db
	}

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.AuditLog{}).Scopes(forEntity).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := db.Scopes(forEntity, page.Scope).Order("created_at desc").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
