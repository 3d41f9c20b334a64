package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionSubmitRequest         = "SUBMIT_REQUEST"
	ActionManagerApprove        = "MANAGER_APPROVE"
	ActionProjectManagerApprove = "PROJECT_MANAGER_APPROVE"
	ActionRejectRequest         = "REJECT_REQUEST"
	ActionCreatePurchaseOrder   = "CREATE_PURCHASE_ORDER"
	ActionUpdatePurchaseOrder   = "UPDATE_PURCHASE_ORDER"
)

// AuditLog tracks Who, What, and When for every accepted change
type AuditLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Actor     string    `gorm:"type:varchar(64);index" json:"actor"`
	Action    string    `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID  string    `gorm:"type:varchar(50);index" json:"entity_id"`
	Entity    string    `gorm:"type:varchar(50)" json:"entity"`
	Details   string    `gorm:"type:text" json:"details"` // Serialized JSON payload of the action
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
