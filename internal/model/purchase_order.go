package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PurchaseOrder status values
const (
	OrderStatusDraft     = "draft"
	OrderStatusOrdered   = "ordered"
	OrderStatusReceived  = "received"
	OrderStatusCancelled = "cancelled"
)

// PurchaseOrder is a supplier order raised by procurement. Dashboards merge it with
// approval requests into one list.
type PurchaseOrder struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"order_number"`
	Supplier    string          `gorm:"type:varchar(255);not null" json:"supplier"`
	ItemName    string          `gorm:"type:varchar(255);not null" json:"item_name"`
	Quantity    int             `gorm:"type:int;not null" json:"quantity"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"total_amount"`
	Status      string          `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	CreatedBy   string          `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (PurchaseOrder) TableName() string {
	return "purchase_orders"
}

func (o *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (o PurchaseOrder) RecordID() string   { return o.ID.String() }
func (o PurchaseOrder) Created() time.Time { return o.CreatedAt }
func (o PurchaseOrder) Version() time.Time { return o.UpdatedAt }
