package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Kind tells which optional reference and display fields of a request apply.
type Kind string

const (
	KindInventory   Kind = "inventory"
	KindProcurement Kind = "procurement"
)

func (k Kind) Valid() bool {
	return k == KindInventory || k == KindProcurement
}

// Status of an approval request. It is always derived from the approval flags
// and the rejection stamp, see DeriveStatus.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition may happen.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Approval stages, used to record where a rejection happened.
const (
	StageManager        = "manager"
	StageProjectManager = "project_manager"
)

// ApprovalRequest is a two-stage approval record: a manager approves first, then a project manager.
// The JSON names match the column names so change-feed payloads built with row_to_json decode directly.
type ApprovalRequest struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind              Kind       `gorm:"type:varchar(20);not null;index" json:"kind"`
	Title             string     `gorm:"type:varchar(255)" json:"title"`
	InventoryItemID   *uuid.UUID `gorm:"type:uuid;index" json:"inventory_item_id"`
	ProcurementLineID *uuid.UUID `gorm:"type:uuid;index" json:"procurement_line_id"`
	RequestedBy       string     `gorm:"type:varchar(64);not null;index" json:"requested_by"`

	Quantity      int             `gorm:"type:int;not null" json:"quantity"`
	UnitPrice     decimal.Decimal `gorm:"type:numeric(18,4);not null" json:"unit_price"`
	ComputedTotal decimal.Decimal `gorm:"-" json:"computed_total"`

	ManagerApproved   bool       `gorm:"not null;default:false" json:"manager_approved"`
	ManagerApprovedBy *string    `gorm:"type:varchar(64)" json:"manager_approved_by"`
	ManagerApprovedAt *time.Time `json:"manager_approved_at"`

	ProjectManagerApproved   bool       `gorm:"not null;default:false" json:"project_manager_approved"`
	ProjectManagerApprovedBy *string    `gorm:"type:varchar(64)" json:"project_manager_approved_by"`
	ProjectManagerApprovedAt *time.Time `json:"project_manager_approved_at"`

	RejectedBy      *string    `gorm:"type:varchar(64)" json:"rejected_by"`
	RejectedAt      *time.Time `json:"rejected_at"`
	RejectedStage   string     `gorm:"type:varchar(20)" json:"rejected_stage"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"`

	Status    Status    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ApprovalRequest) TableName() string {
	return "approval_requests"
}

func (r *ApprovalRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Normalize()
	return nil
}

func (r *ApprovalRequest) AfterFind(tx *gorm.DB) error {
	r.Normalize()
	return nil
}

// Normalize recomputes the derived fields from the stored inputs.
func (r *ApprovalRequest) Normalize() {
	r.ComputedTotal = r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))
	r.Status = DeriveStatus(r.ManagerApproved, r.ProjectManagerApproved, r.RejectedAt != nil)
}

// DeriveStatus is the only place a status value is computed.
func DeriveStatus(managerApproved, projectManagerApproved, rejected bool) Status {
	switch {
	case rejected:
		return StatusRejected
	case managerApproved && projectManagerApproved:
		return StatusApproved
	default:
		return StatusPending
	}
}

// Reference returns the weak reference matching the request kind, if any.
func (r ApprovalRequest) Reference() *uuid.UUID {
	if r.Kind == KindProcurement {
		return r.ProcurementLineID
	}
	return r.InventoryItemID
}

var ErrInvariant = errors.New("approval invariant violated")

// Validate checks the record-level invariants that must hold for every stored version.
func (r ApprovalRequest) Validate() error {
	if r.ProjectManagerApproved && !r.ManagerApproved {
		return fmt.Errorf("%w: project manager approval without manager approval", ErrInvariant)
	}
	if r.ManagerApproved != (r.ManagerApprovedBy != nil && r.ManagerApprovedAt != nil) {
		return fmt.Errorf("%w: manager approval stamp incomplete", ErrInvariant)
	}
	if r.ProjectManagerApproved != (r.ProjectManagerApprovedBy != nil && r.ProjectManagerApprovedAt != nil) {
		return fmt.Errorf("%w: project manager approval stamp incomplete", ErrInvariant)
	}
	if want := DeriveStatus(r.ManagerApproved, r.ProjectManagerApproved, r.RejectedAt != nil); r.Status != want {
		return fmt.Errorf("%w: status %s, flags imply %s", ErrInvariant, r.Status, want)
	}
	if !r.ComputedTotal.Equal(r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity)))) {
		return fmt.Errorf("%w: computed total out of date", ErrInvariant)
	}
	if r.UpdatedAt.Before(r.CreatedAt) {
		return fmt.Errorf("%w: updated_at before created_at", ErrInvariant)
	}
	return nil
}

func (r ApprovalRequest) RecordID() string   { return r.ID.String() }
func (r ApprovalRequest) Created() time.Time { return r.CreatedAt }
func (r ApprovalRequest) Version() time.Time { return r.UpdatedAt }
