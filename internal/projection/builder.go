// Package projection turns the snapshots a dashboard holds into the single list it displays.
// It keeps no state: every call rebuilds the list from the records it is given.
package projection

import (
	"sort"
	"strings"
	"time"

	"opsboard/internal/model"

	"github.com/shopspring/decimal"
)

// Kind is the source entity an Item was mapped from.
type Kind string

const (
	KindOrder   Kind = "order"
	KindRequest Kind = "request"
)

// Item is the uniform display row.
type Item struct {
	ID               string          `json:"id"`
	Kind             Kind            `json:"kind"`
	SubKind          string          `json:"sub_kind,omitempty"`
	DisplayName      string          `json:"display_name"`
	DisplayAmount    decimal.Decimal `json:"display_amount"`
	DisplayQuantity  int             `json:"display_quantity"`
	DisplayReference string          `json:"display_reference"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
}

// FromRequest maps an approval request to a display row.
func FromRequest(r model.ApprovalRequest) Item {
	name := strings.TrimSpace(r.Title)
	if name == "" {
		name = requestLabel(r.Kind)
	}
	ref := ""
	if id := r.Reference(); id != nil {
		ref = id.String()
	}
	return Item{
		ID:               r.RecordID(),
		Kind:             KindRequest,
		SubKind:          string(r.Kind),
		DisplayName:      name,
		DisplayAmount:    r.UnitPrice.Mul(decimal.NewFromInt(int64(r.Quantity))),
		DisplayQuantity:  r.Quantity,
		DisplayReference: ref,
		Status:           string(model.DeriveStatus(r.ManagerApproved, r.ProjectManagerApproved, r.RejectedAt != nil)),
		CreatedAt:        r.CreatedAt,
	}
}

// FromOrder maps a purchase order to a display row.
func FromOrder(o model.PurchaseOrder) Item {
	name := o.ItemName
	if o.Supplier != "" {
		name = o.ItemName + " (" + o.Supplier + ")"
	}
	return Item{
		ID:               o.RecordID(),
		Kind:             KindOrder,
		DisplayName:      name,
		DisplayAmount:    o.TotalAmount,
		DisplayQuantity:  o.Quantity,
		DisplayReference: o.OrderNumber,
		Status:           o.Status,
		CreatedAt:        o.CreatedAt,
	}
}

func requestLabel(k model.Kind) string {
	switch k {
	case model.KindProcurement:
		return "Procurement request"
	case model.KindInventory:
		return "Inventory request"
	default:
		return "Request"
	}
}

// Filter selects the records that go into a projection. A nil func selects none of that kind.
type Filter struct {
	Orders   func(model.PurchaseOrder) bool
	Requests func(model.ApprovalRequest) bool
}

func anyOrder(model.PurchaseOrder) bool     { return true }
func anyRequest(model.ApprovalRequest) bool { return true }

// Everything keeps every record of both kinds.
func Everything() Filter {
	return Filter{Orders: anyOrder, Requests: anyRequest}
}

// Build merges orders and requests into one list, newest first with ties broken by id,
// so the same inputs always give the same list.
func Build(orders []model.PurchaseOrder, requests []model.ApprovalRequest, f Filter) []Item {
	items := make([]Item, 0, len(orders)+len(requests))
	if f.Orders != nil {
		for _, o := range orders {
			if f.Orders(o) {
				items = append(items, FromOrder(o))
			}
		}
	}
	if f.Requests != nil {
		for _, r := range requests {
			if f.Requests(r) {
				items = append(items, FromRequest(r))
			}
		}
	}
	Sort(items)
	return items
}

// Sort orders items newest first, then by id.
func Sort(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		if items[i].ID != items[j].ID {
			return items[i].ID < items[j].ID
		}
		return items[i].Kind < items[j].Kind
	})
}

// ForRole is what each role's dashboard shows. actor is the caller's id, used by roles that
// only see their own records.
func ForRole(role, actor string) Filter {
	switch role {
	case model.RoleAdmin:
		return Everything()
	case model.RoleManager:
		return Filter{Requests: anyRequest}
	case model.RoleProjectManager:
		return Filter{Requests: func(r model.ApprovalRequest) bool {
			return r.ManagerApproved || r.RejectedAt != nil
		}}
	case model.RoleProcurement:
		return Filter{
			Orders: anyOrder,
			Requests: func(r model.ApprovalRequest) bool {
				return r.Kind == model.KindProcurement
			},
		}
	case model.RoleEmployee:
		return Filter{Requests: func(r model.ApprovalRequest) bool {
			return actor != "" && r.RequestedBy == actor
		}}
	default:
		return Filter{}
	}
}
