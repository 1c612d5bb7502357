// Package tenancy holds the business workflows of the property manager:
// tenant onboarding, room transfer, exit clearance, and refund issuance.
// Each workflow is a saga definition built from steps that read and write
// the Store collaborator.
//
// Step ordering inside these definitions is deliberate. Irreversible
// optional steps come after the required steps whose failure would strand
// them, except where a documented inconsistency window is accepted (see
// Transfer).
package tenancy

import (
	"context"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/id"
)

// TenantState is the lifecycle state of a tenant record.
type TenantState string

const (
	TenantActive   TenantState = "active"
	TenantInactive TenantState = "inactive"
)

// Tenant is a person occupying (or having occupied) a room.
type Tenant struct {
	saga.Entity

	ID      id.ID       `json:"id"`
	ScopeID string      `json:"scope_id"`
	Name    string      `json:"name"`
	Phone   string      `json:"phone,omitempty"`
	Email   string      `json:"email,omitempty"`
	RoomID  id.ID       `json:"room_id"`
	State   TenantState `json:"state"`
}

// Room is a rentable unit with a fixed bed capacity.
type Room struct {
	saga.Entity

	ID       id.ID  `json:"id"`
	ScopeID  string `json:"scope_id"`
	Number   string `json:"number"`
	Capacity int    `json:"capacity"`
	Occupied int    `json:"occupied"`
	Rent     int64  `json:"rent"`
}

// Full reports whether the room has no free capacity.
func (r *Room) Full() bool { return r.Occupied >= r.Capacity }

// Bed is an individually assignable slot inside a room.
type Bed struct {
	saga.Entity

	ID       id.ID  `json:"id"`
	ScopeID  string `json:"scope_id"`
	RoomID   id.ID  `json:"room_id"`
	Label    string `json:"label"`
	TenantID id.ID  `json:"tenant_id,omitempty"`
}

// Stay is the period a tenant occupies a room.
type Stay struct {
	saga.Entity

	ID       id.ID      `json:"id"`
	ScopeID  string     `json:"scope_id"`
	TenantID id.ID      `json:"tenant_id"`
	RoomID   id.ID      `json:"room_id"`
	MovedIn  time.Time  `json:"moved_in"`
	MovedOut *time.Time `json:"moved_out,omitempty"`
}

// Transfer records a tenant moving between rooms.
type Transfer struct {
	saga.Entity

	ID         id.ID     `json:"id"`
	ScopeID    string    `json:"scope_id"`
	TenantID   id.ID     `json:"tenant_id"`
	FromRoomID id.ID     `json:"from_room_id"`
	ToRoomID   id.ID     `json:"to_room_id"`
	MovedAt    time.Time `json:"moved_at"`
	Reason     string    `json:"reason,omitempty"`
}

// BillState is the payment state of a bill.
type BillState string

const (
	BillUnpaid BillState = "unpaid"
	BillPaid   BillState = "paid"
)

// Bill is a charge raised against a tenant.
type Bill struct {
	saga.Entity

	ID       id.ID     `json:"id"`
	ScopeID  string    `json:"scope_id"`
	TenantID id.ID     `json:"tenant_id"`
	Amount   int64     `json:"amount"`
	State    BillState `json:"state"`
	DueAt    time.Time `json:"due_at"`
}

// Refund is money returned against a paid bill.
type Refund struct {
	saga.Entity

	ID       id.ID  `json:"id"`
	ScopeID  string `json:"scope_id"`
	BillID   id.ID  `json:"bill_id"`
	TenantID id.ID  `json:"tenant_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason,omitempty"`
}

// Document is an identity or agreement file attached to a tenant.
type Document struct {
	saga.Entity

	ID       id.ID  `json:"id"`
	ScopeID  string `json:"scope_id"`
	TenantID id.ID  `json:"tenant_id"`
	Kind     string `json:"kind"`
	Path     string `json:"path"`
}

// LedgerEntry is a bookkeeping line, written when money moves.
type LedgerEntry struct {
	saga.Entity

	ID        id.ID     `json:"id"`
	ScopeID   string    `json:"scope_id"`
	TenantID  id.ID     `json:"tenant_id"`
	Amount    int64     `json:"amount"`
	Direction string    `json:"direction"`
	Memo      string    `json:"memo,omitempty"`
	BookedAt  time.Time `json:"booked_at"`
}

// Store is the system-of-record collaborator the workflow steps read and
// write. Methods return plain errors; steps coerce them to structured
// errors with saga.AsError so the kind survives the step boundary.
type Store interface {
	GetTenant(ctx context.Context, scopeID string, tenantID id.ID) (*Tenant, error)
	CreateTenant(ctx context.Context, t *Tenant) error
	UpdateTenant(ctx context.Context, t *Tenant) error
	DeleteTenant(ctx context.Context, scopeID string, tenantID id.ID) error
	DeactivateTenant(ctx context.Context, scopeID string, tenantID id.ID) error

	GetRoom(ctx context.Context, scopeID string, roomID id.ID) (*Room, error)
	// AdjustRoomOccupancy changes a room's occupied count by delta and
	// rejects adjustments that would take it below zero or above capacity.
	AdjustRoomOccupancy(ctx context.Context, scopeID string, roomID id.ID, delta int) error

	AssignBed(ctx context.Context, scopeID string, bedID, tenantID id.ID) error
	ReleaseBed(ctx context.Context, scopeID string, bedID id.ID) error

	CreateStay(ctx context.Context, s *Stay) error
	// EndStay closes the tenant's open stay, stamping MovedOut.
	EndStay(ctx context.Context, scopeID string, tenantID id.ID, at time.Time) (*Stay, error)
	// ReopenStay clears MovedOut on a closed stay, undoing EndStay.
	ReopenStay(ctx context.Context, scopeID string, stayID id.ID) error

	CreateTransfer(ctx context.Context, t *Transfer) error

	GetBill(ctx context.Context, scopeID string, billID id.ID) (*Bill, error)
	CreateBill(ctx context.Context, b *Bill) error
	// ListUnpaidBills returns the tenant's outstanding bills.
	ListUnpaidBills(ctx context.Context, scopeID string, tenantID id.ID) ([]*Bill, error)
	// SettleBills marks all of the tenant's unpaid bills paid and returns
	// how many were settled.
	SettleBills(ctx context.Context, scopeID string, tenantID id.ID) (int, error)

	CreateRefund(ctx context.Context, r *Refund) error
	DeleteRefund(ctx context.Context, scopeID string, refundID id.ID) error

	SaveDocuments(ctx context.Context, docs []*Document) error

	RecordLedgerEntry(ctx context.Context, e *LedgerEntry) error
}
