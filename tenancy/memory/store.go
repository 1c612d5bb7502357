// Package memory is a fully in-memory implementation of tenancy.Store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/id"
	"github.com/cybinfo/pg-manager-sub005/tenancy"
)

// Ensure Store implements tenancy.Store at compile time.
var _ tenancy.Store = (*Store)(nil)

// Store keeps every entity in mutex-guarded maps keyed by ID string.
// Errors carry structured kinds so workflow steps propagate them as-is.
type Store struct {
	mu sync.RWMutex

	tenants   map[string]*tenancy.Tenant
	rooms     map[string]*tenancy.Room
	beds      map[string]*tenancy.Bed
	stays     map[string]*tenancy.Stay
	transfers map[string]*tenancy.Transfer
	bills     map[string]*tenancy.Bill
	refunds   map[string]*tenancy.Refund
	documents map[string]*tenancy.Document
	ledger    map[string]*tenancy.LedgerEntry
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tenants:   make(map[string]*tenancy.Tenant),
		rooms:     make(map[string]*tenancy.Room),
		beds:      make(map[string]*tenancy.Bed),
		stays:     make(map[string]*tenancy.Stay),
		transfers: make(map[string]*tenancy.Transfer),
		bills:     make(map[string]*tenancy.Bill),
		refunds:   make(map[string]*tenancy.Refund),
		documents: make(map[string]*tenancy.Document),
		ledger:    make(map[string]*tenancy.LedgerEntry),
	}
}

// SeedRoom inserts a room, for test and development fixtures.
func (m *Store) SeedRoom(r *tenancy.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.rooms[r.ID.String()] = &cp
}

// SeedBed inserts a bed, for test and development fixtures.
func (m *Store) SeedBed(b *tenancy.Bed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.beds[b.ID.String()] = &cp
}

// SeedBill inserts a bill, for test and development fixtures.
func (m *Store) SeedBill(b *tenancy.Bill) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bills[b.ID.String()] = &cp
}

// SeedTenant inserts a tenant, for test and development fixtures.
func (m *Store) SeedTenant(t *tenancy.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID.String()] = &cp
}

// ──────────────────────────────────────────────────
// Tenants
// ──────────────────────────────────────────────────

func (m *Store) GetTenant(_ context.Context, scopeID string, tenantID id.ID) (*tenancy.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[tenantID.String()]
	if !ok || t.ScopeID != scopeID {
		return nil, saga.Errorf(saga.KindNotFound, "tenant %s not found", tenantID)
	}
	cp := *t
	return &cp, nil
}

func (m *Store) CreateTenant(_ context.Context, t *tenancy.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := t.ID.String()
	if _, exists := m.tenants[key]; exists {
		return saga.Errorf(saga.KindConflict, "tenant %s already exists", t.ID)
	}
	cp := *t
	m.tenants[key] = &cp
	return nil
}

func (m *Store) UpdateTenant(_ context.Context, t *tenancy.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := t.ID.String()
	if _, ok := m.tenants[key]; !ok {
		return saga.Errorf(saga.KindNotFound, "tenant %s not found", t.ID)
	}
	cp := *t
	m.tenants[key] = &cp
	return nil
}

func (m *Store) DeleteTenant(_ context.Context, scopeID string, tenantID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := tenantID.String()
	t, ok := m.tenants[key]
	if !ok || t.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "tenant %s not found", tenantID)
	}
	delete(m.tenants, key)
	return nil
}

func (m *Store) DeactivateTenant(_ context.Context, scopeID string, tenantID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID.String()]
	if !ok || t.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "tenant %s not found", tenantID)
	}
	t.State = tenancy.TenantInactive
	t.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Rooms and beds
// ──────────────────────────────────────────────────

func (m *Store) GetRoom(_ context.Context, scopeID string, roomID id.ID) (*tenancy.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID.String()]
	if !ok || r.ScopeID != scopeID {
		return nil, saga.Errorf(saga.KindNotFound, "room %s not found", roomID)
	}
	cp := *r
	return &cp, nil
}

func (m *Store) AdjustRoomOccupancy(_ context.Context, scopeID string, roomID id.ID, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID.String()]
	if !ok || r.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "room %s not found", roomID)
	}
	next := r.Occupied + delta
	if next < 0 || next > r.Capacity {
		return saga.Errorf(saga.KindConflict,
			"room %s occupancy %d+%d out of range [0,%d]", roomID, r.Occupied, delta, r.Capacity)
	}
	r.Occupied = next
	r.Touch()
	return nil
}

func (m *Store) AssignBed(_ context.Context, scopeID string, bedID, tenantID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[bedID.String()]
	if !ok || b.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "bed %s not found", bedID)
	}
	if !b.TenantID.IsNil() {
		return saga.Errorf(saga.KindConflict, "bed %s is taken", bedID)
	}
	b.TenantID = tenantID
	b.Touch()
	return nil
}

func (m *Store) ReleaseBed(_ context.Context, scopeID string, bedID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.beds[bedID.String()]
	if !ok || b.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "bed %s not found", bedID)
	}
	b.TenantID = id.Nil
	b.Touch()
	return nil
}

// ──────────────────────────────────────────────────
// Stays and transfers
// ──────────────────────────────────────────────────

func (m *Store) CreateStay(_ context.Context, s *tenancy.Stay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.stays[s.ID.String()] = &cp
	return nil
}

func (m *Store) EndStay(_ context.Context, scopeID string, tenantID id.ID, at time.Time) (*tenancy.Stay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stays {
		if s.ScopeID == scopeID && s.TenantID == tenantID && s.MovedOut == nil {
			out := at
			s.MovedOut = &out
			s.Touch()
			cp := *s
			return &cp, nil
		}
	}
	return nil, saga.Errorf(saga.KindNotFound, "no open stay for tenant %s", tenantID)
}

func (m *Store) ReopenStay(_ context.Context, scopeID string, stayID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stays[stayID.String()]
	if !ok || s.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "stay %s not found", stayID)
	}
	s.MovedOut = nil
	s.Touch()
	return nil
}

func (m *Store) CreateTransfer(_ context.Context, t *tenancy.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.transfers[t.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Bills, refunds, ledger
// ──────────────────────────────────────────────────

func (m *Store) GetBill(_ context.Context, scopeID string, billID id.ID) (*tenancy.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bills[billID.String()]
	if !ok || b.ScopeID != scopeID {
		return nil, saga.Errorf(saga.KindNotFound, "bill %s not found", billID)
	}
	cp := *b
	return &cp, nil
}

func (m *Store) CreateBill(_ context.Context, b *tenancy.Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bills[b.ID.String()] = &cp
	return nil
}

func (m *Store) ListUnpaidBills(_ context.Context, scopeID string, tenantID id.ID) ([]*tenancy.Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*tenancy.Bill
	for _, b := range m.bills {
		if b.ScopeID == scopeID && b.TenantID == tenantID && b.State == tenancy.BillUnpaid {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Store) SettleBills(_ context.Context, scopeID string, tenantID id.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	settled := 0
	for _, b := range m.bills {
		if b.ScopeID == scopeID && b.TenantID == tenantID && b.State == tenancy.BillUnpaid {
			b.State = tenancy.BillPaid
			b.Touch()
			settled++
		}
	}
	return settled, nil
}

func (m *Store) CreateRefund(_ context.Context, r *tenancy.Refund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.refunds[r.ID.String()] = &cp
	return nil
}

func (m *Store) DeleteRefund(_ context.Context, scopeID string, refundID id.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := refundID.String()
	r, ok := m.refunds[key]
	if !ok || r.ScopeID != scopeID {
		return saga.Errorf(saga.KindNotFound, "refund %s not found", refundID)
	}
	delete(m.refunds, key)
	return nil
}

func (m *Store) SaveDocuments(_ context.Context, docs []*tenancy.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		cp := *d
		m.documents[d.ID.String()] = &cp
	}
	return nil
}

func (m *Store) RecordLedgerEntry(_ context.Context, e *tenancy.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.ledger[e.ID.String()] = &cp
	return nil
}

// ──────────────────────────────────────────────────
// Inspection helpers for tests
// ──────────────────────────────────────────────────

// TenantCount returns the number of stored tenants.
func (m *Store) TenantCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tenants)
}

// TransferCount returns the number of stored transfer records.
func (m *Store) TransferCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.transfers)
}

// RefundCount returns the number of stored refund records.
func (m *Store) RefundCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refunds)
}
