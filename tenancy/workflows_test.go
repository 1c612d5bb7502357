package tenancy_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/audit"
	"github.com/cybinfo/pg-manager-sub005/engine"
	"github.com/cybinfo/pg-manager-sub005/id"
	"github.com/cybinfo/pg-manager-sub005/notify"
	"github.com/cybinfo/pg-manager-sub005/tenancy"
	"github.com/cybinfo/pg-manager-sub005/tenancy/memory"
)

const scope = "pg-1"

func newEngine(sink *audit.Memory, notifier *notify.Memory) *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if sink != nil {
		opts = append(opts, engine.WithAuditSink(sink))
	}
	if notifier != nil {
		opts = append(opts, engine.WithNotifier(notifier))
	}
	return engine.New(opts...)
}

func ownerContext() saga.ExecutionContext {
	return saga.NewExecutionContext("owner-1", saga.ActorOwner, scope)
}

func seedRoom(store *memory.Store, capacity, occupied int, rent int64) *tenancy.Room {
	room := &tenancy.Room{
		Entity:   saga.NewEntity(),
		ID:       id.NewRoomID(),
		ScopeID:  scope,
		Number:   "101",
		Capacity: capacity,
		Occupied: occupied,
		Rent:     rent,
	}
	store.SeedRoom(room)
	return room
}

// flakyStore wraps the memory store, failing selected operations to drive
// partial-failure scenarios.
type flakyStore struct {
	tenancy.Store
	failOccupancyRoom id.ID // AdjustRoomOccupancy with delta > 0 fails for this room
	failOccupancyAll  bool
	failDeactivate    bool
	failLedger        bool
}

func (f *flakyStore) AdjustRoomOccupancy(ctx context.Context, scopeID string, roomID id.ID, delta int) error {
	if f.failOccupancyAll || (delta > 0 && roomID == f.failOccupancyRoom) {
		return errors.New("occupancy update rejected")
	}
	return f.Store.AdjustRoomOccupancy(ctx, scopeID, roomID, delta)
}

func (f *flakyStore) DeactivateTenant(ctx context.Context, scopeID string, tenantID id.ID) error {
	if f.failDeactivate {
		return errors.New("deactivation rejected")
	}
	return f.Store.DeactivateTenant(ctx, scopeID, tenantID)
}

func (f *flakyStore) RecordLedgerEntry(ctx context.Context, e *tenancy.LedgerEntry) error {
	if f.failLedger {
		return errors.New("ledger unavailable")
	}
	return f.Store.RecordLedgerEntry(ctx, e)
}

// ── Onboarding ────────────────────────────────────

func TestOnboarding_Success(t *testing.T) {
	store := memory.New()
	room := seedRoom(store, 2, 0, 7500)
	bed := &tenancy.Bed{Entity: saga.NewEntity(), ID: id.NewBedID(), ScopeID: scope, RoomID: room.ID, Label: "A"}
	store.SeedBed(bed)

	sink := audit.NewMemory()
	notifier := notify.NewMemory()
	eng := newEngine(sink, notifier)

	in := tenancy.OnboardingInput{
		Name:      "Asha",
		Email:     "asha@example.com",
		RoomID:    room.ID,
		BedID:     bed.ID,
		MoveIn:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Documents: []tenancy.DocumentInput{{Kind: "id-proof", Path: "/docs/asha.pdf"}},
	}
	out, err := engine.Execute(context.Background(), eng, tenancy.Onboarding(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false: %v", out.Errors)
	}
	if len(out.FailedSteps) != 0 {
		t.Errorf("failedSteps = %v, want none", out.FailedSteps)
	}
	if out.Data.Tenant == nil || out.Data.Tenant.Name != "Asha" {
		t.Fatalf("tenant = %+v, want Asha", out.Data.Tenant)
	}
	if out.Data.Stay == nil || out.Data.Stay.TenantID != out.Data.Tenant.ID {
		t.Errorf("stay = %+v, want linked to tenant", out.Data.Stay)
	}
	if out.Data.Bill == nil || out.Data.Bill.Amount != 7500 {
		t.Errorf("bill = %+v, want amount 7500", out.Data.Bill)
	}

	updated, err := store.GetRoom(context.Background(), scope, room.ID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if updated.Occupied != 1 {
		t.Errorf("room occupied = %d, want 1", updated.Occupied)
	}

	events := sink.Events()
	if len(events) != 1 || events[0].Action != "tenant.onboarded" {
		t.Errorf("audit events = %+v, want single tenant.onboarded", events)
	}
	if events[0].ActorID != "owner-1" || events[0].ScopeID != scope {
		t.Errorf("audit actor stamp = %+v", events[0])
	}
	if len(notifier.Payloads()) != 2 {
		t.Errorf("notifications = %d, want 2 (tenant email + owner chat)", len(notifier.Payloads()))
	}
}

func TestOnboarding_RoomAtCapacity(t *testing.T) {
	store := memory.New()
	room := seedRoom(store, 1, 1, 5000)
	eng := newEngine(nil, nil)

	in := tenancy.OnboardingInput{Name: "Ben", RoomID: room.ID, MoveIn: time.Now()}
	out, err := engine.Execute(context.Background(), eng, tenancy.Onboarding(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Success {
		t.Fatal("success = true, want false")
	}
	if out.Errors[0].Kind != saga.KindCapacityExceeded {
		t.Errorf("kind = %q, want %q", out.Errors[0].Kind, saga.KindCapacityExceeded)
	}
	if n := store.TenantCount(); n != 0 {
		t.Errorf("tenants created = %d, want 0", n)
	}
}

func TestOnboarding_OptionalOccupancyFailureIsPartialSuccess(t *testing.T) {
	store := memory.New()
	room := seedRoom(store, 2, 0, 5000)
	flaky := &flakyStore{Store: store, failOccupancyRoom: room.ID}
	eng := newEngine(nil, nil)

	in := tenancy.OnboardingInput{Name: "Cara", RoomID: room.ID, MoveIn: time.Now()}
	out, err := engine.Execute(context.Background(), eng, tenancy.Onboarding(flaky), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false: %v", out.Errors)
	}
	if want := []string{tenancy.StepUpdateRoomOccupancy}; !reflect.DeepEqual(out.FailedSteps, want) {
		t.Errorf("failedSteps = %v, want %v", out.FailedSteps, want)
	}
	if out.Data.Tenant == nil {
		t.Error("tenant missing from partial-success output")
	}
	if n := store.TenantCount(); n != 1 {
		t.Errorf("tenants = %d, want 1 (occupancy failure must not undo tenant)", n)
	}
}

// ── Transfer ──────────────────────────────────────

func seedTenantInRoom(store *memory.Store, room *tenancy.Room) *tenancy.Tenant {
	tenant := &tenancy.Tenant{
		Entity:  saga.NewEntity(),
		ID:      id.NewTenantID(),
		ScopeID: scope,
		Name:    "Dev",
		Email:   "dev@example.com",
		RoomID:  room.ID,
		State:   tenancy.TenantActive,
	}
	store.SeedTenant(tenant)
	return tenant
}

func TestTransfer_Success(t *testing.T) {
	store := memory.New()
	oldRoom := seedRoom(store, 2, 1, 5000)
	newRoom := &tenancy.Room{
		Entity: saga.NewEntity(), ID: id.NewRoomID(), ScopeID: scope,
		Number: "202", Capacity: 1, Occupied: 0, Rent: 6000,
	}
	store.SeedRoom(newRoom)
	tenant := seedTenantInRoom(store, oldRoom)
	eng := newEngine(nil, nil)

	in := tenancy.TransferInput{TenantID: tenant.ID, ToRoomID: newRoom.ID, Reason: "upgrade"}
	out, err := engine.Execute(context.Background(), eng, tenancy.RoomTransfer(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false: %v", out.Errors)
	}
	if out.Data.Tenant.RoomID != newRoom.ID {
		t.Errorf("tenant room = %v, want %v", out.Data.Tenant.RoomID, newRoom.ID)
	}
	if out.Data.Transfer == nil {
		t.Error("transfer record missing from output")
	}

	gotOld, _ := store.GetRoom(context.Background(), scope, oldRoom.ID)
	gotNew, _ := store.GetRoom(context.Background(), scope, newRoom.ID)
	if gotOld.Occupied != 0 || gotNew.Occupied != 1 {
		t.Errorf("occupancy = old %d / new %d, want 0 / 1", gotOld.Occupied, gotNew.Occupied)
	}
}

func TestTransfer_DestinationFull(t *testing.T) {
	store := memory.New()
	oldRoom := seedRoom(store, 2, 1, 5000)
	fullRoom := &tenancy.Room{
		Entity: saga.NewEntity(), ID: id.NewRoomID(), ScopeID: scope,
		Number: "203", Capacity: 1, Occupied: 1,
	}
	store.SeedRoom(fullRoom)
	tenant := seedTenantInRoom(store, oldRoom)
	eng := newEngine(nil, nil)

	in := tenancy.TransferInput{TenantID: tenant.ID, ToRoomID: fullRoom.ID}
	out, err := engine.Execute(context.Background(), eng, tenancy.RoomTransfer(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Success || out.Errors[0].Kind != saga.KindCapacityExceeded {
		t.Errorf("outcome = %+v, want capacity failure", out)
	}
	if n := store.TransferCount(); n != 0 {
		t.Errorf("transfer records = %d, want 0", n)
	}
}

func TestTransfer_AssignFailureLeavesOldRoomReleased(t *testing.T) {
	store := memory.New()
	oldRoom := seedRoom(store, 2, 1, 5000)
	newRoom := &tenancy.Room{
		Entity: saga.NewEntity(), ID: id.NewRoomID(), ScopeID: scope,
		Number: "204", Capacity: 2, Occupied: 0,
	}
	store.SeedRoom(newRoom)
	tenant := seedTenantInRoom(store, oldRoom)
	flaky := &flakyStore{Store: store, failOccupancyRoom: newRoom.ID}
	eng := newEngine(nil, nil)

	in := tenancy.TransferInput{TenantID: tenant.ID, ToRoomID: newRoom.ID}
	out, err := engine.Execute(context.Background(), eng, tenancy.RoomTransfer(flaky), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Success {
		t.Fatal("success = true, want false")
	}

	// The old-room release had no rollback, so the release survives the
	// abort. This is the documented inconsistency window.
	gotOld, _ := store.GetRoom(context.Background(), scope, oldRoom.ID)
	if gotOld.Occupied != 0 {
		t.Errorf("old room occupied = %d, want 0 (released before the abort)", gotOld.Occupied)
	}

	// The tenant record, by contrast, was never touched.
	gotTenant, _ := store.GetTenant(context.Background(), scope, tenant.ID)
	if gotTenant.RoomID != oldRoom.ID {
		t.Errorf("tenant room = %v, want unchanged %v", gotTenant.RoomID, oldRoom.ID)
	}
}

// ── Exit clearance ────────────────────────────────

func seedOpenStay(t *testing.T, store *memory.Store, tenant *tenancy.Tenant) *tenancy.Stay {
	t.Helper()
	stay := &tenancy.Stay{
		Entity:   saga.NewEntity(),
		ID:       id.NewStayID(),
		ScopeID:  scope,
		TenantID: tenant.ID,
		RoomID:   tenant.RoomID,
		MovedIn:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := store.CreateStay(context.Background(), stay); err != nil {
		t.Fatalf("CreateStay: %v", err)
	}
	return stay
}

func TestExitClearance_Success(t *testing.T) {
	store := memory.New()
	room := seedRoom(store, 2, 1, 5000)
	tenant := seedTenantInRoom(store, room)
	seedOpenStay(t, store, tenant)
	store.SeedBill(&tenancy.Bill{
		Entity: saga.NewEntity(), ID: id.NewBillID(), ScopeID: scope,
		TenantID: tenant.ID, Amount: 5000, State: tenancy.BillUnpaid,
	})
	eng := newEngine(nil, nil)

	in := tenancy.ExitInput{TenantID: tenant.ID, MoveOut: time.Now().UTC(), WaiveDues: true}
	out, err := engine.Execute(context.Background(), eng, tenancy.ExitClearance(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false: %v", out.Errors)
	}
	if out.Data.BillsSettled != 1 {
		t.Errorf("bills settled = %d, want 1", out.Data.BillsSettled)
	}
	if out.Data.Stay == nil || out.Data.Stay.MovedOut == nil {
		t.Errorf("stay = %+v, want closed", out.Data.Stay)
	}

	gotTenant, _ := store.GetTenant(context.Background(), scope, tenant.ID)
	if gotTenant.State != tenancy.TenantInactive {
		t.Errorf("tenant state = %q, want inactive", gotTenant.State)
	}
	gotRoom, _ := store.GetRoom(context.Background(), scope, room.ID)
	if gotRoom.Occupied != 0 {
		t.Errorf("room occupied = %d, want 0", gotRoom.Occupied)
	}
}

func TestExitClearance_UnpaidBillsBlockExit(t *testing.T) {
	store := memory.New()
	room := seedRoom(store, 2, 1, 5000)
	tenant := seedTenantInRoom(store, room)
	seedOpenStay(t, store, tenant)
	store.SeedBill(&tenancy.Bill{
		Entity: saga.NewEntity(), ID: id.NewBillID(), ScopeID: scope,
		TenantID: tenant.ID, Amount: 5000, State: tenancy.BillUnpaid,
	})
	eng := newEngine(nil, nil)

	in := tenancy.ExitInput{TenantID: tenant.ID, MoveOut: time.Now().UTC()}
	out, err := engine.Execute(context.Background(), eng, tenancy.ExitClearance(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Success || out.Errors[0].Kind != saga.KindConflict {
		t.Errorf("outcome = %+v, want conflict failure", out)
	}

	gotTenant, _ := store.GetTenant(context.Background(), scope, tenant.ID)
	if gotTenant.State != tenancy.TenantActive {
		t.Errorf("tenant state = %q, want still active", gotTenant.State)
	}
}

func TestExitClearance_DeactivationFailureReopensStay(t *testing.T) {
	store := memory.New()
	room := seedRoom(store, 2, 1, 5000)
	tenant := seedTenantInRoom(store, room)
	stay := seedOpenStay(t, store, tenant)
	flaky := &flakyStore{Store: store, failDeactivate: true}
	eng := newEngine(nil, nil)

	in := tenancy.ExitInput{TenantID: tenant.ID, MoveOut: time.Now().UTC(), WaiveDues: true}
	out, err := engine.Execute(context.Background(), eng, tenancy.ExitClearance(flaky), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Success {
		t.Fatal("success = true, want false")
	}

	// end_stay's rollback must have reopened the stay.
	reopened, err := store.EndStay(context.Background(), scope, tenant.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("stay %s was not reopened: %v", stay.ID, err)
	}
	if reopened.ID != stay.ID {
		t.Errorf("reopened stay = %v, want %v", reopened.ID, stay.ID)
	}
}

// ── Refund ────────────────────────────────────────

func seedPaidBill(store *memory.Store, tenantID id.ID, amount int64) *tenancy.Bill {
	bill := &tenancy.Bill{
		Entity: saga.NewEntity(), ID: id.NewBillID(), ScopeID: scope,
		TenantID: tenantID, Amount: amount, State: tenancy.BillPaid,
	}
	store.SeedBill(bill)
	return bill
}

func TestRefund_Success(t *testing.T) {
	store := memory.New()
	bill := seedPaidBill(store, id.NewTenantID(), 5000)
	eng := newEngine(nil, nil)

	in := tenancy.RefundInput{BillID: bill.ID, Amount: 2000, Reason: "early exit"}
	out, err := engine.Execute(context.Background(), eng, tenancy.RefundIssuance(store), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false: %v", out.Errors)
	}
	if out.Data.Refund == nil || out.Data.Refund.Amount != 2000 {
		t.Errorf("refund = %+v, want amount 2000", out.Data.Refund)
	}
	if n := store.RefundCount(); n != 1 {
		t.Errorf("refunds = %d, want 1", n)
	}
}

func TestRefund_Validation(t *testing.T) {
	store := memory.New()
	unpaid := &tenancy.Bill{
		Entity: saga.NewEntity(), ID: id.NewBillID(), ScopeID: scope,
		TenantID: id.NewTenantID(), Amount: 5000, State: tenancy.BillUnpaid,
	}
	store.SeedBill(unpaid)
	paid := seedPaidBill(store, id.NewTenantID(), 5000)
	eng := newEngine(nil, nil)

	tests := []struct {
		name string
		in   tenancy.RefundInput
	}{
		{"unpaid bill", tenancy.RefundInput{BillID: unpaid.ID, Amount: 1000}},
		{"amount exceeds bill", tenancy.RefundInput{BillID: paid.ID, Amount: 9000}},
		{"non-positive amount", tenancy.RefundInput{BillID: paid.ID, Amount: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.Execute(context.Background(), eng, tenancy.RefundIssuance(store), tt.in, ownerContext())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.Success || out.Errors[0].Kind != saga.KindValidationFailed {
				t.Errorf("outcome = %+v, want validation failure", out)
			}
		})
	}
	if n := store.RefundCount(); n != 0 {
		t.Errorf("refunds = %d, want 0", n)
	}
}

func TestRefund_LedgerFailureIsPartialSuccess(t *testing.T) {
	store := memory.New()
	bill := seedPaidBill(store, id.NewTenantID(), 5000)
	flaky := &flakyStore{Store: store, failLedger: true}
	eng := newEngine(nil, nil)

	in := tenancy.RefundInput{BillID: bill.ID, Amount: 1000}
	out, err := engine.Execute(context.Background(), eng, tenancy.RefundIssuance(flaky), in, ownerContext())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.Success {
		t.Fatalf("success = false: %v", out.Errors)
	}
	if want := []string{tenancy.StepRecordLedgerEntry}; !reflect.DeepEqual(out.FailedSteps, want) {
		t.Errorf("failedSteps = %v, want %v", out.FailedSteps, want)
	}
	if n := store.RefundCount(); n != 1 {
		t.Errorf("refunds = %d, want 1", n)
	}
}
