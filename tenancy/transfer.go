package tenancy

import (
	"context"
	"fmt"
	"time"

	saga "github.com/cybinfo/pg-manager-sub005"
	"github.com/cybinfo/pg-manager-sub005/audit"
	"github.com/cybinfo/pg-manager-sub005/id"
	"github.com/cybinfo/pg-manager-sub005/notify"
	"github.com/cybinfo/pg-manager-sub005/workflow"
)

// WorkflowTransfer is the registry name of the room-transfer workflow.
const WorkflowTransfer = "room-transfer"

// Transfer step names.
const (
	StepValidateTransfer     = "validate"
	StepCreateTransferRecord = "create_transfer_record"
	StepReleaseOldRoom       = "release_old_room"
	StepAssignNewRoom        = "assign_new_room"
	StepUpdateTenant         = "update_tenant"
)

// TransferInput is the request to move a tenant to another room.
type TransferInput struct {
	TenantID id.ID  `json:"tenant_id"`
	ToRoomID id.ID  `json:"to_room_id"`
	Reason   string `json:"reason,omitempty"`
}

// transferState is what validation loads once so later steps do not
// re-read the store.
type transferState struct {
	Tenant  *Tenant
	OldRoom *Room
	NewRoom *Room
}

// TransferOutput is the projection of a completed transfer.
type TransferOutput struct {
	Tenant   *Tenant   `json:"tenant"`
	Transfer *Transfer `json:"transfer,omitempty"`
}

// RoomTransfer builds the room-transfer workflow.
//
// The ordering encodes a policy choice: losing track of where a tenant
// currently is (update_tenant) is worse than losing the transfer's paper
// trail, so update_tenant and assign_new_room are required and abort on
// failure, while the record and the old-room release are optional.
//
// release_old_room has no rollback. If assign_new_room then fails, the
// old room stays released: an accepted inconsistency window, detectable
// through the execution history and resolvable by re-running the
// transfer or adjusting occupancy by hand.
func RoomTransfer(store Store) *workflow.Definition[TransferInput, TransferOutput] {
	return &workflow.Definition[TransferInput, TransferOutput]{
		Name: WorkflowTransfer,
		Steps: []workflow.Step[TransferInput]{
			{
				Name: StepValidateTransfer,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in TransferInput, _ workflow.Results) saga.Result[any] {
					tenant, err := store.GetTenant(ctx, ec.ScopeID, in.TenantID)
					if err != nil {
						return fail(err)
					}
					if tenant.State != TenantActive {
						return saga.Errf[any](saga.KindValidationFailed, "tenant %s is not active", tenant.ID)
					}
					if tenant.RoomID == in.ToRoomID {
						return saga.Errf[any](saga.KindValidationFailed, "tenant %s already occupies room %s", tenant.ID, in.ToRoomID)
					}
					oldRoom, err := store.GetRoom(ctx, ec.ScopeID, tenant.RoomID)
					if err != nil {
						return fail(err)
					}
					newRoom, err := store.GetRoom(ctx, ec.ScopeID, in.ToRoomID)
					if err != nil {
						return fail(err)
					}
					if newRoom.Full() {
						return saga.Errf[any](saga.KindCapacityExceeded,
							"room %s is full (%d/%d)", newRoom.Number, newRoom.Occupied, newRoom.Capacity)
					}
					return saga.Ok[any](&transferState{Tenant: tenant, OldRoom: oldRoom, NewRoom: newRoom})
				},
			},
			{
				Name:     StepCreateTransferRecord,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in TransferInput, prior workflow.Results) saga.Result[any] {
					st, ok := workflow.As[*transferState](prior, StepValidateTransfer)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "validation state unavailable")
					}
					rec := &Transfer{
						Entity:     saga.NewEntity(),
						ID:         id.NewTransferID(),
						ScopeID:    ec.ScopeID,
						TenantID:   st.Tenant.ID,
						FromRoomID: st.OldRoom.ID,
						ToRoomID:   in.ToRoomID,
						MovedAt:    time.Now().UTC(),
						Reason:     in.Reason,
					}
					if err := store.CreateTransfer(ctx, rec); err != nil {
						return fail(err)
					}
					return saga.Ok[any](rec)
				},
			},
			{
				Name:     StepReleaseOldRoom,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, _ TransferInput, prior workflow.Results) saga.Result[any] {
					st, ok := workflow.As[*transferState](prior, StepValidateTransfer)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "validation state unavailable")
					}
					if err := store.AdjustRoomOccupancy(ctx, ec.ScopeID, st.OldRoom.ID, -1); err != nil {
						return fail(err)
					}
					return saga.Ok[any](nil)
				},
			},
			{
				Name: StepAssignNewRoom,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in TransferInput, _ workflow.Results) saga.Result[any] {
					if err := store.AdjustRoomOccupancy(ctx, ec.ScopeID, in.ToRoomID, 1); err != nil {
						return fail(err)
					}
					return saga.Ok[any](in.ToRoomID)
				},
				Rollback: func(ctx context.Context, ec saga.ExecutionContext, in TransferInput, _ any) error {
					return store.AdjustRoomOccupancy(ctx, ec.ScopeID, in.ToRoomID, -1)
				},
			},
			{
				Name: StepUpdateTenant,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in TransferInput, prior workflow.Results) saga.Result[any] {
					st, ok := workflow.As[*transferState](prior, StepValidateTransfer)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "validation state unavailable")
					}
					updated := *st.Tenant
					updated.RoomID = in.ToRoomID
					updated.Touch()
					if err := store.UpdateTenant(ctx, &updated); err != nil {
						return fail(err)
					}
					return saga.Ok[any](&updated)
				},
				// Last step: nothing after it can fail, so no rollback.
			},
		},
		AuditEvents:   transferAudit,
		Notifications: transferNotifications,
		BuildOutput: func(results workflow.Results) TransferOutput {
			out := TransferOutput{}
			out.Tenant, _ = workflow.As[*Tenant](results, StepUpdateTenant)
			out.Transfer, _ = workflow.As[*Transfer](results, StepCreateTransferRecord)
			return out
		},
	}
}

func transferAudit(ec saga.ExecutionContext, in TransferInput, results workflow.Results) []*audit.Event {
	t, ok := workflow.As[*Tenant](results, StepUpdateTenant)
	if !ok {
		return nil
	}

	ev := audit.New("tenant.transferred", "tenant", t.ID.String()).WithActor(ec)
	ev.Category = "tenancy"
	ev.Metadata = map[string]any{
		"to_room_id": in.ToRoomID.String(),
		"reason":     in.Reason,
	}
	events := []*audit.Event{ev}

	for _, step := range []string{StepCreateTransferRecord, StepReleaseOldRoom} {
		if results.Failed(step) {
			warn := audit.New("tenant.transfer.step_failed", "tenant", t.ID.String()).WithActor(ec)
			warn.Category = "tenancy"
			warn.Severity = audit.SeverityWarning
			warn.Outcome = audit.OutcomeFailure
			warn.Metadata = map[string]any{"step": step}
			events = append(events, warn)
		}
	}
	return events
}

func transferNotifications(ec saga.ExecutionContext, in TransferInput, results workflow.Results) []*notify.Payload {
	t, ok := workflow.As[*Tenant](results, StepUpdateTenant)
	if !ok {
		return nil
	}

	var payloads []*notify.Payload
	if t.Email != "" {
		payloads = append(payloads, &notify.Payload{
			Channel:   notify.ChannelEmail,
			Recipient: t.Email,
			Subject:   "Room change confirmed",
			Body:      fmt.Sprintf("Hi %s, your move to the new room is complete.", t.Name),
			Metadata:  map[string]any{"tenant_id": t.ID.String(), "room_id": in.ToRoomID.String()},
		})
	}
	return payloads
}
