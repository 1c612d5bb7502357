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

// WorkflowExitClearance is the registry name of the exit-clearance workflow.
const WorkflowExitClearance = "exit-clearance"

// Exit-clearance step names.
const (
	StepValidateTenant    = "validate_tenant"
	StepSettleDues        = "settle_dues"
	StepEndStay           = "end_stay"
	StepReleaseRoom       = "release_room"
	StepReleaseBed        = "release_bed"
	StepDeactivateTenant  = "deactivate_tenant"
)

// ExitInput is the request to clear a tenant out.
type ExitInput struct {
	TenantID id.ID     `json:"tenant_id"`
	BedID    id.ID     `json:"bed_id,omitempty"`
	MoveOut  time.Time `json:"move_out"`
	// WaiveDues permits exit with unpaid bills still on the books.
	WaiveDues bool `json:"waive_dues,omitempty"`
}

// ExitOutput is the projection of a completed exit clearance.
type ExitOutput struct {
	Tenant       *Tenant `json:"tenant"`
	Stay         *Stay   `json:"stay,omitempty"`
	BillsSettled int     `json:"bills_settled"`
}

// ExitClearance builds the exit-clearance workflow.
//
// Deactivation runs last and has no rollback: once every other step has
// held, flipping the tenant inactive is the irreversible commit point.
func ExitClearance(store Store) *workflow.Definition[ExitInput, ExitOutput] {
	return &workflow.Definition[ExitInput, ExitOutput]{
		Name: WorkflowExitClearance,
		Steps: []workflow.Step[ExitInput]{
			{
				Name: StepValidateTenant,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in ExitInput, _ workflow.Results) saga.Result[any] {
					tenant, err := store.GetTenant(ctx, ec.ScopeID, in.TenantID)
					if err != nil {
						return fail(err)
					}
					if tenant.State != TenantActive {
						return saga.Errf[any](saga.KindValidationFailed, "tenant %s is not active", tenant.ID)
					}
					return saga.Ok[any](tenant)
				},
			},
			{
				Name: StepSettleDues,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in ExitInput, _ workflow.Results) saga.Result[any] {
					unpaid, err := store.ListUnpaidBills(ctx, ec.ScopeID, in.TenantID)
					if err != nil {
						return fail(err)
					}
					if len(unpaid) > 0 && !in.WaiveDues {
						return saga.Errf[any](saga.KindConflict,
							"tenant %s has %d unpaid bills", in.TenantID, len(unpaid))
					}
					settled, err := store.SettleBills(ctx, ec.ScopeID, in.TenantID)
					if err != nil {
						return fail(err)
					}
					return saga.Ok[any](settled)
				},
			},
			{
				Name: StepEndStay,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in ExitInput, _ workflow.Results) saga.Result[any] {
					stay, err := store.EndStay(ctx, ec.ScopeID, in.TenantID, in.MoveOut)
					if err != nil {
						return fail(err)
					}
					return saga.Ok[any](stay)
				},
				Rollback: func(ctx context.Context, ec saga.ExecutionContext, _ ExitInput, produced any) error {
					stay, ok := produced.(*Stay)
					if !ok {
						return fmt.Errorf("tenancy: unexpected rollback value %T", produced)
					}
					return store.ReopenStay(ctx, ec.ScopeID, stay.ID)
				},
			},
			{
				Name:     StepReleaseRoom,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, _ ExitInput, prior workflow.Results) saga.Result[any] {
					tenant, ok := workflow.As[*Tenant](prior, StepValidateTenant)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "tenant record unavailable")
					}
					if err := store.AdjustRoomOccupancy(ctx, ec.ScopeID, tenant.RoomID, -1); err != nil {
						return fail(err)
					}
					return saga.Ok[any](nil)
				},
			},
			{
				Name:     StepReleaseBed,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in ExitInput, _ workflow.Results) saga.Result[any] {
					if in.BedID.IsNil() {
						return saga.Ok[any](nil)
					}
					if err := store.ReleaseBed(ctx, ec.ScopeID, in.BedID); err != nil {
						return fail(err)
					}
					return saga.Ok[any](nil)
				},
			},
			{
				Name: StepDeactivateTenant,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in ExitInput, prior workflow.Results) saga.Result[any] {
					if err := store.DeactivateTenant(ctx, ec.ScopeID, in.TenantID); err != nil {
						return fail(err)
					}
					tenant, ok := workflow.As[*Tenant](prior, StepValidateTenant)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "tenant record unavailable")
					}
					departed := *tenant
					departed.State = TenantInactive
					departed.Touch()
					return saga.Ok[any](&departed)
				},
			},
		},
		AuditEvents:   exitAudit,
		Notifications: exitNotifications,
		BuildOutput: func(results workflow.Results) ExitOutput {
			out := ExitOutput{}
			out.Tenant, _ = workflow.As[*Tenant](results, StepDeactivateTenant)
			out.Stay, _ = workflow.As[*Stay](results, StepEndStay)
			out.BillsSettled, _ = workflow.As[int](results, StepSettleDues)
			return out
		},
	}
}

func exitAudit(ec saga.ExecutionContext, in ExitInput, results workflow.Results) []*audit.Event {
	t, ok := workflow.As[*Tenant](results, StepDeactivateTenant)
	if !ok {
		return nil
	}

	ev := audit.New("tenant.exited", "tenant", t.ID.String()).WithActor(ec)
	ev.Category = "tenancy"
	ev.Metadata = map[string]any{"move_out": in.MoveOut, "waived": in.WaiveDues}
	events := []*audit.Event{ev}

	for _, step := range []string{StepReleaseRoom, StepReleaseBed} {
		if results.Failed(step) {
			warn := audit.New("tenant.exit.step_failed", "tenant", t.ID.String()).WithActor(ec)
			warn.Category = "tenancy"
			warn.Severity = audit.SeverityWarning
			warn.Outcome = audit.OutcomeFailure
			warn.Metadata = map[string]any{"step": step}
			events = append(events, warn)
		}
	}
	return events
}

func exitNotifications(ec saga.ExecutionContext, _ ExitInput, results workflow.Results) []*notify.Payload {
	t, ok := workflow.As[*Tenant](results, StepDeactivateTenant)
	if !ok || t.Email == "" {
		return nil
	}
	return []*notify.Payload{{
		Channel:   notify.ChannelEmail,
		Recipient: t.Email,
		Subject:   "Exit clearance complete",
		Body:      fmt.Sprintf("Hi %s, your exit clearance is complete. Safe travels.", t.Name),
		Metadata:  map[string]any{"tenant_id": t.ID.String()},
	}}
}
