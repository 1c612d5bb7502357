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

// WorkflowOnboarding is the registry name of the onboarding workflow.
const WorkflowOnboarding = "tenant-onboarding"

// Onboarding step names.
const (
	StepValidateCapacity    = "validate_capacity"
	StepCreateTenantRecord  = "create_tenant_record"
	StepCreateStayRecord    = "create_stay_record"
	StepUpdateRoomOccupancy = "update_room_occupancy"
	StepAssignBed           = "assign_bed"
	StepSaveDocuments       = "save_documents"
	StepGenerateInitialBill = "generate_initial_bill"
)

// DocumentInput is one file to attach during onboarding.
type DocumentInput struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// OnboardingInput is the request to onboard a tenant into a room.
type OnboardingInput struct {
	Name      string          `json:"name"`
	Phone     string          `json:"phone,omitempty"`
	Email     string          `json:"email,omitempty"`
	RoomID    id.ID           `json:"room_id"`
	BedID     id.ID           `json:"bed_id,omitempty"`
	MoveIn    time.Time       `json:"move_in"`
	Documents []DocumentInput `json:"documents,omitempty"`
}

// OnboardingOutput is the projection of a completed onboarding. Fields
// backed by failed optional steps are nil.
type OnboardingOutput struct {
	Tenant *Tenant `json:"tenant"`
	Stay   *Stay   `json:"stay,omitempty"`
	Bill   *Bill   `json:"bill,omitempty"`
}

// fail coerces a collaborator error into a failed step result, keeping
// the structured kind when the store supplied one.
func fail(err error) saga.Result[any] {
	return saga.Err[any](saga.AsError(err))
}

// Onboarding builds the tenant-onboarding workflow.
//
// Capacity validation and tenant creation are required: without a room
// slot and a tenant row there is nothing to onboard. Everything after is
// optional; a billing or document failure must not undo the tenant, so
// those steps fail into the partial-success channel instead of aborting.
func Onboarding(store Store) *workflow.Definition[OnboardingInput, OnboardingOutput] {
	return &workflow.Definition[OnboardingInput, OnboardingOutput]{
		Name: WorkflowOnboarding,
		Steps: []workflow.Step[OnboardingInput]{
			{
				Name: StepValidateCapacity,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, _ workflow.Results) saga.Result[any] {
					room, err := store.GetRoom(ctx, ec.ScopeID, in.RoomID)
					if err != nil {
						return fail(err)
					}
					if room.Full() {
						return saga.Errf[any](saga.KindCapacityExceeded,
							"room %s is full (%d/%d)", room.Number, room.Occupied, room.Capacity)
					}
					return saga.Ok[any](room)
				},
			},
			{
				Name: StepCreateTenantRecord,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, _ workflow.Results) saga.Result[any] {
					t := &Tenant{
						Entity:  saga.NewEntity(),
						ID:      id.NewTenantID(),
						ScopeID: ec.ScopeID,
						Name:    in.Name,
						Phone:   in.Phone,
						Email:   in.Email,
						RoomID:  in.RoomID,
						State:   TenantActive,
					}
					if err := store.CreateTenant(ctx, t); err != nil {
						return fail(err)
					}
					return saga.Ok[any](t)
				},
				Rollback: func(ctx context.Context, ec saga.ExecutionContext, _ OnboardingInput, produced any) error {
					t, ok := produced.(*Tenant)
					if !ok {
						return fmt.Errorf("tenancy: unexpected rollback value %T", produced)
					}
					return store.DeleteTenant(ctx, ec.ScopeID, t.ID)
				},
			},
			{
				Name:     StepCreateStayRecord,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, prior workflow.Results) saga.Result[any] {
					t, ok := workflow.As[*Tenant](prior, StepCreateTenantRecord)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "tenant record unavailable")
					}
					s := &Stay{
						Entity:   saga.NewEntity(),
						ID:       id.NewStayID(),
						ScopeID:  ec.ScopeID,
						TenantID: t.ID,
						RoomID:   in.RoomID,
						MovedIn:  in.MoveIn,
					}
					if err := store.CreateStay(ctx, s); err != nil {
						return fail(err)
					}
					return saga.Ok[any](s)
				},
			},
			{
				Name:     StepUpdateRoomOccupancy,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, _ workflow.Results) saga.Result[any] {
					if err := store.AdjustRoomOccupancy(ctx, ec.ScopeID, in.RoomID, 1); err != nil {
						return fail(err)
					}
					return saga.Ok[any](nil)
				},
			},
			{
				Name:     StepAssignBed,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, prior workflow.Results) saga.Result[any] {
					if in.BedID.IsNil() {
						return saga.Ok[any](nil)
					}
					t, ok := workflow.As[*Tenant](prior, StepCreateTenantRecord)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "tenant record unavailable")
					}
					if err := store.AssignBed(ctx, ec.ScopeID, in.BedID, t.ID); err != nil {
						return fail(err)
					}
					return saga.Ok[any](in.BedID)
				},
			},
			{
				Name:     StepSaveDocuments,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, prior workflow.Results) saga.Result[any] {
					if len(in.Documents) == 0 {
						return saga.Ok[any](nil)
					}
					t, ok := workflow.As[*Tenant](prior, StepCreateTenantRecord)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "tenant record unavailable")
					}
					docs := make([]*Document, 0, len(in.Documents))
					for _, d := range in.Documents {
						docs = append(docs, &Document{
							Entity:   saga.NewEntity(),
							ID:       id.NewDocumentID(),
							ScopeID:  ec.ScopeID,
							TenantID: t.ID,
							Kind:     d.Kind,
							Path:     d.Path,
						})
					}
					if err := store.SaveDocuments(ctx, docs); err != nil {
						return fail(err)
					}
					return saga.Ok[any](docs)
				},
			},
			{
				Name:     StepGenerateInitialBill,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in OnboardingInput, prior workflow.Results) saga.Result[any] {
					t, ok := workflow.As[*Tenant](prior, StepCreateTenantRecord)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "tenant record unavailable")
					}
					room, ok := workflow.As[*Room](prior, StepValidateCapacity)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "room unavailable")
					}
					b := &Bill{
						Entity:   saga.NewEntity(),
						ID:       id.NewBillID(),
						ScopeID:  ec.ScopeID,
						TenantID: t.ID,
						Amount:   room.Rent,
						State:    BillUnpaid,
						DueAt:    in.MoveIn.AddDate(0, 1, 0),
					}
					if err := store.CreateBill(ctx, b); err != nil {
						return fail(err)
					}
					return saga.Ok[any](b)
				},
			},
		},
		AuditEvents:   onboardingAudit,
		Notifications: onboardingNotifications,
		BuildOutput: func(results workflow.Results) OnboardingOutput {
			out := OnboardingOutput{}
			out.Tenant, _ = workflow.As[*Tenant](results, StepCreateTenantRecord)
			out.Stay, _ = workflow.As[*Stay](results, StepCreateStayRecord)
			out.Bill, _ = workflow.As[*Bill](results, StepGenerateInitialBill)
			return out
		},
	}
}

func onboardingAudit(ec saga.ExecutionContext, in OnboardingInput, results workflow.Results) []*audit.Event {
	t, ok := workflow.As[*Tenant](results, StepCreateTenantRecord)
	if !ok {
		return nil
	}

	ev := audit.New("tenant.onboarded", "tenant", t.ID.String()).WithActor(ec)
	ev.Category = "tenancy"
	ev.Metadata = map[string]any{
		"room_id": in.RoomID.String(),
		"name":    in.Name,
	}
	events := []*audit.Event{ev}

	for _, step := range []string{StepCreateStayRecord, StepUpdateRoomOccupancy, StepAssignBed, StepSaveDocuments, StepGenerateInitialBill} {
		if results.Failed(step) {
			warn := audit.New("tenant.onboarding.step_failed", "tenant", t.ID.String()).WithActor(ec)
			warn.Category = "tenancy"
			warn.Severity = audit.SeverityWarning
			warn.Outcome = audit.OutcomeFailure
			warn.Metadata = map[string]any{"step": step}
			events = append(events, warn)
		}
	}
	return events
}

func onboardingNotifications(ec saga.ExecutionContext, in OnboardingInput, results workflow.Results) []*notify.Payload {
	t, ok := workflow.As[*Tenant](results, StepCreateTenantRecord)
	if !ok {
		return nil
	}

	var payloads []*notify.Payload
	if t.Email != "" {
		payloads = append(payloads, &notify.Payload{
			Channel:   notify.ChannelEmail,
			Recipient: t.Email,
			Subject:   "Welcome!",
			Body:      fmt.Sprintf("Hi %s, your onboarding is complete.", t.Name),
			Metadata:  map[string]any{"tenant_id": t.ID.String()},
		})
	}
	payloads = append(payloads, &notify.Payload{
		Channel:   notify.ChannelChat,
		Recipient: ec.ScopeID,
		Subject:   "Tenant onboarded",
		Body:      fmt.Sprintf("%s moved into room %s", t.Name, in.RoomID),
		Metadata:  map[string]any{"tenant_id": t.ID.String()},
	})
	return payloads
}
