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

// WorkflowRefund is the registry name of the refund-issuance workflow.
const WorkflowRefund = "refund-issuance"

// Refund step names.
const (
	StepValidateRefund      = "validate_refund"
	StepCreateRefundRecord  = "create_refund_record"
	StepRecordLedgerEntry   = "record_ledger_entry"
)

// RefundInput is the request to refund part of a paid bill.
type RefundInput struct {
	BillID id.ID  `json:"bill_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason,omitempty"`
}

// RefundOutput is the projection of a completed refund.
type RefundOutput struct {
	Refund *Refund `json:"refund"`
}

// RefundIssuance builds the refund-issuance workflow. The ledger entry is
// optional bookkeeping; the refund record is the source of truth and is
// deleted on a later failure (none today, but the rollback keeps the
// definition honest if a step is added after it).
func RefundIssuance(store Store) *workflow.Definition[RefundInput, RefundOutput] {
	return &workflow.Definition[RefundInput, RefundOutput]{
		Name: WorkflowRefund,
		Steps: []workflow.Step[RefundInput]{
			{
				Name: StepValidateRefund,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in RefundInput, _ workflow.Results) saga.Result[any] {
					bill, err := store.GetBill(ctx, ec.ScopeID, in.BillID)
					if err != nil {
						return fail(err)
					}
					if bill.State != BillPaid {
						return saga.Errf[any](saga.KindValidationFailed, "bill %s is not paid", bill.ID)
					}
					if in.Amount <= 0 || in.Amount > bill.Amount {
						return saga.Errf[any](saga.KindValidationFailed,
							"refund amount %d out of range for bill of %d", in.Amount, bill.Amount)
					}
					return saga.Ok[any](bill)
				},
			},
			{
				Name: StepCreateRefundRecord,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in RefundInput, prior workflow.Results) saga.Result[any] {
					bill, ok := workflow.As[*Bill](prior, StepValidateRefund)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "bill unavailable")
					}
					r := &Refund{
						Entity:   saga.NewEntity(),
						ID:       id.NewRefundID(),
						ScopeID:  ec.ScopeID,
						BillID:   bill.ID,
						TenantID: bill.TenantID,
						Amount:   in.Amount,
						Reason:   in.Reason,
					}
					if err := store.CreateRefund(ctx, r); err != nil {
						return fail(err)
					}
					return saga.Ok[any](r)
				},
				Rollback: func(ctx context.Context, ec saga.ExecutionContext, _ RefundInput, produced any) error {
					r, ok := produced.(*Refund)
					if !ok {
						return fmt.Errorf("tenancy: unexpected rollback value %T", produced)
					}
					return store.DeleteRefund(ctx, ec.ScopeID, r.ID)
				},
			},
			{
				Name:     StepRecordLedgerEntry,
				Optional: true,
				Execute: func(ctx context.Context, ec saga.ExecutionContext, in RefundInput, prior workflow.Results) saga.Result[any] {
					r, ok := workflow.As[*Refund](prior, StepCreateRefundRecord)
					if !ok {
						return saga.Errf[any](saga.KindUnknown, "refund record unavailable")
					}
					entry := &LedgerEntry{
						Entity:    saga.NewEntity(),
						ID:        id.NewLedgerID(),
						ScopeID:   ec.ScopeID,
						TenantID:  r.TenantID,
						Amount:    r.Amount,
						Direction: "out",
						Memo:      fmt.Sprintf("refund %s against bill %s", r.ID, r.BillID),
						BookedAt:  time.Now().UTC(),
					}
					if err := store.RecordLedgerEntry(ctx, entry); err != nil {
						return fail(err)
					}
					return saga.Ok[any](entry)
				},
			},
		},
		AuditEvents: func(ec saga.ExecutionContext, in RefundInput, results workflow.Results) []*audit.Event {
			r, ok := workflow.As[*Refund](results, StepCreateRefundRecord)
			if !ok {
				return nil
			}
			ev := audit.New("refund.issued", "refund", r.ID.String()).WithActor(ec)
			ev.Category = "billing"
			ev.Metadata = map[string]any{"bill_id": in.BillID.String(), "amount": in.Amount}
			return []*audit.Event{ev}
		},
		Notifications: func(ec saga.ExecutionContext, _ RefundInput, results workflow.Results) []*notify.Payload {
			r, ok := workflow.As[*Refund](results, StepCreateRefundRecord)
			if !ok {
				return nil
			}
			return []*notify.Payload{{
				Channel:   notify.ChannelChat,
				Recipient: ec.ScopeID,
				Subject:   "Refund issued",
				Body:      fmt.Sprintf("Refund of %d issued against bill %s", r.Amount, r.BillID),
				Metadata:  map[string]any{"refund_id": r.ID.String()},
			}}
		},
		BuildOutput: func(results workflow.Results) RefundOutput {
			out := RefundOutput{}
			out.Refund, _ = workflow.As[*Refund](results, StepCreateRefundRecord)
			return out
		},
	}
}
