package saga_test

import (
	"errors"
	"fmt"
	"testing"

	saga "github.com/cybinfo/pg-manager-sub005"
)

func TestErrorFormatting(t *testing.T) {
	err := saga.Errorf(saga.KindCapacityExceeded, "room %s is full", "101")
	if got, want := err.Error(), "capacity_exceeded: room 101 is full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWithDetailDoesNotMutate(t *testing.T) {
	base := saga.NewError(saga.KindConflict, "duplicate")
	derived := base.WithDetail(saga.DetailStep, "create_tenant_record")

	if _, ok := base.Detail(saga.DetailStep); ok {
		t.Error("WithDetail mutated the receiver")
	}
	if step, ok := derived.Detail(saga.DetailStep); !ok || step != "create_tenant_record" {
		t.Errorf("derived detail = (%v, %v)", step, ok)
	}

	// Chaining keeps earlier details.
	more := derived.WithDetail("attempt", 2)
	if _, ok := more.Detail(saga.DetailStep); !ok {
		t.Error("chained WithDetail dropped earlier detail")
	}
}

func TestAsError(t *testing.T) {
	if saga.AsError(nil) != nil {
		t.Error("AsError(nil) != nil")
	}

	structured := saga.NewError(saga.KindNotFound, "missing")
	if got := saga.AsError(structured); got != structured {
		t.Errorf("AsError did not return the original *Error")
	}

	wrapped := fmt.Errorf("store: %w", structured)
	if got := saga.AsError(wrapped); got.Kind != saga.KindNotFound {
		t.Errorf("wrapped kind = %q, want %q", got.Kind, saga.KindNotFound)
	}

	plain := errors.New("disk gone")
	got := saga.AsError(plain)
	if got.Kind != saga.KindUnknown || got.Message != "disk gone" {
		t.Errorf("plain coercion = %+v", got)
	}

	if kind := saga.KindOf(plain); kind != saga.KindUnknown {
		t.Errorf("KindOf(plain) = %q, want unknown", kind)
	}
}

func TestResultTag(t *testing.T) {
	ok := saga.Ok(42)
	if !ok.IsOk() || ok.Value() != 42 || ok.Err() != nil {
		t.Errorf("Ok result = %+v", ok)
	}

	failed := saga.Errf[int](saga.KindValidationFailed, "bad")
	if failed.IsOk() || failed.Err().Kind != saga.KindValidationFailed {
		t.Errorf("Err result = %+v", failed)
	}
	if v, err := failed.Unpack(); v != 0 || err == nil {
		t.Errorf("Unpack = (%v, %v)", v, err)
	}

	// A nil error can never produce an untagged failure.
	sneaky := saga.Err[string](nil)
	if sneaky.IsOk() {
		t.Error("Err(nil) reported success")
	}
	if sneaky.Err().Kind != saga.KindUnknown {
		t.Errorf("normalized kind = %q, want unknown", sneaky.Err().Kind)
	}
}

func TestExecutionContextImmutability(t *testing.T) {
	ec := saga.NewExecutionContext("staff-7", saga.ActorStaff, "scope-9")
	if ec.IdempotencyKey != "" {
		t.Errorf("fresh context key = %q, want empty", ec.IdempotencyKey)
	}

	keyed := ec.WithIdempotencyKey("op-1")
	if keyed.IdempotencyKey != "op-1" {
		t.Errorf("keyed = %q, want op-1", keyed.IdempotencyKey)
	}
	if ec.IdempotencyKey != "" {
		t.Error("WithIdempotencyKey mutated the original context")
	}
	if keyed.ActorID != "staff-7" || keyed.ActorKind != saga.ActorStaff || keyed.ScopeID != "scope-9" {
		t.Errorf("keyed lost fields: %+v", keyed)
	}
}
