// Package id defines TypeID-based identity types for all saga entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all entity types.
const (
	PrefixExecution  Prefix = "exec"
	PrefixAuditEvent Prefix = "aud"
	PrefixTenant     Prefix = "tnt"
	PrefixRoom       Prefix = "room"
	PrefixBed        Prefix = "bed"
	PrefixStay       Prefix = "stay"
	PrefixTransfer   Prefix = "xfer"
	PrefixBill       Prefix = "bill"
	PrefixRefund     Prefix = "rfnd"
	PrefixDocument   Prefix = "doc"
	PrefixLedger     Prefix = "ldgr"
)

// ID is the primary identifier type for all saga entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "exec_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Per-entity constructors
// ──────────────────────────────────────────────────

// NewExecutionID generates a new execution ID (prefix: "exec").
func NewExecutionID() ID { return New(PrefixExecution) }

// NewAuditEventID generates a new audit event ID (prefix: "aud").
func NewAuditEventID() ID { return New(PrefixAuditEvent) }

// NewTenantID generates a new tenant ID (prefix: "tnt").
func NewTenantID() ID { return New(PrefixTenant) }

// NewRoomID generates a new room ID (prefix: "room").
func NewRoomID() ID { return New(PrefixRoom) }

// NewBedID generates a new bed ID (prefix: "bed").
func NewBedID() ID { return New(PrefixBed) }

// NewStayID generates a new stay ID (prefix: "stay").
func NewStayID() ID { return New(PrefixStay) }

// NewTransferID generates a new transfer ID (prefix: "xfer").
func NewTransferID() ID { return New(PrefixTransfer) }

// NewBillID generates a new bill ID (prefix: "bill").
func NewBillID() ID { return New(PrefixBill) }

// NewRefundID generates a new refund ID (prefix: "rfnd").
func NewRefundID() ID { return New(PrefixRefund) }

// NewDocumentID generates a new document ID (prefix: "doc").
func NewDocumentID() ID { return New(PrefixDocument) }

// NewLedgerID generates a new ledger entry ID (prefix: "ldgr").
func NewLedgerID() ID { return New(PrefixLedger) }

// ParseExecutionID parses a string expecting the "exec" prefix.
func ParseExecutionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixExecution) }

// ParseTenantID parses a string expecting the "tnt" prefix.
func ParseTenantID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTenant) }

// ParseRoomID parses a string expecting the "room" prefix.
func ParseRoomID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRoom) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// Value implements driver.Valuer for database storage.
// Returns nil for the Nil ID so that optional foreign key columns store NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}

	return i.inner.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (i *ID) Scan(src any) error {
	if src == nil {
		*i = Nil

		return nil
	}

	switch v := src.(type) {
	case string:
		if v == "" {
			*i = Nil

			return nil
		}

		return i.UnmarshalText([]byte(v))
	case []byte:
		if len(v) == 0 {
			*i = Nil

			return nil
		}

		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
