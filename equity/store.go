/*
store.go - Persistence interfaces for holders, events, KPI and distributions

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations back it with SQLite (production) or memory (tests).

KEY INTERFACES:
  EventStore:   Append-only contribution event log with idempotency keys.
                The only permitted mutation is the pending ->
                approved/rejected status transition.
  HolderStore:  Holder records and balances.
  KpiStore:     Per-(staff, quarter) KPI records.
  PeriodStore:  Profit sharing periods and distribution records.
                CreatePeriod MUST enforce at most one non-cancelled row
                per period value at the storage level and surface a
                violation as ErrAlreadyProcessed - admin triggers can
                race across requests, so an in-process check is not
                enough.
  RevenueSource: Quarter-scoped revenue/expense aggregates from the
                external ledger collaborator.
  TxStore:      Atomic multi-write transactions. The distribution batch
                commits all records for a quarter together or none.

AUDIT:
  Every mutation of interest (tier change, maxout reached, distribution
  committed) emits an audit entry. Emission is fire-and-forget: audit
  failures never fail the business operation.
*/
package equity

import (
	"context"
	"time"
)

// =============================================================================
// STORES
// =============================================================================

// EventStore persists contribution events. Append-only: no deletes, and
// the only update is the approval status transition.
type EventStore interface {
	// AppendEvent persists an event. Fails with ErrDuplicateIdempotencyKey
	// if the idempotency key already exists.
	AppendEvent(ctx context.Context, ev ContributionEvent) error

	// Event returns a single event, or ErrEventNotFound.
	Event(ctx context.Context, id EventID) (ContributionEvent, error)

	// EventsByHolder returns a holder's events, oldest first.
	EventsByHolder(ctx context.Context, holderID HolderID) ([]ContributionEvent, error)

	// SetEventStatus applies the pending -> approved/rejected/completed
	// transition. Any other transition fails with ErrEventNotPending.
	SetEventStatus(ctx context.Context, id EventID, status ApprovalStatus) error
}

// HolderStore persists holders and their balances.
type HolderStore interface {
	// SaveHolder inserts or updates a holder.
	SaveHolder(ctx context.Context, h Holder) error

	// Holder returns a holder, or ErrHolderNotFound.
	Holder(ctx context.Context, id HolderID) (Holder, error)

	// ListHolders returns all holders.
	ListHolders(ctx context.Context) ([]Holder, error)

	// Shareholders returns active holders with a positive share balance.
	Shareholders(ctx context.Context) ([]Holder, error)
}

// KpiStore persists per-quarter KPI records.
type KpiStore interface {
	// SaveKpiRecord inserts or replaces the record for (staff, quarter).
	SaveKpiRecord(ctx context.Context, rec KpiPeriodRecord) error

	// KpiRecord returns the record for (staff, quarter), or
	// ErrKpiRecordNotFound.
	KpiRecord(ctx context.Context, staffID HolderID, periodValue string) (KpiPeriodRecord, error)

	// KpiRecordsForQuarter returns all records for a quarter.
	KpiRecordsForQuarter(ctx context.Context, periodValue string) ([]KpiPeriodRecord, error)

	// MarkKpiProcessed flips IsProcessed on every record for the quarter.
	MarkKpiProcessed(ctx context.Context, periodValue string) error
}

// PeriodStore persists profit sharing periods and distribution records.
type PeriodStore interface {
	// CreatePeriod inserts a period. The storage layer enforces at most
	// one non-cancelled row per period value; a violation surfaces as
	// ErrAlreadyProcessed.
	CreatePeriod(ctx context.Context, p ProfitSharingPeriod) error

	// ActivePeriod returns the non-cancelled period for a value, if any.
	ActivePeriod(ctx context.Context, periodValue string) (ProfitSharingPeriod, bool, error)

	// UpdatePeriod replaces a period row (status and computed figures).
	UpdatePeriod(ctx context.Context, p ProfitSharingPeriod) error

	// ListPeriods returns all periods, newest first.
	ListPeriods(ctx context.Context) ([]ProfitSharingPeriod, error)

	// AppendDistributionRecords persists a batch of payout lines.
	AppendDistributionRecords(ctx context.Context, recs []ProfitDistributionRecord) error

	// DistributionRecords returns the payout lines of a period.
	DistributionRecords(ctx context.Context, periodID PeriodID) ([]ProfitDistributionRecord, error)

	// SetPaymentStatus transitions a record's payment status. The only
	// mutation allowed on a distribution record.
	SetPaymentStatus(ctx context.Context, id RecordID, status PaymentStatus) error
}

// RevenueSource supplies quarter-scoped revenue/expense aggregates.
// In production this is the external ledger; the SQLite store implements
// it over recorded ledger entries.
type RevenueSource interface {
	RevenueExpenses(ctx context.Context, from, to time.Time) (Aggregates, error)
}

// Store bundles every persistence capability the engine needs.
type Store interface {
	EventStore
	HolderStore
	KpiStore
	PeriodStore
	RevenueSource
}

// TxStore wraps Store with transaction support. If fn returns an error
// the transaction is rolled back, otherwise committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT SINK
// =============================================================================

type AuditAction string

const (
	AuditContributionRecorded  AuditAction = "contribution_recorded"
	AuditEventApproved         AuditAction = "event_approved"
	AuditEventRejected         AuditAction = "event_rejected"
	AuditTierChanged           AuditAction = "tier_changed"
	AuditMaxoutReached         AuditAction = "maxout_reached"
	AuditKpiScored             AuditAction = "kpi_scored"
	AuditDistributionCommitted AuditAction = "distribution_committed"
	AuditPeriodCancelled       AuditAction = "period_cancelled"
)

// AuditEntry records who/what/when for a mutation.
type AuditEntry struct {
	ID        string
	At        time.Time
	Action    AuditAction
	HolderID  HolderID
	PeriodRef string
	Detail    map[string]string
}

// AuditLog stores audit entries. Append-only, fire-and-forget from the
// engine's perspective.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// NopAuditLog discards entries. Used when no sink is configured.
type NopAuditLog struct{}

func (NopAuditLog) Record(context.Context, AuditEntry) error { return nil }
