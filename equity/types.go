/*
Package equity provides the core tiered equity and profit-distribution engine.

PURPOSE:
  This package contains the domain types and calculations for converting
  money flows (investments, card purchases, asset contributions, referral
  commissions, KPI bonuses) into ownership shares and token units, capping
  payouts at per-holder ceilings, and supporting the quarterly
  profit-distribution batch.

KEY CONCEPTS IN THIS FILE (types.go):
  - Holder: A member, staff member, or branch holding shares and tokens
  - ContributionEvent: An immutable record of a money-generating flow
  - KpiPeriodRecord: One staff/branch performance record per quarter
  - ProfitSharingPeriod: One quarterly distribution batch
  - ProfitDistributionRecord: One payout line per holder per share class

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money, share and token math
  2. Derivation: Token amounts are always computed, never entered directly
  3. Immutability: Events and distribution records are append-only facts;
     corrections happen via reversals, never edits
  4. Type Safety: Strong typing for IDs prevents mixing holder/event IDs

SEE ALSO:
  - params.go: Injected business constants and unit conversion
  - tier.go: Tier table and classification
  - engine.go: Contribution calculator and approval transitions
  - store.go: Persistence interfaces
*/
package equity

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type HolderID string
type EventID string
type PeriodID string
type RecordID string

// =============================================================================
// HOLDER - A shareholding entity (member, staff, or branch)
// =============================================================================

type HolderType string

const (
	HolderMember HolderType = "member" // investor / customer
	HolderStaff  HolderType = "staff"  // equity earned through KPI
	HolderBranch HolderType = "branch" // franchise branch
)

// Holder owns its balances exclusively. Balances are mutated only through
// the contribution engine, the KPI engine, and the distribution processor.
// Holders are never deleted, only deactivated.
type Holder struct {
	ID   HolderID
	Name string
	Type HolderType

	// Current business tier, recomputed on every contribution.
	Tier TierName

	// Cumulative cash/asset principal. Anchors the maxout ceiling.
	BaseInvestment decimal.Decimal

	// Cumulative contribution amount across all kinds. Drives classification.
	CumulativeAmount decimal.Decimal

	// Shares split by origin: capital (cash/asset/card) vs labor (KPI slots).
	CapitalShares decimal.Decimal
	LaborShares   decimal.Decimal

	// Token balance (digital share units).
	TokenBalance decimal.Decimal

	// Total currency value distributed to this holder so far.
	// Compared against the tier ceiling by the maxout guard.
	CumulativeDistributed decimal.Decimal

	MaxoutReached bool
	Active        bool

	CreatedAt time.Time
}

// TotalShares returns capital + labor shares.
func (h Holder) TotalShares() decimal.Decimal {
	return h.CapitalShares.Add(h.LaborShares)
}

// =============================================================================
// CONTRIBUTION EVENT - Immutable record of a money-generating flow
// =============================================================================

type EventType string

const (
	EventDeposit            EventType = "deposit"
	EventInvestment         EventType = "investment"
	EventCardPurchase       EventType = "card_purchase"
	EventAssetContribution  EventType = "asset_contribution"
	EventWithdrawal         EventType = "withdrawal"
	EventKpiBonus           EventType = "kpi_bonus"
	EventReferralCommission EventType = "referral_commission"
	EventShareDistribution  EventType = "share_distribution"
)

type ContributionKind string

const (
	KindCash   ContributionKind = "cash"
	KindAsset  ContributionKind = "asset"
	KindEffort ContributionKind = "effort"
	KindCard   ContributionKind = "card"
)

type ApprovalStatus string

const (
	StatusPending   ApprovalStatus = "pending"
	StatusApproved  ApprovalStatus = "approved"
	StatusRejected  ApprovalStatus = "rejected"
	StatusCompleted ApprovalStatus = "completed"
)

// ContributionEvent is an append-only fact. Once approved it is never
// mutated; the only permitted change is the pending -> approved/rejected
// status transition driven by the external approval workflow.
type ContributionEvent struct {
	ID       EventID
	HolderID HolderID
	Type     EventType
	Kind     ContributionKind

	Amount decimal.Decimal

	// Derived quantities, recomputed consistently by the engine.
	// Never entered directly.
	Shares      decimal.Decimal
	TokenAmount decimal.Decimal

	// Tier in effect when the event was computed.
	Tier TierName

	Status ApprovalStatus

	IdempotencyKey string
	Reason         string
	CreatedAt      time.Time
}

// =============================================================================
// KPI PERIOD RECORD - One per (staff, quarter)
// =============================================================================

// KpiState tracks the per-quarter lifecycle:
// Uncomputed -> (Ineligible | Eligible) -> Processed
type KpiState string

const (
	KpiIneligible KpiState = "ineligible"
	KpiEligible   KpiState = "eligible"
	KpiProcessed  KpiState = "processed"
)

// KpiPeriodRecord holds raw metrics and derived results for one quarter.
// IsProcessed is set exactly once per quarter by the distribution processor
// and is the sole guard against double-processing.
type KpiPeriodRecord struct {
	StaffID     HolderID
	PeriodValue string // "YYYY-Qn"

	// Raw metrics as submitted.
	CardSales         decimal.Decimal
	CardSalesTarget   decimal.Decimal
	RetainedCustomers decimal.Decimal
	TotalCustomers    decimal.Decimal
	Revenue           decimal.Decimal
	RevenueTarget     decimal.Decimal
	TotalPoints       decimal.Decimal

	// Derived results.
	Score         decimal.Decimal
	Eligible      bool
	Slots         int64
	SharesAwarded decimal.Decimal
	TokenEarned   decimal.Decimal

	State       KpiState
	IsProcessed bool

	ComputedAt time.Time
}

// =============================================================================
// PROFIT SHARING PERIOD - One quarterly batch
// =============================================================================

type PeriodStatus string

const (
	PeriodPending   PeriodStatus = "pending"
	PeriodCompleted PeriodStatus = "completed"
	PeriodCancelled PeriodStatus = "cancelled"
)

// ProfitSharingPeriod is the header row for a quarterly distribution batch.
// At most one non-cancelled record may exist per period value; the storage
// layer enforces this with a uniqueness constraint.
type ProfitSharingPeriod struct {
	ID          PeriodID
	Period      string // always "quarter"
	PeriodValue string // "YYYY-Qn"

	TotalRevenue  decimal.Decimal
	TotalExpenses decimal.Decimal
	NetProfit     decimal.Decimal

	// Pool = NetProfit * PoolRate when profit is positive, else zero.
	Pool decimal.Decimal

	// Nominal sub-pool earmarks (CapitalPoolRate / LaborPoolRate of net).
	CapitalPool decimal.Decimal
	LaborPool   decimal.Decimal

	TotalShares    decimal.Decimal
	ProfitPerShare decimal.Decimal

	Status      PeriodStatus
	ProcessedAt time.Time
}

// =============================================================================
// PROFIT DISTRIBUTION RECORD - One payout line per holder per share class
// =============================================================================

type DistributionType string

const (
	DistributionCapital DistributionType = "capital"
	DistributionLabor   DistributionType = "labor"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// ProfitDistributionRecord is created only by the distribution processor
// and is read-only thereafter except for the payment status transition.
type ProfitDistributionRecord struct {
	ID       RecordID
	PeriodID PeriodID
	HolderID HolderID

	DistributionType DistributionType

	// Shares owned at computation time.
	Shares decimal.Decimal

	// Currency amount after maxout clamping, and its token equivalent.
	Amount      decimal.Decimal
	TokenAmount decimal.Decimal

	// True when the maxout guard reduced (possibly to zero) the raw amount.
	Clamped bool

	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}

// =============================================================================
// LEDGER AGGREGATES - Supplied by the revenue/expense collaborator
// =============================================================================

// Aggregates is the quarter-scoped revenue/expense summary used to compute
// net profit.
type Aggregates struct {
	Revenue  decimal.Decimal
	Expenses decimal.Decimal
}

// NetProfit returns revenue minus expenses. May be negative.
func (a Aggregates) NetProfit() decimal.Decimal {
	return a.Revenue.Sub(a.Expenses)
}
