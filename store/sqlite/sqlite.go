/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (equity.Store, equity.TxStore,
  equity.AuditLog) using SQLite. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  equity.EventStore:  Append-only contribution event log
  equity.HolderStore: Holder records and balances
  equity.KpiStore:    Per-(staff, quarter) KPI records
  equity.PeriodStore: Profit sharing periods and distribution records
  equity.RevenueSource: Quarter aggregates over the ledger table
  equity.TxStore:     Atomic multi-write batches
  equity.AuditLog:    Append-only audit trail

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements on events or distribution_records
  - events: the only UPDATE is the approval status transition
  - distribution_records: the only UPDATE is the payment status transition

KEY CONSTRAINTS:
  idx_events_idempotency: Rejects duplicate idempotency keys.
  idx_periods_active:     At most one non-cancelled period per period
                          value. This partial unique index is what makes
                          quarterly processing race-safe: concurrent
                          processors collide on the INSERT, and the loser
                          surfaces equity.ErrAlreadyProcessed.

DECIMAL STORAGE:
  All money/share/token columns are TEXT holding decimal.Decimal strings.
  Aggregation happens in Go; SQLite float arithmetic never touches money.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/equity.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := equity.NewEngine(params, tiers, store, store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - equity/store.go: Interface definitions
  - equity/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper
// works inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ equity.TxStore = (*Store)(nil)
var _ equity.AuditLog = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Holders (members, staff, branches)
	CREATE TABLE IF NOT EXISTS holders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		tier TEXT NOT NULL,
		base_investment TEXT NOT NULL,
		cumulative_amount TEXT NOT NULL,
		capital_shares TEXT NOT NULL,
		labor_shares TEXT NOT NULL,
		token_balance TEXT NOT NULL,
		cumulative_distributed TEXT NOT NULL,
		maxout_reached INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holders_type ON holders(type);

	-- Contribution events (append-only)
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		type TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		shares TEXT NOT NULL,
		token_amount TEXT NOT NULL,
		tier TEXT NOT NULL,
		status TEXT NOT NULL,
		idempotency_key TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_holder
		ON events(holder_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_idempotency
		ON events(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- KPI records, one per (staff, quarter)
	CREATE TABLE IF NOT EXISTS kpi_records (
		staff_id TEXT NOT NULL,
		period_value TEXT NOT NULL,
		card_sales TEXT NOT NULL,
		card_sales_target TEXT NOT NULL,
		retained_customers TEXT NOT NULL,
		total_customers TEXT NOT NULL,
		revenue TEXT NOT NULL,
		revenue_target TEXT NOT NULL,
		total_points TEXT NOT NULL,
		score TEXT NOT NULL,
		eligible INTEGER NOT NULL,
		slots INTEGER NOT NULL,
		shares_awarded TEXT NOT NULL,
		token_earned TEXT NOT NULL,
		state TEXT NOT NULL,
		is_processed INTEGER NOT NULL DEFAULT 0,
		computed_at TEXT NOT NULL,
		PRIMARY KEY (staff_id, period_value)
	);

	CREATE INDEX IF NOT EXISTS idx_kpi_period ON kpi_records(period_value);

	-- Profit sharing periods
	CREATE TABLE IF NOT EXISTS profit_periods (
		id TEXT PRIMARY KEY,
		period TEXT NOT NULL,
		period_value TEXT NOT NULL,
		total_revenue TEXT NOT NULL,
		total_expenses TEXT NOT NULL,
		net_profit TEXT NOT NULL,
		pool TEXT NOT NULL,
		capital_pool TEXT NOT NULL,
		labor_pool TEXT NOT NULL,
		total_shares TEXT NOT NULL,
		profit_per_share TEXT NOT NULL,
		status TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	-- CRITICAL: at most one live distribution batch per quarter. The
	-- INSERT race on this index is the sole idempotency mechanism for
	-- quarterly processing; there is no check-then-act in Go code.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_periods_active
		ON profit_periods(period_value) WHERE status != 'cancelled';

	-- Distribution records (append-only payout lines)
	CREATE TABLE IF NOT EXISTS distribution_records (
		id TEXT PRIMARY KEY,
		period_id TEXT NOT NULL,
		holder_id TEXT NOT NULL,
		distribution_type TEXT NOT NULL,
		shares TEXT NOT NULL,
		amount TEXT NOT NULL,
		token_amount TEXT NOT NULL,
		clamped INTEGER NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_period
		ON distribution_records(period_id);
	CREATE INDEX IF NOT EXISTS idx_records_holder
		ON distribution_records(holder_id);

	-- Revenue/expense ledger entries backing quarter aggregates
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		entry_date TEXT NOT NULL,
		revenue TEXT NOT NULL,
		expenses TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger_entries(entry_date);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		action TEXT NOT NULL,
		holder_id TEXT,
		period_ref TEXT,
		detail_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (equity.EventStore interface)
// =============================================================================

// AppendEvent adds a contribution event to the log.
func (s *Store) AppendEvent(ctx context.Context, ev equity.ContributionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db dbtx, ev equity.ContributionEvent) error {
	query := `
		INSERT INTO events
		(id, holder_id, type, kind, amount, shares, token_amount, tier,
		 status, idempotency_key, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(ev.ID),
		string(ev.HolderID),
		string(ev.Type),
		string(ev.Kind),
		ev.Amount.String(),
		ev.Shares.String(),
		ev.TokenAmount.String(),
		string(ev.Tier),
		string(ev.Status),
		nullString(ev.IdempotencyKey),
		ev.Reason,
		ev.CreatedAt.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return equity.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

const eventColumns = `id, holder_id, type, kind, amount, shares, token_amount,
	tier, status, idempotency_key, reason, created_at`

// Event returns a single event by ID.
func (s *Store) Event(ctx context.Context, id equity.EventID) (equity.ContributionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getEvent(ctx, s.db, id)
}

func getEvent(ctx context.Context, db dbtx, id equity.EventID) (equity.ContributionEvent, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = ?", string(id))

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return equity.ContributionEvent{}, equity.ErrEventNotFound
	}
	return ev, err
}

// EventsByHolder returns a holder's events, oldest first.
func (s *Store) EventsByHolder(ctx context.Context, holderID equity.HolderID) ([]equity.ContributionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return eventsByHolder(ctx, s.db, holderID)
}

func eventsByHolder(ctx context.Context, db dbtx, holderID equity.HolderID) ([]equity.ContributionEvent, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE holder_id = ? ORDER BY created_at ASC",
		string(holderID))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []equity.ContributionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SetEventStatus applies the pending -> approved/rejected/completed
// transition.
func (s *Store) SetEventStatus(ctx context.Context, id equity.EventID, status equity.ApprovalStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return setEventStatus(ctx, s.db, id, status)
}

func setEventStatus(ctx context.Context, db dbtx, id equity.EventID, status equity.ApprovalStatus) error {
	res, err := db.ExecContext(ctx,
		"UPDATE events SET status = ? WHERE id = ? AND status = ?",
		string(status), string(id), string(equity.StatusPending))
	if err != nil {
		return fmt.Errorf("failed to update event status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := getEvent(ctx, db, id); err != nil {
			return err
		}
		return equity.ErrEventNotPending
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (equity.ContributionEvent, error) {
	var (
		ev             equity.ContributionEvent
		amount         string
		shares         string
		tokenAmount    string
		idempotencyKey sql.NullString
		reason         sql.NullString
		createdAt      string
	)

	err := row.Scan(
		&ev.ID, &ev.HolderID, &ev.Type, &ev.Kind,
		&amount, &shares, &tokenAmount, &ev.Tier, &ev.Status,
		&idempotencyKey, &reason, &createdAt,
	)
	if err != nil {
		return ev, err
	}

	if ev.Amount, err = decimal.NewFromString(amount); err != nil {
		return ev, fmt.Errorf("failed to parse event amount: %w", err)
	}
	if ev.Shares, err = decimal.NewFromString(shares); err != nil {
		return ev, fmt.Errorf("failed to parse event shares: %w", err)
	}
	if ev.TokenAmount, err = decimal.NewFromString(tokenAmount); err != nil {
		return ev, fmt.Errorf("failed to parse event token amount: %w", err)
	}
	ev.IdempotencyKey = idempotencyKey.String
	ev.Reason = reason.String
	ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return ev, nil
}

// =============================================================================
// HOLDER STORE (equity.HolderStore interface)
// =============================================================================

// SaveHolder inserts or updates a holder.
func (s *Store) SaveHolder(ctx context.Context, h equity.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveHolder(ctx, s.db, h)
}

func saveHolder(ctx context.Context, db dbtx, h equity.Holder) error {
	query := `
		INSERT INTO holders
		(id, name, type, tier, base_investment, cumulative_amount,
		 capital_shares, labor_shares, token_balance, cumulative_distributed,
		 maxout_reached, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			tier = excluded.tier,
			base_investment = excluded.base_investment,
			cumulative_amount = excluded.cumulative_amount,
			capital_shares = excluded.capital_shares,
			labor_shares = excluded.labor_shares,
			token_balance = excluded.token_balance,
			cumulative_distributed = excluded.cumulative_distributed,
			maxout_reached = excluded.maxout_reached,
			active = excluded.active
	`

	_, err := db.ExecContext(ctx, query,
		string(h.ID), h.Name, string(h.Type), string(h.Tier),
		h.BaseInvestment.String(),
		h.CumulativeAmount.String(),
		h.CapitalShares.String(),
		h.LaborShares.String(),
		h.TokenBalance.String(),
		h.CumulativeDistributed.String(),
		h.MaxoutReached, h.Active,
		h.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save holder: %w", err)
	}
	return nil
}

const holderColumns = `id, name, type, tier, base_investment, cumulative_amount,
	capital_shares, labor_shares, token_balance, cumulative_distributed,
	maxout_reached, active, created_at`

// Holder returns a holder by ID.
func (s *Store) Holder(ctx context.Context, id equity.HolderID) (equity.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getHolder(ctx, s.db, id)
}

func getHolder(ctx context.Context, db dbtx, id equity.HolderID) (equity.Holder, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+holderColumns+" FROM holders WHERE id = ?", string(id))

	h, err := scanHolder(row)
	if err == sql.ErrNoRows {
		return equity.Holder{}, equity.ErrHolderNotFound
	}
	return h, err
}

// ListHolders returns all holders.
func (s *Store) ListHolders(ctx context.Context) ([]equity.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryHolders(ctx, s.db,
		"SELECT "+holderColumns+" FROM holders ORDER BY created_at ASC")
}

// Shareholders returns active holders with a positive share balance.
// Filtering happens in Go because share columns are decimal strings.
func (s *Store) Shareholders(ctx context.Context) ([]equity.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return shareholders(ctx, s.db)
}

func shareholders(ctx context.Context, db dbtx) ([]equity.Holder, error) {
	all, err := queryHolders(ctx, db,
		"SELECT "+holderColumns+" FROM holders WHERE active = 1 ORDER BY created_at ASC")
	if err != nil {
		return nil, err
	}

	var out []equity.Holder
	for _, h := range all {
		if h.TotalShares().IsPositive() {
			out = append(out, h)
		}
	}
	return out, nil
}

func queryHolders(ctx context.Context, db dbtx, query string, args ...any) ([]equity.Holder, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query holders: %w", err)
	}
	defer rows.Close()

	var holders []equity.Holder
	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, err
		}
		holders = append(holders, h)
	}
	return holders, rows.Err()
}

func scanHolder(row rowScanner) (equity.Holder, error) {
	var (
		h         equity.Holder
		decimals  [6]string
		createdAt string
	)

	err := row.Scan(
		&h.ID, &h.Name, &h.Type, &h.Tier,
		&decimals[0], &decimals[1], &decimals[2], &decimals[3], &decimals[4], &decimals[5],
		&h.MaxoutReached, &h.Active, &createdAt,
	)
	if err != nil {
		return h, err
	}

	dsts := []*decimal.Decimal{
		&h.BaseInvestment, &h.CumulativeAmount, &h.CapitalShares,
		&h.LaborShares, &h.TokenBalance, &h.CumulativeDistributed,
	}
	for i, dst := range dsts {
		if *dst, err = decimal.NewFromString(decimals[i]); err != nil {
			return h, fmt.Errorf("failed to parse holder decimal: %w", err)
		}
	}
	h.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return h, nil
}

// =============================================================================
// KPI STORE (equity.KpiStore interface)
// =============================================================================

// SaveKpiRecord inserts or replaces the record for (staff, quarter).
func (s *Store) SaveKpiRecord(ctx context.Context, rec equity.KpiPeriodRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveKpiRecord(ctx, s.db, rec)
}

func saveKpiRecord(ctx context.Context, db dbtx, rec equity.KpiPeriodRecord) error {
	query := `
		INSERT OR REPLACE INTO kpi_records
		(staff_id, period_value, card_sales, card_sales_target,
		 retained_customers, total_customers, revenue, revenue_target,
		 total_points, score, eligible, slots, shares_awarded, token_earned,
		 state, is_processed, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(rec.StaffID), rec.PeriodValue,
		rec.CardSales.String(), rec.CardSalesTarget.String(),
		rec.RetainedCustomers.String(), rec.TotalCustomers.String(),
		rec.Revenue.String(), rec.RevenueTarget.String(),
		rec.TotalPoints.String(), rec.Score.String(),
		rec.Eligible, rec.Slots,
		rec.SharesAwarded.String(), rec.TokenEarned.String(),
		string(rec.State), rec.IsProcessed,
		rec.ComputedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save kpi record: %w", err)
	}
	return nil
}

const kpiColumns = `staff_id, period_value, card_sales, card_sales_target,
	retained_customers, total_customers, revenue, revenue_target,
	total_points, score, eligible, slots, shares_awarded, token_earned,
	state, is_processed, computed_at`

// KpiRecord returns the record for (staff, quarter).
func (s *Store) KpiRecord(ctx context.Context, staffID equity.HolderID, periodValue string) (equity.KpiPeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getKpiRecord(ctx, s.db, staffID, periodValue)
}

func getKpiRecord(ctx context.Context, db dbtx, staffID equity.HolderID, periodValue string) (equity.KpiPeriodRecord, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+kpiColumns+" FROM kpi_records WHERE staff_id = ? AND period_value = ?",
		string(staffID), periodValue)

	rec, err := scanKpiRecord(row)
	if err == sql.ErrNoRows {
		return equity.KpiPeriodRecord{}, equity.ErrKpiRecordNotFound
	}
	return rec, err
}

// KpiRecordsForQuarter returns all records for a quarter.
func (s *Store) KpiRecordsForQuarter(ctx context.Context, periodValue string) ([]equity.KpiPeriodRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return kpiRecordsForQuarter(ctx, s.db, periodValue)
}

func kpiRecordsForQuarter(ctx context.Context, db dbtx, periodValue string) ([]equity.KpiPeriodRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+kpiColumns+" FROM kpi_records WHERE period_value = ? ORDER BY staff_id",
		periodValue)
	if err != nil {
		return nil, fmt.Errorf("failed to query kpi records: %w", err)
	}
	defer rows.Close()

	var recs []equity.KpiPeriodRecord
	for rows.Next() {
		rec, err := scanKpiRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// MarkKpiProcessed flips IsProcessed on every record for the quarter.
func (s *Store) MarkKpiProcessed(ctx context.Context, periodValue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return markKpiProcessed(ctx, s.db, periodValue)
}

func markKpiProcessed(ctx context.Context, db dbtx, periodValue string) error {
	_, err := db.ExecContext(ctx,
		"UPDATE kpi_records SET is_processed = 1, state = ? WHERE period_value = ? AND eligible = 1",
		string(equity.KpiProcessed), periodValue)
	if err != nil {
		return fmt.Errorf("failed to mark kpi records processed: %w", err)
	}
	return nil
}

func scanKpiRecord(row rowScanner) (equity.KpiPeriodRecord, error) {
	var (
		rec        equity.KpiPeriodRecord
		decimals   [10]string
		computedAt string
	)

	err := row.Scan(
		&rec.StaffID, &rec.PeriodValue,
		&decimals[0], &decimals[1], &decimals[2], &decimals[3],
		&decimals[4], &decimals[5], &decimals[6], &decimals[7],
		&rec.Eligible, &rec.Slots,
		&decimals[8], &decimals[9],
		&rec.State, &rec.IsProcessed, &computedAt,
	)
	if err != nil {
		return rec, err
	}

	dsts := []*decimal.Decimal{
		&rec.CardSales, &rec.CardSalesTarget, &rec.RetainedCustomers,
		&rec.TotalCustomers, &rec.Revenue, &rec.RevenueTarget,
		&rec.TotalPoints, &rec.Score, &rec.SharesAwarded, &rec.TokenEarned,
	}
	for i, dst := range dsts {
		if *dst, err = decimal.NewFromString(decimals[i]); err != nil {
			return rec, fmt.Errorf("failed to parse kpi decimal: %w", err)
		}
	}
	rec.ComputedAt, _ = time.Parse(time.RFC3339Nano, computedAt)

	return rec, nil
}

// =============================================================================
// PERIOD STORE (equity.PeriodStore interface)
// =============================================================================

// CreatePeriod inserts a period header row. The partial unique index on
// (period_value) WHERE status != 'cancelled' arbitrates concurrent runs.
func (s *Store) CreatePeriod(ctx context.Context, p equity.ProfitSharingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return createPeriod(ctx, s.db, p)
}

func createPeriod(ctx context.Context, db dbtx, p equity.ProfitSharingPeriod) error {
	query := `
		INSERT INTO profit_periods
		(id, period, period_value, total_revenue, total_expenses, net_profit,
		 pool, capital_pool, labor_pool, total_shares, profit_per_share,
		 status, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query, periodArgs(p)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return equity.ErrAlreadyProcessed
		}
		return fmt.Errorf("failed to create period: %w", err)
	}
	return nil
}

// UpdatePeriod replaces a period row.
func (s *Store) UpdatePeriod(ctx context.Context, p equity.ProfitSharingPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updatePeriod(ctx, s.db, p)
}

func updatePeriod(ctx context.Context, db dbtx, p equity.ProfitSharingPeriod) error {
	query := `
		UPDATE profit_periods SET
			period = ?, period_value = ?, total_revenue = ?, total_expenses = ?,
			net_profit = ?, pool = ?, capital_pool = ?, labor_pool = ?,
			total_shares = ?, profit_per_share = ?, status = ?, processed_at = ?
		WHERE id = ?
	`

	args := periodArgs(p)
	args = append(args[1:], args[0]) // id moves to the WHERE clause

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return equity.ErrPeriodNotFound
	}
	return nil
}

func periodArgs(p equity.ProfitSharingPeriod) []any {
	return []any{
		string(p.ID), p.Period, p.PeriodValue,
		p.TotalRevenue.String(), p.TotalExpenses.String(), p.NetProfit.String(),
		p.Pool.String(), p.CapitalPool.String(), p.LaborPool.String(),
		p.TotalShares.String(), p.ProfitPerShare.String(),
		string(p.Status), p.ProcessedAt.UTC().Format(time.RFC3339Nano),
	}
}

const periodColumns = `id, period, period_value, total_revenue, total_expenses,
	net_profit, pool, capital_pool, labor_pool, total_shares,
	profit_per_share, status, processed_at`

// ActivePeriod returns the non-cancelled period for a value, if any.
func (s *Store) ActivePeriod(ctx context.Context, periodValue string) (equity.ProfitSharingPeriod, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return activePeriod(ctx, s.db, periodValue)
}

func activePeriod(ctx context.Context, db dbtx, periodValue string) (equity.ProfitSharingPeriod, bool, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+periodColumns+" FROM profit_periods WHERE period_value = ? AND status != ?",
		periodValue, string(equity.PeriodCancelled))

	p, err := scanPeriod(row)
	if err == sql.ErrNoRows {
		return equity.ProfitSharingPeriod{}, false, nil
	}
	if err != nil {
		return equity.ProfitSharingPeriod{}, false, err
	}
	return p, true, nil
}

// ListPeriods returns all periods, newest first.
func (s *Store) ListPeriods(ctx context.Context) ([]equity.ProfitSharingPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listPeriods(ctx, s.db)
}

func listPeriods(ctx context.Context, db dbtx) ([]equity.ProfitSharingPeriod, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+periodColumns+" FROM profit_periods ORDER BY period_value DESC, processed_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var periods []equity.ProfitSharingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func scanPeriod(row rowScanner) (equity.ProfitSharingPeriod, error) {
	var (
		p           equity.ProfitSharingPeriod
		decimals    [8]string
		processedAt string
	)

	err := row.Scan(
		&p.ID, &p.Period, &p.PeriodValue,
		&decimals[0], &decimals[1], &decimals[2], &decimals[3],
		&decimals[4], &decimals[5], &decimals[6], &decimals[7],
		&p.Status, &processedAt,
	)
	if err != nil {
		return p, err
	}

	dsts := []*decimal.Decimal{
		&p.TotalRevenue, &p.TotalExpenses, &p.NetProfit, &p.Pool,
		&p.CapitalPool, &p.LaborPool, &p.TotalShares, &p.ProfitPerShare,
	}
	for i, dst := range dsts {
		if *dst, err = decimal.NewFromString(decimals[i]); err != nil {
			return p, fmt.Errorf("failed to parse period decimal: %w", err)
		}
	}
	p.ProcessedAt, _ = time.Parse(time.RFC3339Nano, processedAt)

	return p, nil
}

// AppendDistributionRecords persists a batch of payout lines.
func (s *Store) AppendDistributionRecords(ctx context.Context, recs []equity.ProfitDistributionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendDistributionRecords(ctx, s.db, recs)
}

func appendDistributionRecords(ctx context.Context, db dbtx, recs []equity.ProfitDistributionRecord) error {
	query := `
		INSERT INTO distribution_records
		(id, period_id, holder_id, distribution_type, shares, amount,
		 token_amount, clamped, payment_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for _, rec := range recs {
		_, err := db.ExecContext(ctx, query,
			string(rec.ID), string(rec.PeriodID), string(rec.HolderID),
			string(rec.DistributionType),
			rec.Shares.String(), rec.Amount.String(), rec.TokenAmount.String(),
			rec.Clamped, string(rec.PaymentStatus),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("failed to append distribution record: %w", err)
		}
	}
	return nil
}

// DistributionRecords returns the payout lines of a period.
func (s *Store) DistributionRecords(ctx context.Context, periodID equity.PeriodID) ([]equity.ProfitDistributionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return distributionRecords(ctx, s.db, periodID)
}

func distributionRecords(ctx context.Context, db dbtx, periodID equity.PeriodID) ([]equity.ProfitDistributionRecord, error) {
	query := `
		SELECT id, period_id, holder_id, distribution_type, shares, amount,
		       token_amount, clamped, payment_status, created_at
		FROM distribution_records
		WHERE period_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, string(periodID))
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution records: %w", err)
	}
	defer rows.Close()

	var recs []equity.ProfitDistributionRecord
	for rows.Next() {
		var (
			rec       equity.ProfitDistributionRecord
			decimals  [3]string
			createdAt string
		)
		err := rows.Scan(
			&rec.ID, &rec.PeriodID, &rec.HolderID, &rec.DistributionType,
			&decimals[0], &decimals[1], &decimals[2],
			&rec.Clamped, &rec.PaymentStatus, &createdAt,
		)
		if err != nil {
			return nil, err
		}
		dsts := []*decimal.Decimal{&rec.Shares, &rec.Amount, &rec.TokenAmount}
		for i, dst := range dsts {
			if *dst, err = decimal.NewFromString(decimals[i]); err != nil {
				return nil, fmt.Errorf("failed to parse record decimal: %w", err)
			}
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SetPaymentStatus transitions a record's payment status.
func (s *Store) SetPaymentStatus(ctx context.Context, id equity.RecordID, status equity.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return setPaymentStatus(ctx, s.db, id, status)
}

func setPaymentStatus(ctx context.Context, db dbtx, id equity.RecordID, status equity.PaymentStatus) error {
	res, err := db.ExecContext(ctx,
		"UPDATE distribution_records SET payment_status = ? WHERE id = ?",
		string(status), string(id))
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return equity.ErrRecordNotFound
	}
	return nil
}

// =============================================================================
// REVENUE SOURCE (equity.RevenueSource interface)
// =============================================================================

// RecordLedgerEntry stores one revenue/expense ledger line. Not part of
// the equity interfaces; used by the ledger ingest endpoint and tests.
func (s *Store) RecordLedgerEntry(ctx context.Context, date time.Time, revenue, expenses decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ledger_entries (id, entry_date, revenue, expenses) VALUES (?, ?, ?, ?)",
		uuid.NewString(), date.UTC().Format(time.RFC3339),
		revenue.String(), expenses.String())
	if err != nil {
		return fmt.Errorf("failed to record ledger entry: %w", err)
	}
	return nil
}

// RevenueExpenses aggregates ledger entries over [from, to]. Sums are
// computed in Go to keep decimal precision.
func (s *Store) RevenueExpenses(ctx context.Context, from, to time.Time) (equity.Aggregates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return revenueExpenses(ctx, s.db, from, to)
}

func revenueExpenses(ctx context.Context, db dbtx, from, to time.Time) (equity.Aggregates, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT revenue, expenses FROM ledger_entries WHERE entry_date >= ? AND entry_date <= ?",
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return equity.Aggregates{}, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	agg := equity.Aggregates{Revenue: decimal.Zero, Expenses: decimal.Zero}
	for rows.Next() {
		var revenue, expenses string
		if err := rows.Scan(&revenue, &expenses); err != nil {
			return equity.Aggregates{}, err
		}
		r, err := decimal.NewFromString(revenue)
		if err != nil {
			return equity.Aggregates{}, fmt.Errorf("failed to parse ledger revenue: %w", err)
		}
		e, err := decimal.NewFromString(expenses)
		if err != nil {
			return equity.Aggregates{}, fmt.Errorf("failed to parse ledger expenses: %w", err)
		}
		agg.Revenue = agg.Revenue.Add(r)
		agg.Expenses = agg.Expenses.Add(e)
	}
	return agg, rows.Err()
}

// =============================================================================
// AUDIT LOG (equity.AuditLog interface)
// =============================================================================

// Record appends an audit entry.
func (s *Store) Record(ctx context.Context, entry equity.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := entry.ID
	if id == "" {
		id = uuid.NewString()
	}
	detailJSON, _ := json.Marshal(entry.Detail)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO audit_log (id, at, action, holder_id, period_ref, detail_json) VALUES (?, ?, ?, ?, ?, ?)",
		id, entry.At.UTC().Format(time.RFC3339Nano), string(entry.Action),
		nullString(string(entry.HolderID)), nullString(entry.PeriodRef),
		string(detailJSON))
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// AuditEntries returns audit entries, newest first, optionally filtered
// by action.
func (s *Store) AuditEntries(ctx context.Context, action equity.AuditAction) ([]equity.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, at, action, holder_id, period_ref, detail_json FROM audit_log"
	var args []any
	if action != "" {
		query += " WHERE action = ?"
		args = append(args, string(action))
	}
	query += " ORDER BY at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []equity.AuditEntry
	for rows.Next() {
		var (
			e          equity.AuditEntry
			at         string
			holderID   sql.NullString
			periodRef  sql.NullString
			detailJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &e.Action, &holderID, &periodRef, &detailJSON); err != nil {
			return nil, err
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.HolderID = equity.HolderID(holderID.String)
		e.PeriodRef = periodRef.String
		if detailJSON.Valid && detailJSON.String != "" {
			json.Unmarshal([]byte(detailJSON.String), &e.Detail)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (equity.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The store
// passed to fn routes every call through the same *sql.Tx.
func (s *Store) WithTx(ctx context.Context, fn func(store equity.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes the full Store interface through one *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

var _ equity.Store = (*txStore)(nil)

func (ts *txStore) AppendEvent(ctx context.Context, ev equity.ContributionEvent) error {
	return appendEvent(ctx, ts.tx, ev)
}

func (ts *txStore) Event(ctx context.Context, id equity.EventID) (equity.ContributionEvent, error) {
	return getEvent(ctx, ts.tx, id)
}

func (ts *txStore) EventsByHolder(ctx context.Context, holderID equity.HolderID) ([]equity.ContributionEvent, error) {
	return eventsByHolder(ctx, ts.tx, holderID)
}

func (ts *txStore) SetEventStatus(ctx context.Context, id equity.EventID, status equity.ApprovalStatus) error {
	return setEventStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) SaveHolder(ctx context.Context, h equity.Holder) error {
	return saveHolder(ctx, ts.tx, h)
}

func (ts *txStore) Holder(ctx context.Context, id equity.HolderID) (equity.Holder, error) {
	return getHolder(ctx, ts.tx, id)
}

func (ts *txStore) ListHolders(ctx context.Context) ([]equity.Holder, error) {
	return queryHolders(ctx, ts.tx,
		"SELECT "+holderColumns+" FROM holders ORDER BY created_at ASC")
}

func (ts *txStore) Shareholders(ctx context.Context) ([]equity.Holder, error) {
	return shareholders(ctx, ts.tx)
}

func (ts *txStore) SaveKpiRecord(ctx context.Context, rec equity.KpiPeriodRecord) error {
	return saveKpiRecord(ctx, ts.tx, rec)
}

func (ts *txStore) KpiRecord(ctx context.Context, staffID equity.HolderID, periodValue string) (equity.KpiPeriodRecord, error) {
	return getKpiRecord(ctx, ts.tx, staffID, periodValue)
}

func (ts *txStore) KpiRecordsForQuarter(ctx context.Context, periodValue string) ([]equity.KpiPeriodRecord, error) {
	return kpiRecordsForQuarter(ctx, ts.tx, periodValue)
}

func (ts *txStore) MarkKpiProcessed(ctx context.Context, periodValue string) error {
	return markKpiProcessed(ctx, ts.tx, periodValue)
}

func (ts *txStore) CreatePeriod(ctx context.Context, p equity.ProfitSharingPeriod) error {
	return createPeriod(ctx, ts.tx, p)
}

func (ts *txStore) ActivePeriod(ctx context.Context, periodValue string) (equity.ProfitSharingPeriod, bool, error) {
	return activePeriod(ctx, ts.tx, periodValue)
}

func (ts *txStore) UpdatePeriod(ctx context.Context, p equity.ProfitSharingPeriod) error {
	return updatePeriod(ctx, ts.tx, p)
}

func (ts *txStore) ListPeriods(ctx context.Context) ([]equity.ProfitSharingPeriod, error) {
	return listPeriods(ctx, ts.tx)
}

func (ts *txStore) AppendDistributionRecords(ctx context.Context, recs []equity.ProfitDistributionRecord) error {
	return appendDistributionRecords(ctx, ts.tx, recs)
}

func (ts *txStore) DistributionRecords(ctx context.Context, periodID equity.PeriodID) ([]equity.ProfitDistributionRecord, error) {
	return distributionRecords(ctx, ts.tx, periodID)
}

func (ts *txStore) SetPaymentStatus(ctx context.Context, id equity.RecordID, status equity.PaymentStatus) error {
	return setPaymentStatus(ctx, ts.tx, id, status)
}

func (ts *txStore) RevenueExpenses(ctx context.Context, from, to time.Time) (equity.Aggregates, error) {
	return revenueExpenses(ctx, ts.tx, from, to)
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
