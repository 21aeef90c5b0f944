// Package store provides in-memory implementations of the equity
// persistence interfaces for tests and development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// =============================================================================
// MEMORY STORE - Implements equity.TxStore
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	holders     map[equity.HolderID]equity.Holder
	events      map[equity.EventID]equity.ContributionEvent
	eventOrder  []equity.EventID
	idempotency map[string]bool

	kpiRecords map[kpiKey]equity.KpiPeriodRecord

	periods     map[equity.PeriodID]equity.ProfitSharingPeriod
	periodOrder []equity.PeriodID
	records     map[equity.RecordID]equity.ProfitDistributionRecord
	recordOrder []equity.RecordID

	ledgerEntries []LedgerEntry
}

type kpiKey struct {
	StaffID     equity.HolderID
	PeriodValue string
}

// LedgerEntry is a dated revenue/expense line, the in-memory stand-in
// for the external ledger collaborator.
type LedgerEntry struct {
	Date     time.Time
	Revenue  decimal.Decimal
	Expenses decimal.Decimal
}

// Compile-time check that Memory satisfies the full store surface.
var _ equity.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		holders:     make(map[equity.HolderID]equity.Holder),
		events:      make(map[equity.EventID]equity.ContributionEvent),
		idempotency: make(map[string]bool),
		kpiRecords:  make(map[kpiKey]equity.KpiPeriodRecord),
		periods:     make(map[equity.PeriodID]equity.ProfitSharingPeriod),
		records:     make(map[equity.RecordID]equity.ProfitDistributionRecord),
	}
}

// RecordLedgerEntry seeds a revenue/expense line for aggregation.
// Signature matches the sqlite store so either can back the ledger
// ingest endpoint.
func (m *Memory) RecordLedgerEntry(_ context.Context, date time.Time, revenue, expenses decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledgerEntries = append(m.ledgerEntries, LedgerEntry{Date: date, Revenue: revenue, Expenses: expenses})
	return nil
}

// =============================================================================
// EVENT STORE
// =============================================================================

func (m *Memory) AppendEvent(_ context.Context, ev equity.ContributionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendEventLocked(ev)
}

func (m *Memory) appendEventLocked(ev equity.ContributionEvent) error {
	if ev.IdempotencyKey != "" && m.idempotency[ev.IdempotencyKey] {
		return equity.ErrDuplicateIdempotencyKey
	}
	m.events[ev.ID] = ev
	m.eventOrder = append(m.eventOrder, ev.ID)
	if ev.IdempotencyKey != "" {
		m.idempotency[ev.IdempotencyKey] = true
	}
	return nil
}

func (m *Memory) Event(_ context.Context, id equity.EventID) (equity.ContributionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return equity.ContributionEvent{}, fmt.Errorf("%w: %s", equity.ErrEventNotFound, id)
	}
	return ev, nil
}

func (m *Memory) EventsByHolder(_ context.Context, holderID equity.HolderID) ([]equity.ContributionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []equity.ContributionEvent
	for _, id := range m.eventOrder {
		if ev := m.events[id]; ev.HolderID == holderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *Memory) SetEventStatus(_ context.Context, id equity.EventID, status equity.ApprovalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return fmt.Errorf("%w: %s", equity.ErrEventNotFound, id)
	}
	if ev.Status != equity.StatusPending {
		return fmt.Errorf("%w: %s is %s", equity.ErrEventNotPending, id, ev.Status)
	}
	ev.Status = status
	m.events[id] = ev
	return nil
}

// =============================================================================
// HOLDER STORE
// =============================================================================

func (m *Memory) SaveHolder(_ context.Context, h equity.Holder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders[h.ID] = h
	return nil
}

func (m *Memory) Holder(_ context.Context, id equity.HolderID) (equity.Holder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holders[id]
	if !ok {
		return equity.Holder{}, fmt.Errorf("%w: %s", equity.ErrHolderNotFound, id)
	}
	return h, nil
}

func (m *Memory) ListHolders(_ context.Context) ([]equity.Holder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]equity.Holder, 0, len(m.holders))
	for _, h := range m.holders {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Shareholders(_ context.Context) ([]equity.Holder, error) {
	all, _ := m.ListHolders(context.Background())
	var out []equity.Holder
	for _, h := range all {
		if h.Active && h.TotalShares().IsPositive() {
			out = append(out, h)
		}
	}
	return out, nil
}

// =============================================================================
// KPI STORE
// =============================================================================

func (m *Memory) SaveKpiRecord(_ context.Context, rec equity.KpiPeriodRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kpiRecords[kpiKey{rec.StaffID, rec.PeriodValue}] = rec
	return nil
}

func (m *Memory) KpiRecord(_ context.Context, staffID equity.HolderID, periodValue string) (equity.KpiPeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.kpiRecords[kpiKey{staffID, periodValue}]
	if !ok {
		return equity.KpiPeriodRecord{}, fmt.Errorf("%w: %s %s", equity.ErrKpiRecordNotFound, staffID, periodValue)
	}
	return rec, nil
}

func (m *Memory) KpiRecordsForQuarter(_ context.Context, periodValue string) ([]equity.KpiPeriodRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []equity.KpiPeriodRecord
	for k, rec := range m.kpiRecords {
		if k.PeriodValue == periodValue {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StaffID < out[j].StaffID })
	return out, nil
}

func (m *Memory) MarkKpiProcessed(_ context.Context, periodValue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, rec := range m.kpiRecords {
		if k.PeriodValue == periodValue && rec.Eligible && !rec.IsProcessed {
			rec.IsProcessed = true
			rec.State = equity.KpiProcessed
			m.kpiRecords[k] = rec
		}
	}
	return nil
}

// =============================================================================
// PERIOD STORE
// =============================================================================

func (m *Memory) CreatePeriod(_ context.Context, p equity.ProfitSharingPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Uniqueness: at most one non-cancelled row per period value.
	for _, existing := range m.periods {
		if existing.PeriodValue == p.PeriodValue && existing.Status != equity.PeriodCancelled {
			return fmt.Errorf("%w: %s", equity.ErrAlreadyProcessed, p.PeriodValue)
		}
	}
	m.periods[p.ID] = p
	m.periodOrder = append(m.periodOrder, p.ID)
	return nil
}

func (m *Memory) ActivePeriod(_ context.Context, periodValue string) (equity.ProfitSharingPeriod, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.periods {
		if p.PeriodValue == periodValue && p.Status != equity.PeriodCancelled {
			return p, true, nil
		}
	}
	return equity.ProfitSharingPeriod{}, false, nil
}

func (m *Memory) UpdatePeriod(_ context.Context, p equity.ProfitSharingPeriod) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.periods[p.ID]; !ok {
		return fmt.Errorf("%w: %s", equity.ErrPeriodNotFound, p.ID)
	}
	m.periods[p.ID] = p
	return nil
}

func (m *Memory) ListPeriods(_ context.Context) ([]equity.ProfitSharingPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]equity.ProfitSharingPeriod, 0, len(m.periodOrder))
	for i := len(m.periodOrder) - 1; i >= 0; i-- {
		out = append(out, m.periods[m.periodOrder[i]])
	}
	return out, nil
}

func (m *Memory) AppendDistributionRecords(_ context.Context, recs []equity.ProfitDistributionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.records[r.ID] = r
		m.recordOrder = append(m.recordOrder, r.ID)
	}
	return nil
}

func (m *Memory) DistributionRecords(_ context.Context, periodID equity.PeriodID) ([]equity.ProfitDistributionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []equity.ProfitDistributionRecord
	for _, id := range m.recordOrder {
		if r := m.records[id]; r.PeriodID == periodID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SetPaymentStatus(_ context.Context, id equity.RecordID, status equity.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return fmt.Errorf("%w: %s", equity.ErrRecordNotFound, id)
	}
	r.PaymentStatus = status
	m.records[id] = r
	return nil
}

// =============================================================================
// REVENUE SOURCE
// =============================================================================

func (m *Memory) RevenueExpenses(_ context.Context, from, to time.Time) (equity.Aggregates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	agg := equity.Aggregates{Revenue: decimal.Zero, Expenses: decimal.Zero}
	for _, e := range m.ledgerEntries {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		agg.Revenue = agg.Revenue.Add(e.Revenue)
		agg.Expenses = agg.Expenses.Add(e.Expenses)
	}
	return agg, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback on error
// =============================================================================

// WithTx executes fn against the store. On error the pre-transaction
// state is restored, which keeps the all-or-nothing batch semantics
// testable without a real database.
func (m *Memory) WithTx(_ context.Context, fn func(equity.Store) error) error {
	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	holders     map[equity.HolderID]equity.Holder
	events      map[equity.EventID]equity.ContributionEvent
	eventOrder  []equity.EventID
	idempotency map[string]bool
	kpiRecords  map[kpiKey]equity.KpiPeriodRecord
	periods     map[equity.PeriodID]equity.ProfitSharingPeriod
	periodOrder []equity.PeriodID
	records     map[equity.RecordID]equity.ProfitDistributionRecord
	recordOrder []equity.RecordID
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := memorySnapshot{
		holders:     make(map[equity.HolderID]equity.Holder, len(m.holders)),
		events:      make(map[equity.EventID]equity.ContributionEvent, len(m.events)),
		eventOrder:  append([]equity.EventID(nil), m.eventOrder...),
		idempotency: make(map[string]bool, len(m.idempotency)),
		kpiRecords:  make(map[kpiKey]equity.KpiPeriodRecord, len(m.kpiRecords)),
		periods:     make(map[equity.PeriodID]equity.ProfitSharingPeriod, len(m.periods)),
		periodOrder: append([]equity.PeriodID(nil), m.periodOrder...),
		records:     make(map[equity.RecordID]equity.ProfitDistributionRecord, len(m.records)),
		recordOrder: append([]equity.RecordID(nil), m.recordOrder...),
	}
	for k, v := range m.holders {
		s.holders[k] = v
	}
	for k, v := range m.events {
		s.events[k] = v
	}
	for k, v := range m.idempotency {
		s.idempotency[k] = v
	}
	for k, v := range m.kpiRecords {
		s.kpiRecords[k] = v
	}
	for k, v := range m.periods {
		s.periods[k] = v
	}
	for k, v := range m.records {
		s.records[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holders = s.holders
	m.events = s.events
	m.eventOrder = s.eventOrder
	m.idempotency = s.idempotency
	m.kpiRecords = s.kpiRecords
	m.periods = s.periods
	m.periodOrder = s.periodOrder
	m.records = s.records
	m.recordOrder = s.recordOrder
}

// =============================================================================
// AUDIT LOG - In-memory sink
// =============================================================================

// AuditMemory collects audit entries for assertions in tests.
type AuditMemory struct {
	mu      sync.Mutex
	entries []equity.AuditEntry
}

func NewAuditMemory() *AuditMemory { return &AuditMemory{} }

func (a *AuditMemory) Record(_ context.Context, entry equity.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (a *AuditMemory) Entries() []equity.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]equity.AuditEntry(nil), a.entries...)
}
