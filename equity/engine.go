/*
engine.go - Contribution calculator and approval transitions

PURPOSE:
  The engine is one of only two code paths allowed to mutate holder
  balances (the other is the distribution processor). It converts a
  single contribution event into shares and token units, tier-aware,
  and gates the credited value through the maxout guard.

CONTRIBUTION FLOW:
  1. Recompute tier from cumulative + amount (branch holders keep their
     assigned branch tier)
  2. shares = amount / slice, or the tier's flat base share grant
  3. tokens = TokensFor(amount) * tier multiplier
  4. Clamp the credited currency value through the maxout guard; shares
     scale by the same ratio so neither quantity exceeds the cap
  5. Mutate holder balances and append a pending ContributionEvent in
     one transaction

ORDERING:
  Contributions for the same holder are applied in order: a per-holder
  mutex serializes the read-compute-write cycle, so later contributions
  always see the cumulative effect of earlier ones.

APPROVAL:
  Events are appended pending. The external approval workflow confirms
  or rejects them; the engine never self-approves. Rejection applies a
  compensating reversal of the balance mutation - the event itself is
  never edited beyond its status.
*/
package equity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	params Params
	tiers  TierTable
	store  TxStore
	audit  AuditLog

	mu    sync.Mutex
	locks map[HolderID]*sync.Mutex
}

func NewEngine(params Params, tiers TierTable, store TxStore, audit AuditLog) *Engine {
	if audit == nil {
		audit = NopAuditLog{}
	}
	return &Engine{
		params: params,
		tiers:  tiers,
		store:  store,
		audit:  audit,
		locks:  make(map[HolderID]*sync.Mutex),
	}
}

// Params returns the engine's injected configuration.
func (e *Engine) Params() Params { return e.params }

// Tiers returns the engine's tier table.
func (e *Engine) Tiers() TierTable { return e.tiers }

// holderLock returns the mutex serializing operations for one holder.
func (e *Engine) holderLock(id HolderID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	return l
}

// =============================================================================
// HOLDER LIFECYCLE
// =============================================================================

// CreateHolder registers a holder. Branch holders are assigned the
// branch tier and its fixed initial token grant; everyone else starts
// on the fallback tier until contributions reclassify them.
func (e *Engine) CreateHolder(ctx context.Context, id HolderID, name string, typ HolderType) (Holder, error) {
	h := Holder{
		ID:        id,
		Name:      name,
		Type:      typ,
		Tier:      TierNone,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}

	if typ == HolderBranch {
		h.Tier = TierName("branch")
		h.TokenBalance = e.params.BranchInitialTokens
	}

	if err := e.store.SaveHolder(ctx, h); err != nil {
		return Holder{}, err
	}
	return h, nil
}

// DeactivateHolder marks a holder inactive. Holders are never deleted.
func (e *Engine) DeactivateHolder(ctx context.Context, id HolderID) error {
	lock := e.holderLock(id)
	lock.Lock()
	defer lock.Unlock()

	return e.store.WithTx(ctx, func(s Store) error {
		h, err := s.Holder(ctx, id)
		if err != nil {
			return err
		}
		h.Active = false
		return s.SaveHolder(ctx, h)
	})
}

// =============================================================================
// CONTRIBUTION CALCULATOR
// =============================================================================

// ContributionResult is what the surrounding application sees after
// recording a contribution.
type ContributionResult struct {
	EventID       EventID
	Shares        decimal.Decimal
	Tokens        decimal.Decimal
	Tier          TierName
	MaxoutReached bool
}

// eventTypeFor maps a contribution kind to its default event type.
func eventTypeFor(kind ContributionKind) EventType {
	switch kind {
	case KindAsset:
		return EventAssetContribution
	case KindCard:
		return EventCardPurchase
	case KindEffort:
		return EventKpiBonus
	default:
		return EventInvestment
	}
}

// raisesPrincipal reports whether a kind increases the maxout base.
// Card purchases, referrals and KPI bonuses never raise the ceiling.
func raisesPrincipal(kind ContributionKind) bool {
	return kind == KindCash || kind == KindAsset
}

// RecordContribution computes and applies a single contribution.
// The holder is created on first contribution if it does not exist.
// evType may be zero; it then defaults from the kind. idemKey guards
// against retries; empty disables the check.
func (e *Engine) RecordContribution(
	ctx context.Context,
	holderID HolderID,
	amount decimal.Decimal,
	kind ContributionKind,
	evType EventType,
	idemKey string,
) (ContributionResult, error) {
	if !amount.IsPositive() {
		return ContributionResult{}, &InvalidAmountError{Amount: amount}
	}
	if evType == "" {
		evType = eventTypeFor(kind)
	}

	lock := e.holderLock(holderID)
	lock.Lock()
	defer lock.Unlock()

	var (
		result   ContributionResult
		oldTier  TierName
		newlyMax bool
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		h, err := s.Holder(ctx, holderID)
		if IsNotFound(err) {
			h = Holder{
				ID:        holderID,
				Type:      HolderMember,
				Tier:      TierNone,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			}
		} else if err != nil {
			return err
		}
		if !h.Active {
			return fmt.Errorf("%w: %s", ErrHolderInactive, holderID)
		}

		oldTier = h.Tier
		wasMaxed := h.MaxoutReached

		// 1. Reclassify from the cumulative amount including this
		// contribution. Branch holders keep their assigned tier.
		newCumulative := h.CumulativeAmount.Add(amount)
		tier := h.Tier
		if h.Type != HolderBranch {
			tier = e.tiers.Classify(newCumulative)
		}
		tc, err := e.tiers.Get(tier)
		if err != nil {
			return err
		}

		// 2. Shares: flat grant for branch-style tiers, otherwise
		// derived from the amount.
		shares := e.params.BaseSharesFor(amount, tc.SharesPerSlice)
		if tc.BaseShares.IsPositive() {
			shares = tc.BaseShares
		}

		// 3. Tokens with the tier multiplier.
		tokens := e.params.TokensFor(amount).Mul(tc.Multiplier)
		proposedValue := e.params.CurrencyFor(tokens)

		// Principal raises the ceiling before the guard runs.
		if raisesPrincipal(kind) {
			h.BaseInvestment = h.BaseInvestment.Add(amount)
		}

		// 4. Maxout guard on the credited currency value.
		clamp := h.ApplyDistribution(tc, proposedValue)
		creditedTokens := e.params.TokensFor(clamp.Allowed)
		if clamp.MaxoutReached && proposedValue.IsPositive() {
			shares = shares.Mul(clamp.Allowed.Div(proposedValue))
		}

		// 5. Mutate balances and append the pending event.
		h.CumulativeAmount = newCumulative
		h.Tier = tier
		h.TokenBalance = h.TokenBalance.Add(creditedTokens)
		if kind == KindEffort {
			h.LaborShares = h.LaborShares.Add(shares)
		} else {
			h.CapitalShares = h.CapitalShares.Add(shares)
		}

		ev := ContributionEvent{
			ID:             EventID(uuid.NewString()),
			HolderID:       holderID,
			Type:           evType,
			Kind:           kind,
			Amount:         amount,
			Shares:         shares,
			TokenAmount:    creditedTokens,
			Tier:           tier,
			Status:         StatusPending,
			IdempotencyKey: idemKey,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.AppendEvent(ctx, ev); err != nil {
			return err
		}
		if err := s.SaveHolder(ctx, h); err != nil {
			return err
		}

		newlyMax = h.MaxoutReached && !wasMaxed
		result = ContributionResult{
			EventID:       ev.ID,
			Shares:        shares,
			Tokens:        creditedTokens,
			Tier:          tier,
			MaxoutReached: h.MaxoutReached,
		}
		return nil
	})
	if err != nil {
		return ContributionResult{}, err
	}

	e.emit(ctx, AuditEntry{Action: AuditContributionRecorded, HolderID: holderID,
		Detail: map[string]string{"event": string(result.EventID), "amount": amount.String()}})
	if result.Tier != oldTier {
		e.emit(ctx, AuditEntry{Action: AuditTierChanged, HolderID: holderID,
			Detail: map[string]string{"from": string(oldTier), "to": string(result.Tier)}})
	}
	if newlyMax {
		e.emit(ctx, AuditEntry{Action: AuditMaxoutReached, HolderID: holderID})
	}

	return result, nil
}

// =============================================================================
// APPROVAL TRANSITIONS (driven by the external approval workflow)
// =============================================================================

// ApproveEvent confirms a pending event. The balance mutation already
// happened at record time; approval is the external workflow's sign-off.
func (e *Engine) ApproveEvent(ctx context.Context, id EventID) error {
	err := e.store.SetEventStatus(ctx, id, StatusApproved)
	if err != nil {
		return err
	}
	e.emit(ctx, AuditEntry{Action: AuditEventApproved, Detail: map[string]string{"event": string(id)}})
	return nil
}

// RejectEvent rejects a pending event and reverses its balance effect.
// The event row keeps its computed figures; only the status changes.
func (e *Engine) RejectEvent(ctx context.Context, id EventID) error {
	var holderID HolderID

	err := e.store.WithTx(ctx, func(s Store) error {
		ev, err := s.Event(ctx, id)
		if err != nil {
			return err
		}
		if ev.Status != StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrEventNotPending, id, ev.Status)
		}
		holderID = ev.HolderID

		h, err := s.Holder(ctx, ev.HolderID)
		if err != nil {
			return err
		}

		// Compensating reversal of the record-time mutation.
		h.CumulativeAmount = h.CumulativeAmount.Sub(ev.Amount)
		h.TokenBalance = h.TokenBalance.Sub(ev.TokenAmount)
		h.CumulativeDistributed = h.CumulativeDistributed.Sub(e.params.CurrencyFor(ev.TokenAmount))
		if ev.Kind == KindEffort {
			h.LaborShares = h.LaborShares.Sub(ev.Shares)
		} else {
			h.CapitalShares = h.CapitalShares.Sub(ev.Shares)
		}
		if raisesPrincipal(ev.Kind) {
			h.BaseInvestment = h.BaseInvestment.Sub(ev.Amount)
		}
		if h.Type != HolderBranch {
			h.Tier = e.tiers.Classify(h.CumulativeAmount)
		}
		// The reversal may reopen headroom under the maxout ceiling.
		if h.MaxoutReached {
			tc, tierErr := e.tiers.Get(h.Tier)
			if tierErr == nil {
				if ceiling, unlimited := tc.Ceiling(h.BaseInvestment); unlimited || h.CumulativeDistributed.LessThan(ceiling) {
					h.MaxoutReached = false
				}
			}
		}

		if err := s.SetEventStatus(ctx, id, StatusRejected); err != nil {
			return err
		}
		return s.SaveHolder(ctx, h)
	})
	if err != nil {
		return err
	}

	e.emit(ctx, AuditEntry{Action: AuditEventRejected, HolderID: holderID,
		Detail: map[string]string{"event": string(id)}})
	return nil
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

// QuoteWithdrawal applies the withdrawal tax rule. Pure computation:
// recording the actual withdrawal event is the outer application's call.
func (e *Engine) QuoteWithdrawal(amount decimal.Decimal) (Withdrawal, error) {
	return e.params.WithdrawalFor(amount)
}

// =============================================================================
// AUDIT
// =============================================================================

// emit sends an audit entry, fire-and-forget: failures are dropped.
func (e *Engine) emit(ctx context.Context, entry AuditEntry) {
	entry.ID = uuid.NewString()
	entry.At = time.Now().UTC()
	_ = e.audit.Record(ctx, entry)
}
