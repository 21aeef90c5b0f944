/*
Package factory provides JSON to Go tier-table conversion.

PURPOSE:
  Converts JSON tier definitions into an equity.TierTable. This enables
  tier configuration without code changes - operations staff can adjust
  thresholds and multipliers in JSON, and the factory creates the proper
  Go structs with full validation.

WHY JSON?
  - Non-developers can modify tier thresholds
  - Easy integration with admin UI
  - Version control for tier definitions
  - Database storage of tier configs

JSON SCHEMA:
  {
    "tiers": [
      {
        "name": "angel",
        "min_investment": "100000000",
        "multiplier": "2.5",
        "maxout_multiplier": "5.0"
      },
      {
        "name": "branch",
        "min_investment": "500000000",
        "multiplier": "3.0",
        "base_shares": "200",
        "unlimited": true,
        "kpi_required": true
      }
    ],
    "params": {
      "pool_rate": "0.49",
      "withdrawal_tax_rate": "0.10"
    }
  }

  All numeric fields are decimal strings; float JSON numbers are rejected
  to keep money math exact.

USAGE:
  factory := NewTierFactory()

  // From JSON string
  table, params, err := factory.ParseConfig(jsonString)

  // Defaults when no config file is present
  table := equity.DefaultTierTable()
  params := equity.DefaultParams()

SEE ALSO:
  - equity/tier.go: TierTable type and validation
  - equity/params.go: Injected business constants
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/Trungtrucpixel/vcareglobal-sub002/equity"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ConfigJSON is the top-level JSON document.
type ConfigJSON struct {
	Tiers  []TierJSON  `json:"tiers"`
	Params *ParamsJSON `json:"params,omitempty"`
}

// TierJSON is the JSON representation of one tier.
type TierJSON struct {
	Name             string `json:"name"`
	MinInvestment    string `json:"min_investment"`
	Multiplier       string `json:"multiplier"`
	MaxoutMultiplier string `json:"maxout_multiplier,omitempty"`
	SharesPerSlice   string `json:"shares_per_slice,omitempty"`
	BaseShares       string `json:"base_shares,omitempty"`
	Unlimited        bool   `json:"unlimited,omitempty"`
	KPIRequired      bool   `json:"kpi_required,omitempty"`
}

// ParamsJSON carries optional overrides for the business constants.
// Omitted fields keep their defaults.
type ParamsJSON struct {
	PoolRate               string `json:"pool_rate,omitempty"`
	CapitalPoolRate        string `json:"capital_pool_rate,omitempty"`
	LaborPoolRate          string `json:"labor_pool_rate,omitempty"`
	WithdrawalTaxRate      string `json:"withdrawal_tax_rate,omitempty"`
	WithdrawalTaxThreshold string `json:"withdrawal_tax_threshold,omitempty"`
	MinWithdrawal          string `json:"min_withdrawal,omitempty"`
	BranchInitialTokens    string `json:"branch_initial_tokens,omitempty"`
	MinYear                int    `json:"min_year,omitempty"`
	MaxYear                int    `json:"max_year,omitempty"`
}

// =============================================================================
// TIER FACTORY
// =============================================================================

// TierFactory converts JSON tier configs to Go structs.
type TierFactory struct{}

// NewTierFactory creates a new tier factory.
func NewTierFactory() *TierFactory {
	return &TierFactory{}
}

// ParseConfig parses a JSON string into a TierTable and Params.
// An empty tiers array falls back to the built-in default table.
func (f *TierFactory) ParseConfig(jsonStr string) (equity.TierTable, equity.Params, error) {
	var cj ConfigJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return equity.TierTable{}, equity.Params{}, fmt.Errorf("failed to parse tier config JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts ConfigJSON to a TierTable and Params.
func (f *TierFactory) FromJSON(cj ConfigJSON) (equity.TierTable, equity.Params, error) {
	params := equity.DefaultParams()
	if cj.Params != nil {
		if err := applyParams(&params, *cj.Params); err != nil {
			return equity.TierTable{}, equity.Params{}, err
		}
	}

	if len(cj.Tiers) == 0 {
		return equity.DefaultTierTable(), params, nil
	}

	configs := make([]equity.TierConfig, 0, len(cj.Tiers))
	for _, tj := range cj.Tiers {
		tc, err := parseTier(tj)
		if err != nil {
			return equity.TierTable{}, equity.Params{}, err
		}
		configs = append(configs, tc)
	}

	table, err := equity.NewTierTable(configs)
	if err != nil {
		return equity.TierTable{}, equity.Params{}, err
	}
	return table, params, nil
}

// ToJSON converts a TierTable back to its JSON representation.
func (f *TierFactory) ToJSON(table equity.TierTable) ConfigJSON {
	var cj ConfigJSON
	for _, tc := range table.Configs() {
		tj := TierJSON{
			Name:          string(tc.Name),
			MinInvestment: tc.MinInvestment.String(),
			Multiplier:    tc.Multiplier.String(),
			Unlimited:     tc.Unlimited,
			KPIRequired:   tc.KPIRequired,
		}
		if !tc.Unlimited {
			tj.MaxoutMultiplier = tc.MaxoutMultiplier.String()
		}
		if tc.SharesPerSlice.IsPositive() {
			tj.SharesPerSlice = tc.SharesPerSlice.String()
		}
		if tc.BaseShares.IsPositive() {
			tj.BaseShares = tc.BaseShares.String()
		}
		cj.Tiers = append(cj.Tiers, tj)
	}
	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseTier(tj TierJSON) (equity.TierConfig, error) {
	tc := equity.TierConfig{
		Name:        equity.TierName(tj.Name),
		Unlimited:   tj.Unlimited,
		KPIRequired: tj.KPIRequired,
	}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"min_investment", tj.MinInvestment, &tc.MinInvestment},
		{"multiplier", tj.Multiplier, &tc.Multiplier},
		{"maxout_multiplier", tj.MaxoutMultiplier, &tc.MaxoutMultiplier},
		{"shares_per_slice", tj.SharesPerSlice, &tc.SharesPerSlice},
		{"base_shares", tj.BaseShares, &tc.BaseShares},
	}
	for _, fld := range fields {
		if fld.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(fld.raw)
		if err != nil {
			return equity.TierConfig{}, fmt.Errorf("tier %q: invalid %s %q: %w", tj.Name, fld.name, fld.raw, err)
		}
		*fld.dst = d
	}

	if !tc.Unlimited && !tc.MaxoutMultiplier.IsPositive() {
		return equity.TierConfig{}, fmt.Errorf("tier %q: maxout_multiplier required unless unlimited", tj.Name)
	}
	return tc, nil
}

func applyParams(p *equity.Params, pj ParamsJSON) error {
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"pool_rate", pj.PoolRate, &p.PoolRate},
		{"capital_pool_rate", pj.CapitalPoolRate, &p.CapitalPoolRate},
		{"labor_pool_rate", pj.LaborPoolRate, &p.LaborPoolRate},
		{"withdrawal_tax_rate", pj.WithdrawalTaxRate, &p.WithdrawalTaxRate},
		{"withdrawal_tax_threshold", pj.WithdrawalTaxThreshold, &p.WithdrawalTaxThreshold},
		{"min_withdrawal", pj.MinWithdrawal, &p.MinWithdrawal},
		{"branch_initial_tokens", pj.BranchInitialTokens, &p.BranchInitialTokens},
	}
	for _, fld := range fields {
		if fld.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(fld.raw)
		if err != nil {
			return fmt.Errorf("params: invalid %s %q: %w", fld.name, fld.raw, err)
		}
		*fld.dst = d
	}

	if pj.MinYear != 0 {
		p.MinYear = pj.MinYear
	}
	if pj.MaxYear != 0 {
		p.MaxYear = pj.MaxYear
	}
	if p.MinYear > p.MaxYear {
		return fmt.Errorf("params: min_year %d exceeds max_year %d", p.MinYear, p.MaxYear)
	}
	return nil
}
