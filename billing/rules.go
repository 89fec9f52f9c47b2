// Package billing turns membership-system events into credit movements:
// completed purchase transactions credit the tenant according to per-plan
// rules, subscription lapses open the grace window.
package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Rule maps one membership plan to a credit grant. BaseCredits and
// BonusPercent are 6-decimal strings; the granted amount is
// base * (1 + bonus/100) rounded to 6 decimals.
type Rule struct {
	ProductID    int    `yaml:"product_id" json:"product_id"`
	Label        string `yaml:"label" json:"label"`
	BaseCredits  string `yaml:"base_credits" json:"base_credits"`
	BonusPercent string `yaml:"bonus_percent" json:"bonus_percent"`
	Enabled      bool   `yaml:"enabled" json:"enabled"`
}

// Amount computes the credit grant for the rule.
func (r Rule) Amount() (string, error) {
	base, err := decimal.NewFromString(r.BaseCredits)
	if err != nil {
		return "", fmt.Errorf("rule %d: bad base credits %q: %w", r.ProductID, r.BaseCredits, err)
	}
	bonus, err := decimal.NewFromString(r.BonusPercent)
	if err != nil {
		return "", fmt.Errorf("rule %d: bad bonus percent %q: %w", r.ProductID, r.BonusPercent, err)
	}
	factor := decimal.NewFromInt(1).Add(bonus.Div(decimal.NewFromInt(100)))
	return base.Mul(factor).Round(6).StringFixed(6), nil
}

// DefaultRules is the shipped plan-to-credits mapping.
func DefaultRules() []Rule {
	return []Rule{
		{ProductID: 12, Label: "Lite Mensual", BaseCredits: "10.000000", BonusPercent: "0.000000", Enabled: true},
		{ProductID: 20, Label: "Lite Trimestral", BaseCredits: "30.000000", BonusPercent: "10.000000", Enabled: true},
		{ProductID: 21, Label: "Lite Semestral", BaseCredits: "60.000000", BonusPercent: "20.000000", Enabled: true},
		{ProductID: 22, Label: "Lite Anual", BaseCredits: "120.000000", BonusPercent: "30.000000", Enabled: true},
	}
}

// SanitizeRules drops invalid rules and clamps negative decimals to zero.
// Later rules for the same product win.
func SanitizeRules(raw []Rule) []Rule {
	byProduct := map[int]int{}
	var out []Rule
	for _, r := range raw {
		if r.ProductID <= 0 {
			continue
		}
		r.BaseCredits = clampNonNegative(r.BaseCredits)
		r.BonusPercent = clampNonNegative(r.BonusPercent)
		if idx, ok := byProduct[r.ProductID]; ok {
			out[idx] = r
			continue
		}
		byProduct[r.ProductID] = len(out)
		out = append(out, r)
	}
	return out
}

// FindRule returns the rule for a product id.
func FindRule(rules []Rule, productID int) (Rule, bool) {
	for _, r := range rules {
		if r.ProductID == productID {
			return r, true
		}
	}
	return Rule{}, false
}

func clampNonNegative(v string) string {
	d, err := decimal.NewFromString(v)
	if err != nil || d.Sign() < 0 {
		return "0.000000"
	}
	return d.Round(6).StringFixed(6)
}
