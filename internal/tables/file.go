package tables

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/aw3econ/internal/money"
)

// fileTables is the YAML shape of a tables override file. Amounts are
// strings so they never pass through float64.
type fileTables struct {
	BudgetTiers []struct {
		UpperBound string `yaml:"upper_bound"`
		Rate       string `yaml:"rate"`
	} `yaml:"budget_tiers"`
	TopRate string `yaml:"top_rate"`

	Complexity map[string]string `yaml:"complexity"`

	TokenDiscountRate string `yaml:"token_discount_rate"`
	TokenPrice        string `yaml:"token_price"`

	OracleSourceCosts map[string]string `yaml:"oracle_source_costs"`

	EscrowBufferRate string `yaml:"escrow_buffer_rate"`
	EstimateValidity string `yaml:"estimate_validity"`

	PlatformFeeRate          string `yaml:"platform_fee_rate"`
	MaxAchievementMultiplier string `yaml:"max_achievement_multiplier"`

	Distribution map[string]string `yaml:"distribution"`

	Percentiles []struct {
		Max        string `yaml:"max"`
		Percentile string `yaml:"percentile"`
	} `yaml:"percentiles"`
	PlatformAverageCVPI string `yaml:"platform_average_cvpi"`
}

// LoadFile reads YAML overrides from path and applies them on top of
// Default. Omitted keys keep their default values.
func LoadFile(path string) (Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read tables file: %w", err)
	}
	return Parse(raw)
}

// Parse applies YAML overrides to Default and validates the result.
func Parse(raw []byte) (Tables, error) {
	var f fileTables
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return Tables{}, fmt.Errorf("%w: %v", ErrInvalidTables, err)
	}
	t := Default()
	p := &overrideParser{}

	if len(f.BudgetTiers) > 0 {
		t.BudgetTiers = make([]BudgetTier, 0, len(f.BudgetTiers))
		for i, bt := range f.BudgetTiers {
			t.BudgetTiers = append(t.BudgetTiers, BudgetTier{
				UpperBound: p.dec(fmt.Sprintf("budget_tiers[%d].upper_bound", i), bt.UpperBound),
				Rate:       p.dec(fmt.Sprintf("budget_tiers[%d].rate", i), bt.Rate),
			})
		}
	}
	p.set("top_rate", f.TopRate, &t.TopRate)

	for k, v := range f.Complexity {
		switch strings.ToUpper(k) {
		case "SIMPLE":
			p.set("complexity.simple", v, &t.Complexity.Simple)
		case "STANDARD":
			p.set("complexity.standard", v, &t.Complexity.Standard)
		case "MID":
			p.set("complexity.mid", v, &t.Complexity.Mid)
		case "COMPLEX":
			p.set("complexity.complex", v, &t.Complexity.Complex)
		default:
			p.fail("complexity: unknown tag %q", k)
		}
	}

	p.set("token_discount_rate", f.TokenDiscountRate, &t.TokenDiscountRate)
	p.set("token_price", f.TokenPrice, &t.TokenPrice)

	if len(f.OracleSourceCosts) > 0 {
		costs := make(map[string]decimal.Decimal, len(t.Oracle.SourceCosts)+len(f.OracleSourceCosts))
		for k, v := range t.Oracle.SourceCosts {
			costs[k] = v
		}
		for k, v := range f.OracleSourceCosts {
			costs[strings.ToUpper(k)] = p.dec("oracle_source_costs."+k, v)
		}
		t.Oracle.SourceCosts = costs
	}

	p.set("escrow_buffer_rate", f.EscrowBufferRate, &t.EscrowBufferRate)
	if f.EstimateValidity != "" {
		v, err := time.ParseDuration(f.EstimateValidity)
		if err != nil {
			p.fail("estimate_validity: %v", err)
		}
		t.EstimateValidity = v
	}
	p.set("platform_fee_rate", f.PlatformFeeRate, &t.PlatformFeeRate)
	p.set("max_achievement_multiplier", f.MaxAchievementMultiplier, &t.MaxAchievementMultiplier)

	if len(f.Distribution) > 0 {
		layers := make([]Layer, 0, len(t.Distribution.Layers))
		for _, l := range t.Distribution.Layers {
			if v, ok := f.Distribution[l.Key]; ok {
				l.Share = p.dec("distribution."+l.Key, v)
			}
			layers = append(layers, l)
		}
		for k := range f.Distribution {
			if !hasLayer(layers, k) {
				p.fail("distribution: unknown layer %q", k)
			}
		}
		t.Distribution.Layers = layers
	}

	if len(f.Percentiles) > 0 {
		t.Percentiles = make([]Breakpoint, 0, len(f.Percentiles))
		for i, b := range f.Percentiles {
			t.Percentiles = append(t.Percentiles, Breakpoint{
				Max:        p.dec(fmt.Sprintf("percentiles[%d].max", i), b.Max),
				Percentile: p.dec(fmt.Sprintf("percentiles[%d].percentile", i), b.Percentile),
			})
		}
	}
	p.set("platform_average_cvpi", f.PlatformAverageCVPI, &t.Recommendation.PlatformAverageCVPI)

	if p.err != nil {
		return Tables{}, p.err
	}
	if err := t.Validate(); err != nil {
		return Tables{}, err
	}
	return t, nil
}

type overrideParser struct {
	err error
}

func (p *overrideParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: "+format, append([]any{ErrInvalidTables}, args...)...)
	}
}

func (p *overrideParser) dec(field, s string) decimal.Decimal {
	v, ok := money.Parse(s)
	if !ok {
		p.fail("%s: %q is not a decimal", field, s)
	}
	return v
}

func (p *overrideParser) set(field, s string, dst *decimal.Decimal) {
	if s == "" {
		return
	}
	*dst = p.dec(field, s)
}

func hasLayer(layers []Layer, key string) bool {
	for _, l := range layers {
		if l.Key == key {
			return true
		}
	}
	return false
}
