// Package allocation buckets symbols into market-cap tiers and sizes new buys
// against per-tier budgets fixed at startup.
package allocation

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fibtrader/internal/md"
)

type Tier string

const (
	Speculative Tier = "speculative"
	SmallCap    Tier = "small_cap"
	LargeCap    Tier = "large_cap"
)

// Tiers in classification order.
var Tiers = []Tier{Speculative, SmallCap, LargeCap}

func ParseTier(value string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(value))) {
	case Speculative:
		return Speculative, nil
	case SmallCap:
		return SmallCap, nil
	case LargeCap:
		return LargeCap, nil
	default:
		return "", fmt.Errorf("unknown tier %q", value)
	}
}

// Policy holds member caps per tier and the market-cap boundaries between
// tiers. Boundaries are inclusive upper bounds.
type Policy struct {
	Caps           map[Tier]int
	SpeculativeMax float64
	SmallCapMax    float64
}

func DefaultPolicy() Policy {
	return Policy{
		Caps: map[Tier]int{
			Speculative: 5,
			SmallCap:    10,
			LargeCap:    10,
		},
		SpeculativeMax: 350_000_000,
		SmallCapMax:    2_000_000_000,
	}
}

func (p Policy) totalMembers() int {
	total := 0
	for _, n := range p.Caps {
		total += n
	}
	return total
}

// Holding is the part of a position the manager needs to count tier members.
// An empty Tier means the tier was never recorded.
type Holding struct {
	Ticker string
	Tier   string
}

type Manager struct {
	policy   Policy
	budgets  map[Tier]decimal.Decimal
	provider md.Provider
	log      zerolog.Logger
}

// NewManager precomputes per-position budgets from initialCapital. They are
// never recomputed during a run.
func NewManager(initialCapital decimal.Decimal, policy Policy, provider md.Provider, log zerolog.Logger) *Manager {
	m := &Manager{
		policy:   policy,
		budgets:  make(map[Tier]decimal.Decimal, len(Tiers)),
		provider: provider,
		log:      log.With().Str("component", "allocation").Logger(),
	}
	total := decimal.NewFromInt(int64(policy.totalMembers()))
	for _, tier := range Tiers {
		members := decimal.NewFromInt(int64(policy.Caps[tier]))
		if members.IsZero() || total.IsZero() {
			m.budgets[tier] = decimal.Zero
			continue
		}
		tierCapital := initialCapital.Mul(members).Div(total)
		m.budgets[tier] = tierCapital.Div(members)
	}
	return m
}

func (m *Manager) Classify(marketCap float64) Tier {
	switch {
	case marketCap <= m.policy.SpeculativeMax:
		return Speculative
	case marketCap <= m.policy.SmallCapMax:
		return SmallCap
	default:
		return LargeCap
	}
}

// Budget is the capital available to one new position in tier.
func (m *Manager) Budget(tier Tier) decimal.Decimal {
	return m.budgets[tier]
}

func (m *Manager) Cap(tier Tier) int {
	return m.policy.Caps[tier]
}

// Size returns the share count for a new buy, or 0 when the tier is full or
// the budget does not cover a single share.
func (m *Manager) Size(tier Tier, price decimal.Decimal, held int) int {
	if held >= m.policy.Caps[tier] || !price.IsPositive() {
		return 0
	}
	return int(m.budgets[tier].Div(price).Floor().IntPart())
}

// HeldInTier counts holdings that belong to tier. Holdings with no recorded
// tier are classified through the quote provider; failures are logged and
// the holding is not counted.
func (m *Manager) HeldInTier(ctx context.Context, tier Tier, holdings []Holding) int {
	count := 0
	for _, h := range holdings {
		t, err := ParseTier(h.Tier)
		if err != nil {
			t, err = m.classifyTicker(ctx, h.Ticker)
			if err != nil {
				m.log.Warn().Err(err).Str("symbol", h.Ticker).Msg("tier lookup failed")
				continue
			}
		}
		if t == tier {
			count++
		}
	}
	return count
}

func (m *Manager) classifyTicker(ctx context.Context, ticker string) (Tier, error) {
	if m.provider == nil {
		return "", fmt.Errorf("classify %s: %w", ticker, md.ErrDataUnavailable)
	}
	q, err := m.provider.Quote(ctx, ticker)
	if err != nil {
		return "", err
	}
	return m.Classify(q.MarketCap), nil
}
