package state

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
)

// Position holds settled position magnitudes at a given oracle timestamp.
// The same shape serves both per-account positions and the global aggregate;
// at any settled timestamp the aggregate equals the sum of all per-account
// positions. Superseded positions are immutable history.
type Position struct {
	Timestamp int64 // oracle timestamp (unix seconds)
	Maker     fixed.Dec
	Long      fixed.Dec
	Short     fixed.Dec
}

// Magnitude returns the largest single-side magnitude, the basis for
// margin and maintenance requirements.
func (p *Position) Magnitude() fixed.Dec {
	return fixed.Max(p.Maker, fixed.Max(p.Long, p.Short))
}

// Major returns the larger taker side.
func (p *Position) Major() fixed.Dec {
	return fixed.Max(p.Long, p.Short)
}

// Minor returns the smaller taker side.
func (p *Position) Minor() fixed.Dec {
	return fixed.Min(p.Long, p.Short)
}

// Skew returns the signed net taker imbalance (long - short).
func (p *Position) Skew() fixed.Dec {
	return p.Long.Sub(p.Short)
}

// Empty reports whether the position has no exposure on any side.
func (p *Position) Empty() bool {
	return p.Maker.IsZero() && p.Long.IsZero() && p.Short.IsZero()
}

// Utilization returns major / (maker + minor), the fraction of available
// liquidity consumed by the dominant taker side. 1 when takers are entirely
// unbacked, 0 when there are no takers.
func (p *Position) Utilization() fixed.Dec {
	major := p.Major()
	if major.IsZero() {
		return 0
	}
	liquidity := p.Maker.Add(p.Minor())
	if liquidity.IsZero() {
		return fixed.One
	}
	return fixed.Min(fixed.One, major.Div(liquidity))
}

// Socialization returns min(1, (maker + minor) / major): the factor by which
// the major side's accrual is scaled when maker capacity cannot back the
// outstanding taker exposure.
func (p *Position) Socialization() fixed.Dec {
	major := p.Major()
	if major.IsZero() {
		return fixed.One
	}
	return fixed.Min(fixed.One, p.Maker.Add(p.Minor()).Div(major))
}

// Efficiency returns min(1, maker / major), the open-interest coverage
// ratio checked against RiskParameter.EfficiencyLimit on opens.
func (p *Position) Efficiency() fixed.Dec {
	major := p.Major()
	if major.IsZero() {
		return fixed.One
	}
	if p.Maker.IsZero() {
		return 0
	}
	return fixed.Min(fixed.One, p.Maker.Div(major))
}

// Notional returns magnitude * price.
func (p *Position) Notional(price fixed.Dec) fixed.Dec {
	return p.Magnitude().Mul(price.Abs())
}

// Maintenance returns the collateral required to avoid liquidation:
// max(minMaintenance, notional * maintenance ratio). Zero for empty positions.
func (p *Position) Maintenance(price fixed.Dec, risk *params.RiskParameter) fixed.Dec {
	if p.Empty() {
		return 0
	}
	return fixed.Max(risk.MinMaintenance, p.Notional(price).Mul(risk.Maintenance))
}

// Margin returns the tighter collateral requirement for opening or
// increasing exposure: max(minMargin, notional * margin ratio).
func (p *Position) Margin(price fixed.Dec, risk *params.RiskParameter) fixed.Dec {
	if p.Empty() {
		return 0
	}
	return fixed.Max(risk.MinMargin, p.Notional(price).Mul(risk.Margin))
}

// ApplyOrder drains an order's deltas into the position, advancing its
// timestamp. The caller guarantees non-negativity was checked at admission.
func (p *Position) ApplyOrder(o *Order) {
	p.Timestamp = o.Timestamp
	p.Maker = p.Maker.Add(o.MakerDelta())
	p.Long = p.Long.Add(o.LongDelta())
	p.Short = p.Short.Add(o.ShortDelta())
}

// Clone returns an independent copy.
func (p *Position) Clone() *Position {
	c := *p
	return &c
}
