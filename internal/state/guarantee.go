package state

import (
	"PerpSettle/internal/fixed"
)

// Guarantee overlays an intent-filled Order. It records the off-market
// agreed notional so settlement can adjust each party's collateral to the
// agreed price instead of the oracle price, while the position delta itself
// rides through ordinary Order bookkeeping for funding and interest.
type Guarantee struct {
	Orders int64

	LongPos  fixed.Dec
	LongNeg  fixed.Dec
	ShortPos fixed.Dec
	ShortNeg fixed.Dec

	// Notional is the signed agreed value: taker delta * intent price.
	Notional fixed.Dec

	// TakerFee is the taker volume that still bills ordinary fees. Fills on
	// a fee-exempt intent flow leave this zero while keeping the volume in
	// the Order for funding/interest purposes.
	TakerFee fixed.Dec

	// Carveouts are the referral-bearing volumes owed to named parties
	// (intent originator, solver) at settlement.
	Carveouts []Carveout
}

// Carveout routes a referral-bearing volume to a named party's claimable
// balance when the fill settles. An empty address pays the protocol.
type Carveout struct {
	Address string
	Volume  fixed.Dec
}

// NewGuarantee builds the overlay for one party of an intent fill.
// takerDelta is signed (+ long, - short); price is the agreed intent price.
func NewGuarantee(takerDelta, price, feeVolume fixed.Dec, carveouts ...Carveout) *Guarantee {
	g := &Guarantee{
		Orders:   1,
		Notional: takerDelta.Mul(price),
		TakerFee: feeVolume,
	}
	for _, c := range carveouts {
		if !c.Volume.IsZero() {
			g.Carveouts = append(g.Carveouts, c)
		}
	}
	if takerDelta.Sign() > 0 {
		g.LongPos = takerDelta
	} else {
		g.ShortPos = takerDelta.Neg()
	}
	return g
}

// TakerDelta returns the signed filled amount.
func (g *Guarantee) TakerDelta() fixed.Dec {
	return g.LongPos.Sub(g.LongNeg).Sub(g.ShortPos.Sub(g.ShortNeg))
}

// TakerTotal returns the unsigned filled volume.
func (g *Guarantee) TakerTotal() fixed.Dec {
	return g.LongPos.Add(g.LongNeg).Add(g.ShortPos).Add(g.ShortNeg)
}

// Empty reports whether the overlay carries nothing.
func (g *Guarantee) Empty() bool {
	return g.Orders == 0 && g.TakerTotal().IsZero() && g.Notional.IsZero()
}

// PriceAdjustment returns the collateral correction settling the fill at the
// agreed price rather than the oracle price:
// filled * oracle_price - agreed notional.
func (g *Guarantee) PriceAdjustment(oraclePrice fixed.Dec) fixed.Dec {
	return g.TakerDelta().Mul(oraclePrice).Sub(g.Notional)
}

// Merge folds another guarantee at the same timestamp into this one.
func (g *Guarantee) Merge(other *Guarantee) {
	g.Orders += other.Orders
	g.LongPos = g.LongPos.Add(other.LongPos)
	g.LongNeg = g.LongNeg.Add(other.LongNeg)
	g.ShortPos = g.ShortPos.Add(other.ShortPos)
	g.ShortNeg = g.ShortNeg.Add(other.ShortNeg)
	g.Notional = g.Notional.Add(other.Notional)
	g.TakerFee = g.TakerFee.Add(other.TakerFee)
	g.Carveouts = append(g.Carveouts, other.Carveouts...)
}

// CarveoutVolume returns the total referral-bearing volume across carveouts.
func (g *Guarantee) CarveoutVolume() fixed.Dec {
	var total fixed.Dec
	for _, c := range g.Carveouts {
		total = total.Add(c.Volume)
	}
	return total
}

// Clone returns an independent copy.
func (g *Guarantee) Clone() *Guarantee {
	c := *g
	c.Carveouts = append([]Carveout(nil), g.Carveouts...)
	return &c
}
