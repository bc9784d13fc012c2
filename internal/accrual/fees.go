package accrual

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
	"PerpSettle/internal/state"
)

// Trade is the fee outcome of the orders settling at one version. Per-unit
// values let each account be billed for exactly its share of the merged
// global order.
type Trade struct {
	TakerFeePerUnit    fixed.Dec // linear + proportional, per unit of fee-bearing taker volume
	TakerImpactPerUnit fixed.Dec // signed price impact, per unit of fee-bearing taker volume
	MakerFeePerUnit    fixed.Dec // per unit of maker volume

	MakerCreditPerUnit fixed.Dec // taker-fee share paid to resting makers, per maker unit

	Referral    fixed.Dec // carved out for referrers, order and intent alike
	Impact      fixed.Dec // signed price-impact total, accrues to the exposure pool
	ProtocolFee fixed.Dec
	RiskFee     fixed.Dec
	OracleFee   fixed.Dec
	Total       fixed.Dec // taker + maker fees billed at this version
}

// AccrueTrade prices the merged global order against the book it lands on.
// Intent volume marked fee-exempt in the guarantee skips taker fees entirely.
// Referrals are carved from the linear component, then the maker share of the
// remaining taker fees is credited to resting makers, and the rest is split
// between the protocol, risk, and oracle accumulators. Split residue stays
// with the protocol.
func AccrueTrade(pos *state.Position, order *state.Order, g *state.Guarantee, price fixed.Dec, risk *params.RiskParameter, market *params.MarketParameter) Trade {
	out := Trade{}
	if order.PositionEmpty() {
		return out
	}

	exempt := g.TakerTotal().Sub(g.TakerFee)
	feeVolume := order.TakerTotal().Sub(exempt)
	if feeVolume.Sign() < 0 {
		feeVolume = 0
	}

	skewBefore := pos.Skew().Div(risk.TakerFee.Scale)
	skewAfter := pos.Skew().Add(order.TakerDelta()).Div(risk.TakerFee.Scale)

	// Taker side: linear plus proportional on the post-trade skew.
	out.TakerFeePerUnit = price.Mul(risk.TakerFee.LinearFee).
		Add(price.Mul(risk.TakerFee.ProportionalFee).Mul(skewAfter.Abs()))
	takerFee := out.TakerFeePerUnit.Mul(feeVolume)

	// Price impact integrates the adiabatic rate along the skew path, which
	// reduces to mean normalized skew times the skew change. It is signed:
	// reducing the skew magnitude earns a rebate from the pool.
	if delta := order.TakerDelta(); !feeVolume.IsZero() && !delta.IsZero() {
		mean := skewBefore.Add(skewAfter).Div(fixed.FromInt(2))
		out.Impact = risk.TakerFee.AdiabaticFee.Mul(price).Mul(mean).Mul(delta)
		out.TakerImpactPerUnit = out.Impact.Div(feeVolume)
		out.Impact = out.TakerImpactPerUnit.Mul(feeVolume)
	}

	// Maker side: linear plus proportional, no impact component.
	makerVolume := order.MakerTotal()
	out.MakerFeePerUnit = price.Mul(risk.MakerFee.LinearFee).
		Add(price.Mul(risk.MakerFee.ProportionalFee).Mul(skewAfter.Abs()))
	makerFee := out.MakerFeePerUnit.Mul(makerVolume)

	out.Total = takerFee.Add(makerFee)

	takerReferral := order.TakerReferral.Add(g.CarveoutVolume()).
		Mul(price).Mul(risk.TakerFee.LinearFee)
	makerReferral := order.MakerReferral.Mul(price).Mul(risk.MakerFee.LinearFee)
	out.Referral = takerReferral.Add(makerReferral)

	takerPool := takerFee.Sub(takerReferral)
	if takerPool.Sign() < 0 {
		takerPool = 0
	}

	if !pos.Maker.IsZero() {
		share := takerPool.Mul(market.MakerShare)
		out.MakerCreditPerUnit = share.Div(pos.Maker)
		takerPool = takerPool.Sub(out.MakerCreditPerUnit.Mul(pos.Maker))
	}

	marketFee := takerPool.Add(makerFee.Sub(makerReferral))
	out.RiskFee = marketFee.Mul(market.RiskShare)
	out.OracleFee = marketFee.Mul(market.OracleShare)
	out.ProtocolFee = marketFee.Sub(out.RiskFee).Sub(out.OracleFee)
	return out
}
