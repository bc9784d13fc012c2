// Package accrual holds the pure settlement math: funding, interest, pnl
// socialization, and trade fee pricing. Every function is deterministic over
// its inputs so that two replicas replaying the same oracle stream produce
// bit-identical versions.
package accrual

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
	"PerpSettle/internal/state"
)

// Result is a fully accumulated version step: the new version record plus the
// global fee movements the engine folds into its accumulators.
type Result struct {
	Version      state.Version
	PAccumulator fixed.Dec

	Trade    Trade
	Funding  Funding
	Interest Interest

	SettlementFeePerOrder fixed.Dec
	SettlementFee         fixed.Dec // total collected across settling orders

	ProtocolFee fixed.Dec // includes protocol cuts and all truncation dust
	RiskFee     fixed.Dec
	OracleFee   fixed.Dec // includes the collected settlement fee
	Impact      fixed.Dec // signed delta for the exposure pool
}

// Accumulate advances the accumulator from the previous version to a new one
// at (ts, price). The interval accruals (pnl, funding, interest) are earned by
// the from-position over the elapsed time; the order-time credits (maker fee
// share) land in the post values so that accounts entering at this version do
// not collect them.
//
// An invalid oracle version carries every per-unit value and the previous
// price forward unchanged. Position deltas are dropped by the caller; only the
// settlement fee is still collected, since the keeper committed the version
// either way.
func Accumulate(
	from *state.Version,
	pos *state.Position,
	order *state.Order,
	g *state.Guarantee,
	ts int64,
	price fixed.Dec,
	valid bool,
	settlementFee fixed.Dec,
	p0 fixed.Dec,
	risk *params.RiskParameter,
	market *params.MarketParameter,
) Result {
	out := Result{PAccumulator: p0}

	out.SettlementFee, out.SettlementFeePerOrder = collectSettlementFee(settlementFee, order.Orders)
	out.OracleFee = out.SettlementFee

	if !valid {
		out.Version = state.Version{
			Timestamp:      ts,
			Price:          from.Price,
			Valid:          false,
			MakerPreValue:  from.MakerPostValue,
			LongPreValue:   from.LongPostValue,
			ShortPreValue:  from.ShortPostValue,
			MakerPostValue: from.MakerPostValue,
			LongPostValue:  from.LongPostValue,
			ShortPostValue: from.ShortPostValue,
		}
		return out
	}

	elapsed := ts - from.Timestamp

	pnl := AccruePNL(pos, from.Price, price)
	out.Funding = AccrueFunding(pos, p0, price, elapsed, risk, market)
	out.Interest = AccrueInterest(pos, price, elapsed, risk, market)
	out.PAccumulator = out.Funding.PAccumulator

	makerPre := from.MakerPostValue.
		Add(pnl.MakerPerUnit).
		Add(out.Funding.ReceivePerUnit).
		Add(out.Interest.ReceivePerUnit)
	longPre := from.LongPostValue.
		Add(pnl.LongPerUnit).
		Sub(out.Interest.ChargePerUnit)
	shortPre := from.ShortPostValue.
		Add(pnl.ShortPerUnit).
		Sub(out.Interest.ChargePerUnit)

	if out.Funding.PayerLong {
		longPre = longPre.Sub(out.Funding.ChargePerUnit)
		shortPre = shortPre.Add(out.Funding.ReceivePerUnit)
	} else {
		shortPre = shortPre.Sub(out.Funding.ChargePerUnit)
		longPre = longPre.Add(out.Funding.ReceivePerUnit)
	}

	out.Trade = AccrueTrade(pos, order, g, price, risk, market)
	out.Impact = out.Trade.Impact

	out.ProtocolFee = out.Funding.ProtocolCut.Add(out.Funding.Dust).
		Add(out.Interest.ProtocolCut).Add(out.Interest.Dust).
		Add(pnl.Dust).
		Add(out.Trade.ProtocolFee)
	out.RiskFee = out.Trade.RiskFee
	out.OracleFee = out.OracleFee.Add(out.Trade.OracleFee)

	out.Version = state.Version{
		Timestamp:      ts,
		Price:          price,
		Valid:          true,
		MakerPreValue:  makerPre,
		LongPreValue:   longPre,
		ShortPreValue:  shortPre,
		MakerPostValue: makerPre.Add(out.Trade.MakerCreditPerUnit),
		LongPostValue:  longPre,
		ShortPostValue: shortPre,
	}
	return out
}

// collectSettlementFee splits a flat keeper fee evenly across the orders
// settling at the version. The residue of the division is simply not charged.
func collectSettlementFee(fee fixed.Dec, orders int64) (total, perOrder fixed.Dec) {
	if orders <= 0 || fee.IsZero() {
		return 0, 0
	}
	perOrder = fee.Div(fixed.FromInt(orders))
	return perOrder.Mul(fixed.FromInt(orders)), perOrder
}
