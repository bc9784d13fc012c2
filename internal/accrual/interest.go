package accrual

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
	"PerpSettle/internal/state"
)

// Interest is the outcome of one interest interval. Both taker sides pay the
// same per-unit charge; makers receive the remainder after the protocol cut.
type Interest struct {
	Rate fixed.Dec // annualized rate at the interval's utilization

	ChargePerUnit  fixed.Dec // per unit of long + short exposure
	ReceivePerUnit fixed.Dec // per unit of maker exposure
	Amount         fixed.Dec
	ProtocolCut    fixed.Dec
	Dust           fixed.Dec
}

// AccrueInterest charges both taker sides the utilization-curve rate on their
// notional over the interval and pays the remainder to makers.
func AccrueInterest(pos *state.Position, price fixed.Dec, elapsed int64, risk *params.RiskParameter, market *params.MarketParameter) Interest {
	out := Interest{}
	takers := pos.Long.Add(pos.Short)
	if elapsed <= 0 || takers.IsZero() {
		return out
	}

	out.Rate = risk.UtilizationCurve.Rate(pos.Utilization())
	if out.Rate.IsZero() {
		return out
	}

	dt := fixed.FromInt(elapsed)
	out.ChargePerUnit = out.Rate.Mul(price).MulDiv(dt, fixed.FromInt(SecondsPerYear))
	charged := out.ChargePerUnit.Mul(takers)
	out.Amount = charged

	out.ProtocolCut = charged.Mul(market.InterestFee)
	remainder := charged.Sub(out.ProtocolCut)

	if pos.Maker.IsZero() {
		out.Dust = remainder
		return out
	}
	out.ReceivePerUnit = remainder.Div(pos.Maker)
	out.Dust = remainder.Sub(out.ReceivePerUnit.Mul(pos.Maker))
	return out
}
