package accrual

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
	"PerpSettle/internal/state"
)

// SecondsPerYear annualizes per-second accrual intervals.
const SecondsPerYear = 365 * 24 * 60 * 60

// Funding is the outcome of one funding interval. Amounts are absolute;
// PayerLong records which taker side was charged.
type Funding struct {
	PAccumulator fixed.Dec // controller state after the interval
	Amount       fixed.Dec // total charged to the payer side
	PayerLong    bool

	ChargePerUnit  fixed.Dec // per unit of payer exposure
	ReceivePerUnit fixed.Dec // per unit of maker + non-payer exposure
	ProtocolCut    fixed.Dec
	Dust           fixed.Dec // truncation residue, folded into the protocol fee
}

// AccrueFunding advances the funding P-controller over [from.Timestamp, now]
// and charges the side the accumulator points at. The protocol keeps its
// configured cut, the remainder is split pro-rata between makers and the
// opposite taker side.
func AccrueFunding(pos *state.Position, p0, price fixed.Dec, elapsed int64, risk *params.RiskParameter, market *params.MarketParameter) Funding {
	out := Funding{PAccumulator: p0}
	if elapsed <= 0 || pos.Empty() {
		return out
	}

	skewNorm := pos.Skew().Div(risk.TakerFee.Scale)
	dt := fixed.FromInt(elapsed)

	// Controller gain acts per second on the normalized skew. Multiplying by
	// the interval first keeps small gains from truncating to zero.
	p1 := p0.Add(risk.PController.K.Mul(dt).Mul(skewNorm))
	p1 = fixed.Clamp(p1, risk.PController.Min, risk.PController.Max)
	out.PAccumulator = p1

	avg := p0.Add(p1).Div(fixed.FromInt(2))
	if avg.IsZero() {
		return out
	}
	out.PayerLong = avg.Sign() > 0

	payer, other := pos.Long, pos.Short
	if !out.PayerLong {
		payer, other = pos.Short, pos.Long
	}
	if payer.IsZero() {
		return out
	}

	// Annualized rate applied to the payer's notional over the interval.
	total := avg.Abs().Mul(price).Mul(payer).MulDiv(dt, fixed.FromInt(SecondsPerYear))
	out.ChargePerUnit = total.Div(payer)
	charged := out.ChargePerUnit.Mul(payer)
	out.Amount = charged

	out.ProtocolCut = charged.Mul(market.FundingFee)
	remainder := charged.Sub(out.ProtocolCut)

	// The receive base must match who actually collects: makers plus the
	// side opposite the payer. When the accumulator's sign lags a skew flip
	// the payer is the minor side, so the opposite side is not Minor().
	recv := pos.Maker.Add(other)
	if recv.IsZero() {
		// Nobody on the other side of the book: the protocol absorbs it.
		out.Dust = remainder
		return out
	}
	out.ReceivePerUnit = remainder.Div(recv)
	out.Dust = remainder.Sub(out.ReceivePerUnit.Mul(recv))
	return out
}
