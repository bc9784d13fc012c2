package accrual

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/state"
)

// PNL is the outcome of marking one price move against the book. Per-unit
// values are signed credits; the three totals net to zero before dust.
type PNL struct {
	LongPerUnit  fixed.Dec
	ShortPerUnit fixed.Dec
	MakerPerUnit fixed.Dec
	Dust         fixed.Dec
}

// AccruePNL marks the move from price0 to price1 against the from-position.
// When maker capacity plus the minor side cannot cover the major side, the
// major side's exposure is capped at the covered portion so that the uncovered
// excess neither gains nor loses. Makers absorb the exact counterweight, which
// keeps the step zero-sum up to per-unit truncation.
func AccruePNL(pos *state.Position, price0, price1 fixed.Dec) PNL {
	out := PNL{}
	move := price1.Sub(price0)
	if move.IsZero() || pos.Empty() {
		return out
	}

	longEff, shortEff := pos.Long, pos.Short
	if pos.Long > pos.Short {
		longEff = fixed.Min(pos.Long, pos.Maker.Add(pos.Short))
	} else if pos.Short > pos.Long {
		shortEff = fixed.Min(pos.Short, pos.Maker.Add(pos.Long))
	}

	var longTotal, shortTotal fixed.Dec
	if !pos.Long.IsZero() {
		longTotal = move.Mul(longEff)
		out.LongPerUnit = longTotal.Div(pos.Long)
		longTotal = out.LongPerUnit.Mul(pos.Long)
	}
	if !pos.Short.IsZero() {
		shortTotal = move.Neg().Mul(shortEff)
		out.ShortPerUnit = shortTotal.Div(pos.Short)
		shortTotal = out.ShortPerUnit.Mul(pos.Short)
	}

	makerTotal := longTotal.Add(shortTotal).Neg()
	if pos.Maker.IsZero() {
		out.Dust = makerTotal
		return out
	}
	out.MakerPerUnit = makerTotal.Div(pos.Maker)
	out.Dust = makerTotal.Sub(out.MakerPerUnit.Mul(pos.Maker))
	return out
}
