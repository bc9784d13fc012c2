package state

import (
	"PerpSettle/internal/fixed"
)

// Version is the immutable settlement record created exactly once per
// confirmed oracle timestamp. The six value fields are cumulative per-unit
// accumulators (values, not deltas):
//
//   - PreValue includes everything accrued over the interval ending at this
//     timestamp (pnl, funding, interest), credited to positions that were
//     open during the interval.
//   - PostValue additionally includes the credits attached to orders
//     settling at this timestamp (maker fee distribution, socialization
//     adjustments), the baseline for positions entering here.
//
// An account settling its position from timestamp A to timestamp B is
// credited fromPosition * (PostValue[B] - PostValue[A]) per side.
type Version struct {
	Timestamp int64
	Price     fixed.Dec
	Valid     bool

	MakerPreValue fixed.Dec
	LongPreValue  fixed.Dec
	ShortPreValue fixed.Dec

	MakerPostValue fixed.Dec
	LongPostValue  fixed.Dec
	ShortPostValue fixed.Dec
}

// SideDelta returns the per-unit accumulator movement between two versions
// for the given position, from's values marking the baseline.
func (v *Version) SideDelta(from *Version, pos *Position) fixed.Dec {
	out := pos.Maker.Mul(v.MakerPostValue.Sub(from.MakerPostValue))
	out = out.Add(pos.Long.Mul(v.LongPostValue.Sub(from.LongPostValue)))
	out = out.Add(pos.Short.Mul(v.ShortPostValue.Sub(from.ShortPostValue)))
	return out
}
