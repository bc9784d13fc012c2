package state

import (
	"PerpSettle/internal/fixed"
)

// Order accumulates the not-yet-settled deltas queued at one oracle
// timestamp. Multiple updates landing in the same pending timestamp bucket
// merge additively into a single Order; the settlement engine consumes the
// Order once the Version for its timestamp is available.
type Order struct {
	Timestamp int64
	Orders    int64 // count of merged updates with a position delta

	MakerPos fixed.Dec
	MakerNeg fixed.Dec
	LongPos  fixed.Dec
	LongNeg  fixed.Dec
	ShortPos fixed.Dec
	ShortNeg fixed.Dec

	// Collateral is the net deposit (+) / withdrawal (-) riding with the
	// order. Transfers settle even when the version is invalid.
	Collateral fixed.Dec

	// Referral-bearing volume, carved out of the linear fee component at
	// settlement: |delta| * referral rate at admission time.
	MakerReferral fixed.Dec
	TakerReferral fixed.Dec

	// Protection marks a liquidation-originated order: no trading fee,
	// flat liquidation fee instead.
	Protection int64

	// Invalidation counts position deltas dropped because their version
	// settled invalid.
	Invalidation int64
}

// NewOrder builds an order from signed side deltas.
func NewOrder(timestamp int64, makerDelta, longDelta, shortDelta, collateral fixed.Dec) *Order {
	o := &Order{Timestamp: timestamp, Collateral: collateral}

	if makerDelta.Sign() > 0 {
		o.MakerPos = makerDelta
	} else {
		o.MakerNeg = makerDelta.Neg()
	}
	if longDelta.Sign() > 0 {
		o.LongPos = longDelta
	} else {
		o.LongNeg = longDelta.Neg()
	}
	if shortDelta.Sign() > 0 {
		o.ShortPos = shortDelta
	} else {
		o.ShortNeg = shortDelta.Neg()
	}

	if !o.PositionEmpty() {
		o.Orders = 1
	}
	return o
}

// MakerDelta returns the signed maker change.
func (o *Order) MakerDelta() fixed.Dec { return o.MakerPos.Sub(o.MakerNeg) }

// LongDelta returns the signed long change.
func (o *Order) LongDelta() fixed.Dec { return o.LongPos.Sub(o.LongNeg) }

// ShortDelta returns the signed short change.
func (o *Order) ShortDelta() fixed.Dec { return o.ShortPos.Sub(o.ShortNeg) }

// TakerDelta returns the signed net taker change (long - short).
func (o *Order) TakerDelta() fixed.Dec { return o.LongDelta().Sub(o.ShortDelta()) }

// MakerTotal returns the unsigned maker volume.
func (o *Order) MakerTotal() fixed.Dec { return o.MakerPos.Add(o.MakerNeg) }

// TakerTotal returns the unsigned taker volume across both sides.
func (o *Order) TakerTotal() fixed.Dec {
	return o.LongPos.Add(o.LongNeg).Add(o.ShortPos).Add(o.ShortNeg)
}

// PositionEmpty reports whether the order carries no position deltas
// (a pure collateral transfer or bare settlement).
func (o *Order) PositionEmpty() bool {
	return o.MakerTotal().IsZero() && o.TakerTotal().IsZero()
}

// Empty reports whether the order carries nothing at all.
func (o *Order) Empty() bool {
	return o.PositionEmpty() && o.Collateral.IsZero()
}

// IncreasesRisk reports whether any side's exposure grows, the condition
// refused when the market is closed.
func (o *Order) IncreasesRisk() bool {
	return o.MakerPos.Sign() > 0 || o.LongPos.Sign() > 0 || o.ShortPos.Sign() > 0
}

// IncreasesTaker reports whether taker exposure grows on either side.
func (o *Order) IncreasesTaker() bool {
	return o.LongPos.Sign() > 0 || o.ShortPos.Sign() > 0
}

// Protected reports whether this order originated from a liquidation.
func (o *Order) Protected() bool { return o.Protection > 0 }

// Merge folds another order at the same timestamp into this one.
func (o *Order) Merge(other *Order) {
	o.Orders += other.Orders
	o.MakerPos = o.MakerPos.Add(other.MakerPos)
	o.MakerNeg = o.MakerNeg.Add(other.MakerNeg)
	o.LongPos = o.LongPos.Add(other.LongPos)
	o.LongNeg = o.LongNeg.Add(other.LongNeg)
	o.ShortPos = o.ShortPos.Add(other.ShortPos)
	o.ShortNeg = o.ShortNeg.Add(other.ShortNeg)
	o.Collateral = o.Collateral.Add(other.Collateral)
	o.MakerReferral = o.MakerReferral.Add(other.MakerReferral)
	o.TakerReferral = o.TakerReferral.Add(other.TakerReferral)
	o.Protection += other.Protection
	o.Invalidation += other.Invalidation
}

// Invalidate strips the order's position deltas, leaving only the
// collateral transfer. Called when the order's version settles invalid.
func (o *Order) Invalidate() {
	o.MakerPos, o.MakerNeg = 0, 0
	o.LongPos, o.LongNeg = 0, 0
	o.ShortPos, o.ShortNeg = 0, 0
	o.MakerReferral, o.TakerReferral = 0, 0
	o.Invalidation++
}

// Clone returns an independent copy.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
