package engine

import (
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/state"
)

// account is the engine's per-account bookkeeping: the settled position and
// collateral, the ids, and everything still waiting on an oracle version.
type account struct {
	address string

	local      state.Local
	position   state.Position
	collateral fixed.Dec
	checkpoint state.Checkpoint

	// latestVersion is the version record the account last settled at. The
	// next settlement credits the difference of post values on the position
	// held since then.
	latestVersion state.Version

	pending     map[int64]*state.Order
	guarantees  map[int64]*state.Guarantee
	liquidators map[int64]string
	timestamps  []int64 // pending version timestamps, ascending

	referrer string
}

func newAccount(address string) *account {
	return &account{
		address:     address,
		pending:     make(map[int64]*state.Order),
		guarantees:  make(map[int64]*state.Guarantee),
		liquidators: make(map[int64]string),
	}
}

// enqueue merges an order (and optional guarantee) into the account's pending
// set at its version timestamp, tracking new timestamps in order.
func (a *account) enqueue(o *state.Order, g *state.Guarantee) {
	ts := o.Timestamp
	if existing, ok := a.pending[ts]; ok {
		existing.Merge(o)
	} else {
		a.pending[ts] = o
		a.timestamps = append(a.timestamps, ts)
	}
	if g != nil {
		if existing, ok := a.guarantees[ts]; ok {
			existing.Merge(g)
		} else {
			a.guarantees[ts] = g
		}
	}
}

// guarantee returns the pending guarantee at ts, or an empty one.
func (a *account) guarantee(ts int64) *state.Guarantee {
	if g, ok := a.guarantees[ts]; ok {
		return g
	}
	return &state.Guarantee{}
}

// dequeue drops all pending records at ts after settlement.
func (a *account) dequeue(ts int64) {
	delete(a.pending, ts)
	delete(a.guarantees, ts)
	delete(a.liquidators, ts)
	if len(a.timestamps) > 0 && a.timestamps[0] == ts {
		a.timestamps = a.timestamps[1:]
	}
}

// intended returns the position the account would hold once every pending
// order settles, and the collateral backing it.
func (a *account) intended() (state.Position, fixed.Dec) {
	pos := *a.position.Clone()
	collateral := a.collateral
	for _, ts := range a.timestamps {
		o := a.pending[ts]
		pos.ApplyOrder(o)
		collateral = collateral.Add(o.Collateral)
	}
	return pos, collateral
}

// hasProtection reports whether any pending order is a liquidation.
func (a *account) hasProtection() bool {
	for _, o := range a.pending {
		if o.Protected() {
			return true
		}
	}
	return false
}
