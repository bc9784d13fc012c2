package state

import (
	"PerpSettle/internal/fixed"
)

// Global is the market-wide bookkeeping record, mutated once per drained
// version. CurrentID/LatestID bound the global pending-order window; the
// fee fields are monotonic accumulators until claimed.
type Global struct {
	CurrentID int64
	LatestID  int64

	ProtocolFee fixed.Dec
	OracleFee   fixed.Dec
	RiskFee     fixed.Dec

	LatestPrice fixed.Dec

	// PAccumulator is the funding P-controller's running value, clamped to
	// the configured [min, max].
	PAccumulator fixed.Dec

	// Exposure holds the net adiabatic-fee impact pool (rebates draw it
	// down, impact charges build it up).
	Exposure fixed.Dec
}

// Pending returns the number of global orders awaiting settlement.
func (g *Global) Pending() int64 {
	return g.CurrentID - g.LatestID
}

// IncrementFees folds one settlement step's fee deltas into the
// accumulators and advances the latest price.
func (g *Global) IncrementFees(protocol, oracle, risk fixed.Dec, price fixed.Dec) {
	g.ProtocolFee = g.ProtocolFee.Add(protocol)
	g.OracleFee = g.OracleFee.Add(oracle)
	g.RiskFee = g.RiskFee.Add(risk)
	g.LatestPrice = price
}

// Local is the per-account mirror of Global. Claimable accumulates
// referral, liquidation, and market fees owed to the account until
// explicitly withdrawn through the margin collaborator.
type Local struct {
	CurrentID int64
	LatestID  int64
	Claimable fixed.Dec
}

// Pending returns the number of the account's orders awaiting settlement.
func (l *Local) Pending() int64 {
	return l.CurrentID - l.LatestID
}

// Credit adds to the claimable balance.
func (l *Local) Credit(amount fixed.Dec) {
	l.Claimable = l.Claimable.Add(amount)
}

// Claim zeroes and returns the claimable balance. Claiming with nothing
// accrued is a no-op, not an error.
func (l *Local) Claim() fixed.Dec {
	out := l.Claimable
	l.Claimable = 0
	return out
}
