package state

import (
	"PerpSettle/internal/fixed"
)

// Checkpoint is the immutable per-account snapshot written at each
// settlement step. Summing Collateral across an account's checkpoints plus
// external deposits/withdrawals reconstructs its running balance; the
// settlement math itself never re-reads checkpoints; they exist for
// auditor reconciliation and dispute resolution.
type Checkpoint struct {
	Timestamp int64

	// Collateral is the net accrual delta applied at this step (pnl,
	// funding, interest, fee credits, price-override adjustments).
	Collateral fixed.Dec

	// Transfer is the order's explicit deposit/withdrawal amount.
	Transfer fixed.Dec

	// TradeFee is the total trading fee billed at this step.
	TradeFee fixed.Dec

	// SettlementFee is this account's share of the flat per-version fee,
	// plus the liquidation fee for protected orders.
	SettlementFee fixed.Dec
}
