package verifier

import "PerpSettle/internal/fixed"

// SignedIntent is a trader's signed commitment to trade at an agreed price.
type SignedIntent struct {
	Common
	Market     string
	Quantity   fixed.Dec
	Price      fixed.Dec
	Fee        fixed.Dec
	Originator string
	Flow       string
}

// SignedFill is a solver's signed acceptance of an intent.
type SignedFill struct {
	Common
	Intent SignedIntent
	Solver string
}

// SignedTake is a signed market order routed through a delegate.
type SignedTake struct {
	Common
	Market string
	Amount fixed.Dec // signed taker delta
}

// OperatorUpdate toggles an operator's authority over the account.
type OperatorUpdate struct {
	Common
	Operator string
	Enabled  bool
}

// SignerUpdate toggles a delegate signer for the account.
type SignerUpdate struct {
	Common
	Signer  string
	Enabled bool
}

// AccessUpdateBatch applies several operator and signer toggles atomically.
type AccessUpdateBatch struct {
	Common
	Operators []OperatorUpdate
	Signers   []SignerUpdate
}
