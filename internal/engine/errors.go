package engine

import "errors"

var (
	// ErrUnauthorized rejects a sender that is neither the account, one of
	// its operators, nor an approved extension.
	ErrUnauthorized = errors.New("engine: sender not authorized for account")

	// ErrNotCoordinator rejects privileged operations from anyone but the
	// market coordinator.
	ErrNotCoordinator = errors.New("engine: coordinator only")

	// ErrMarketClosed rejects risk-increasing updates on a closed market.
	ErrMarketClosed = errors.New("engine: market closed to new risk")

	// ErrSettleOnly rejects position changes while the market is in
	// settle-only mode.
	ErrSettleOnly = errors.New("engine: market is settle-only")

	// ErrInsufficientMargin rejects an update that would leave the account
	// below its margin requirement.
	ErrInsufficientMargin = errors.New("engine: insufficient margin")

	// ErrInsufficientCollateral rejects a withdrawal exceeding the balance.
	ErrInsufficientCollateral = errors.New("engine: insufficient collateral")

	// ErrMakerLimitExceeded rejects maker exposure beyond the configured cap.
	ErrMakerLimitExceeded = errors.New("engine: maker limit exceeded")

	// ErrEfficiencyLimitExceeded rejects taker exposure the maker pool is too
	// thin to back.
	ErrEfficiencyLimitExceeded = errors.New("engine: efficiency limit exceeded")

	// ErrStalePrice rejects risk-increasing updates when the latest oracle
	// version is older than the staleness window.
	ErrStalePrice = errors.New("engine: oracle price stale")

	// ErrPendingLimit rejects updates when the pending-version queue for the
	// account or the market is full.
	ErrPendingLimit = errors.New("engine: too many pending versions")

	// ErrNotLiquidatable rejects a protected order against an account that
	// still meets maintenance.
	ErrNotLiquidatable = errors.New("engine: account not below maintenance")

	// ErrProtectedOrder rejects a protected order that does not fully close
	// the position, or that moves collateral.
	ErrProtectedOrder = errors.New("engine: protected order must close the position")

	// ErrIntentFee rejects an intent whose fee exceeds the whole notional.
	ErrIntentFee = errors.New("engine: intent fee exceeds 100%")

	// ErrIntentPrice rejects an intent whose override price is not positive.
	ErrIntentPrice = errors.New("engine: intent price must be positive")

	// ErrIntentOriginator rejects an intent that declares an originator fee
	// without naming who collects it.
	ErrIntentOriginator = errors.New("engine: intent fee has no originator")

	// ErrReferrerMismatch rejects changing the referrer while orders from the
	// previous referrer are still in flight.
	ErrReferrerMismatch = errors.New("engine: conflicting referrer")

	// ErrVersionOutOfOrder rejects an oracle commit at or before the latest
	// committed version.
	ErrVersionOutOfOrder = errors.New("engine: price version commits out of order")

	// ErrInvalidParameter rejects a malformed parameter update.
	ErrInvalidParameter = errors.New("engine: invalid parameter")
)
