package engine

import (
	"PerpSettle/internal/state"
)

// checkUpdate validates an order against the account and market invariants
// before it is enqueued. sibling is the other leg of an intent pair, included
// in the global book projection so both legs are judged against the same
// post-trade skew.
func (m *Market) checkUpdate(acc *account, o *state.Order, sibling *state.Order, now int64) error {
	if o.Protected() {
		return m.checkProtected(acc, o)
	}

	if m.market.SettleOnly && !o.PositionEmpty() {
		return ErrSettleOnly
	}
	if m.market.Closed && o.IncreasesRisk() {
		return ErrMarketClosed
	}

	if o.IncreasesRisk() {
		if !m.latestVersion.Valid || now-m.latestVersion.Timestamp > int64(m.risk.Staleness.Seconds()) {
			return ErrStalePrice
		}
	}

	if _, pending := acc.pending[o.Timestamp]; !pending && int64(len(acc.timestamps)) >= m.market.MaxPendingLocal {
		return ErrPendingLimit
	}
	if _, pending := m.pendingOrders[o.Timestamp]; !pending && int64(len(m.pendingTimestamps)) >= m.market.MaxPendingGlobal {
		return ErrPendingLimit
	}

	pos, collateral := acc.intended()
	pos.ApplyOrder(o)
	collateral = collateral.Add(o.Collateral)

	if collateral.Sign() < 0 {
		return ErrInsufficientCollateral
	}

	price := m.latestVersion.Price
	if o.IncreasesRisk() || o.Collateral.Sign() < 0 {
		if collateral < pos.Margin(price, &m.risk) {
			return ErrInsufficientMargin
		}
	}

	global := m.intendedGlobal()
	global.ApplyOrder(o)
	if sibling != nil {
		global.ApplyOrder(sibling)
	}
	if o.MakerPos.Sign() > 0 && global.Maker > m.risk.MakerLimit {
		return ErrMakerLimitExceeded
	}
	if o.IncreasesTaker() && !global.Major().IsZero() && global.Efficiency() < m.risk.EfficiencyLimit {
		return ErrEfficiencyLimitExceeded
	}
	return nil
}

// checkProtected validates a liquidation order: the account must be below
// maintenance, the order must fully close the position, and it must not move
// collateral.
func (m *Market) checkProtected(acc *account, o *state.Order) error {
	if !o.Collateral.IsZero() {
		return ErrProtectedOrder
	}
	if acc.hasProtection() {
		return ErrProtectedOrder
	}
	if !m.latestVersion.Valid {
		return ErrStalePrice
	}

	pos, collateral := acc.intended()
	if collateral >= pos.Maintenance(m.latestVersion.Price, &m.risk) {
		return ErrNotLiquidatable
	}

	pos.ApplyOrder(o)
	if !pos.Empty() {
		return ErrProtectedOrder
	}
	return nil
}

// intendedGlobal projects the settled global position through every pending
// global order.
func (m *Market) intendedGlobal() *state.Position {
	pos := m.position.Clone()
	for _, ts := range m.pendingTimestamps {
		pos.ApplyOrder(m.pendingOrders[ts])
	}
	return pos
}
