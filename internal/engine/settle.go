package engine

import (
	"PerpSettle/internal/accrual"
	"PerpSettle/internal/fixed"
	"PerpSettle/internal/oracle"
	"PerpSettle/internal/state"
)

// Commit applies one committed oracle version to the market: the global
// pending order at that timestamp (if any) is accumulated into a new version
// record, the global position advances, and the fee accumulators absorb the
// step's cuts and dust. Versions must commit in strictly increasing timestamp
// order.
func (m *Market) Commit(pv oracle.PriceVersion, receipt oracle.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pv.Timestamp <= m.latestVersion.Timestamp {
		return ErrVersionOutOfOrder
	}

	// Every pending order at or before the committed timestamp settles at
	// this version. Normally that is exactly one timestamp, but a keeper that
	// skipped a tick rolls the stranded orders into the next commit, matching
	// how accounts resolve their pending versions.
	o := state.NewOrder(pv.Timestamp, 0, 0, 0, 0)
	g := &state.Guarantee{}
	var consumed int
	for _, ts := range m.pendingTimestamps {
		if ts > pv.Timestamp {
			break
		}
		o.Merge(m.pendingOrders[ts])
		if pg, ok := m.pendingGuarantees[ts]; ok {
			g.Merge(pg)
		}
		delete(m.pendingOrders, ts)
		delete(m.pendingGuarantees, ts)
		consumed++
	}

	res := accrual.Accumulate(
		&m.latestVersion, &m.position, o, g,
		pv.Timestamp, pv.Price, pv.Valid,
		receipt.SettlementFee, m.global.PAccumulator,
		&m.risk, &m.market,
	)

	// The keeper's flat oracle cost comes out of the protocol's share.
	m.global.IncrementFees(
		res.ProtocolFee.Sub(receipt.OracleFee),
		res.OracleFee.Add(receipt.OracleFee),
		res.RiskFee,
		res.Version.Price,
	)
	m.global.PAccumulator = res.PAccumulator
	m.global.Exposure = m.global.Exposure.Add(res.Impact)

	if pv.Valid {
		m.position.ApplyOrder(o)
	} else {
		// Deltas are dropped on an invalid version; the order count still
		// consumes the slot so ids stay aligned.
		m.position.Timestamp = pv.Timestamp
	}

	m.versions[pv.Timestamp] = &versionContext{
		version:            res.Version,
		trade:              res.Trade,
		settlementPerOrder: res.SettlementFeePerOrder,
	}
	m.committed = append(m.committed, pv.Timestamp)
	m.latestVersion = res.Version

	if consumed > 0 {
		m.pendingTimestamps = m.pendingTimestamps[consumed:]
		m.global.LatestID += int64(consumed)
	}

	m.log.Info().Int64("version", pv.Timestamp).Bool("valid", pv.Valid).
		Str("price", res.Version.Price.String()).Int64("orders", o.Orders).
		Msg("version committed")

	if m.hook != nil {
		m.hook(CommitEvent{
			Market:   m.name,
			Version:  res.Version,
			Global:   m.global,
			Position: *m.position.Clone(),
			Orders:   o.Orders,
		})
	}
	return nil
}

// settleAccount replays every committed version the account has pending
// orders at, in order. Each step credits the accumulator delta on the held
// position, bills the order's fees, reconciles any intent price override, and
// rolls the order into the position. Caller holds the market mutex.
func (m *Market) settleAccount(acc *account) {
	for len(acc.timestamps) > 0 {
		ts := acc.timestamps[0]
		ctx, at, ok := m.versionAfter(ts)
		if !ok {
			break
		}

		o := acc.pending[ts]
		g := acc.guarantee(ts)
		v := ctx.version

		accrued := v.SideDelta(&acc.latestVersion, &acc.position)
		acc.collateral = acc.collateral.Add(accrued)

		if !v.Valid {
			o.Invalidate()
		}

		var tradeFee, settleFee fixed.Dec
		if !o.PositionEmpty() {
			tradeFee = m.billOrder(acc, o, g, ctx)
		}
		if o.Orders > 0 {
			settleFee = ctx.settlementPerOrder.Mul(fixed.FromInt(o.Orders))
			acc.collateral = acc.collateral.Sub(settleFee)
		}

		if v.Valid {
			if adj := g.PriceAdjustment(v.Price); !adj.IsZero() {
				acc.collateral = acc.collateral.Add(adj)
				accrued = accrued.Add(adj)
			}
		}

		if o.Protected() && v.Valid {
			fee := m.risk.LiquidationFee
			acc.collateral = acc.collateral.Sub(fee)
			if liq := acc.liquidators[ts]; liq != "" {
				m.account(liq).local.Credit(fee)
			}
			settleFee = settleFee.Add(fee)
		}

		acc.collateral = acc.collateral.Add(o.Collateral)
		acc.position.ApplyOrder(o)
		acc.latestVersion = v
		acc.local.LatestID++
		acc.checkpoint = state.Checkpoint{
			Timestamp:     at,
			Collateral:    accrued,
			Transfer:      o.Collateral,
			TradeFee:      tradeFee,
			SettlementFee: settleFee,
		}
		if m.checkpointHook != nil {
			m.checkpointHook(m.name, acc.address, acc.checkpoint)
		}
		acc.dequeue(ts)
	}

	// Roll forward to the latest committed version so the account's
	// collateral always reflects accruals on the held position, not just
	// versions it had orders at. Any still-pending order sits strictly after
	// the latest commit, so this never skips one.
	if m.latestVersion.Timestamp > acc.latestVersion.Timestamp {
		acc.collateral = acc.collateral.Add(m.latestVersion.SideDelta(&acc.latestVersion, &acc.position))
		acc.latestVersion = m.latestVersion
	}
}

// billOrder charges the account its share of the version's trade fees and
// routes its referral carve-outs. Returns the total fee billed.
func (m *Market) billOrder(acc *account, o *state.Order, g *state.Guarantee, ctx *versionContext) fixed.Dec {
	exempt := g.TakerTotal().Sub(g.TakerFee)
	feeVolume := o.TakerTotal().Sub(exempt)
	if feeVolume.Sign() < 0 {
		feeVolume = 0
	}

	fee := ctx.trade.TakerFeePerUnit.Mul(feeVolume).
		Add(ctx.trade.TakerImpactPerUnit.Mul(feeVolume)).
		Add(ctx.trade.MakerFeePerUnit.Mul(o.MakerTotal()))
	acc.collateral = acc.collateral.Sub(fee)

	price := ctx.version.Price
	referral := o.TakerReferral.Mul(price).Mul(m.risk.TakerFee.LinearFee).
		Add(o.MakerReferral.Mul(price).Mul(m.risk.MakerFee.LinearFee))
	m.creditReferral(acc.referrer, referral)
	for _, c := range g.Carveouts {
		m.creditReferral(c.Address, c.Volume.Mul(price).Mul(m.risk.TakerFee.LinearFee))
	}
	return fee
}

// creditReferral pays a referral carve-out to the named party's claimable
// balance. Carved out globally but unclaimed, the protocol keeps it.
func (m *Market) creditReferral(address string, amount fixed.Dec) {
	if amount.IsZero() {
		return
	}
	if address == "" {
		m.global.ProtocolFee = m.global.ProtocolFee.Add(amount)
		return
	}
	m.account(address).local.Credit(amount)
}
