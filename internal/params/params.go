package params

import (
	"fmt"
	"time"

	"PerpSettle/internal/fixed"
)

// FeeCurve describes the maker or taker trading-fee curve. Linear applies to
// the raw notional, Proportional scales with the post-order skew, Adiabatic
// (takers only) integrates over the skew interval crossed by the order and
// can therefore be a rebate.
type FeeCurve struct {
	LinearFee       fixed.Dec
	ProportionalFee fixed.Dec
	AdiabaticFee    fixed.Dec
	Scale           fixed.Dec // skew normalization, in position units
}

// UtilizationCurve is the piecewise-linear interest-rate curve over
// utilization (dominant taker exposure / available liquidity).
type UtilizationCurve struct {
	MinRate           fixed.Dec // rate at 0% utilization
	TargetRate        fixed.Dec // rate at TargetUtilization
	MaxRate           fixed.Dec // rate at 100% utilization
	TargetUtilization fixed.Dec
}

// Rate returns the annualized interest rate at the given utilization,
// clamped to [0, 1] utilization.
func (c UtilizationCurve) Rate(utilization fixed.Dec) fixed.Dec {
	u := fixed.Clamp(utilization, 0, fixed.One)

	if u <= c.TargetUtilization {
		if c.TargetUtilization.IsZero() {
			return c.TargetRate
		}
		return c.MinRate.Add(c.TargetRate.Sub(c.MinRate).MulDiv(u, c.TargetUtilization))
	}

	span := fixed.One.Sub(c.TargetUtilization)
	if span.IsZero() {
		return c.MaxRate
	}
	return c.TargetRate.Add(c.MaxRate.Sub(c.TargetRate).MulDiv(u.Sub(c.TargetUtilization), span))
}

// PController holds the funding proportional-controller gain and the clamp
// bounds for the running accumulator.
type PController struct {
	K   fixed.Dec // gain applied to normalized skew per second
	Min fixed.Dec
	Max fixed.Dec
}

// RiskParameter is the per-market risk configuration. Immutable between
// explicit parameter updates.
type RiskParameter struct {
	Margin         fixed.Dec // margin ratio required to open/increase
	Maintenance    fixed.Dec // looser ratio gating liquidation only
	MinMargin      fixed.Dec // absolute floor on required margin collateral
	MinMaintenance fixed.Dec // absolute floor on maintenance collateral

	MakerLimit      fixed.Dec // cap on aggregate maker magnitude
	EfficiencyLimit fixed.Dec // min maker/major ratio on open

	LiquidationFee fixed.Dec // flat fee paid to the liquidator

	MakerFee FeeCurve
	TakerFee FeeCurve

	UtilizationCurve UtilizationCurve
	PController      PController

	// Staleness is the maximum age of the latest oracle version before
	// risk-increasing updates are refused.
	Staleness time.Duration
}

// Validate rejects internally inconsistent risk parameters.
func (p *RiskParameter) Validate() error {
	if p.Margin <= 0 {
		return fmt.Errorf("margin must be > 0, got %s", p.Margin)
	}
	if p.Maintenance <= 0 {
		return fmt.Errorf("maintenance must be > 0, got %s", p.Maintenance)
	}
	if p.Margin < p.Maintenance {
		return fmt.Errorf("margin (%s) must be >= maintenance (%s)", p.Margin, p.Maintenance)
	}
	if p.Margin >= fixed.One {
		return fmt.Errorf("margin must be < 1, got %s", p.Margin)
	}
	if p.MakerLimit < 0 {
		return fmt.Errorf("maker limit must be >= 0, got %s", p.MakerLimit)
	}
	if p.EfficiencyLimit < 0 || p.EfficiencyLimit > fixed.One {
		return fmt.Errorf("efficiency limit must be in [0, 1], got %s", p.EfficiencyLimit)
	}
	if p.LiquidationFee < 0 {
		return fmt.Errorf("liquidation fee must be >= 0, got %s", p.LiquidationFee)
	}
	if p.MakerFee.Scale <= 0 || p.TakerFee.Scale <= 0 {
		return fmt.Errorf("fee curve scale must be > 0")
	}
	if p.PController.Min > p.PController.Max {
		return fmt.Errorf("p-controller min (%s) > max (%s)", p.PController.Min, p.PController.Max)
	}
	if p.UtilizationCurve.TargetUtilization < 0 || p.UtilizationCurve.TargetUtilization > fixed.One {
		return fmt.Errorf("target utilization must be in [0, 1], got %s", p.UtilizationCurve.TargetUtilization)
	}
	if p.Staleness <= 0 {
		return fmt.Errorf("staleness window must be > 0, got %s", p.Staleness)
	}
	return nil
}

// MarketParameter is the per-market fee-share and queue configuration.
type MarketParameter struct {
	FundingFee  fixed.Dec // protocol cut of funding flow
	InterestFee fixed.Dec // protocol cut of interest flow
	MakerShare  fixed.Dec // makers' share of taker linear+proportional fees

	// Shares of the market fee remainder. Must sum to <= 1; the residual
	// stays with the protocol fee accumulator.
	RiskShare   fixed.Dec
	OracleShare fixed.Dec

	// Default referral rates (carved out of the linear fee component)
	// applied when no per-referrer override exists.
	ReferralDefault fixed.Dec
	SolverReferral  fixed.Dec

	MaxPendingLocal  int64
	MaxPendingGlobal int64

	Closed     bool // decrease-only mode
	SettleOnly bool // bare settlement only

	// IntentFeeExempt lists intent flow identifiers whose fills skip
	// ordinary taker fees. An explicit exclusion list, not a blanket rule.
	IntentFeeExempt []string
}

// Validate rejects internally inconsistent market parameters.
func (p *MarketParameter) Validate() error {
	for name, v := range map[string]fixed.Dec{
		"funding fee":      p.FundingFee,
		"interest fee":     p.InterestFee,
		"maker share":      p.MakerShare,
		"risk share":       p.RiskShare,
		"oracle share":     p.OracleShare,
		"referral default": p.ReferralDefault,
		"solver referral":  p.SolverReferral,
	} {
		if v < 0 || v > fixed.One {
			return fmt.Errorf("%s must be in [0, 1], got %s", name, v)
		}
	}
	if p.RiskShare.Add(p.OracleShare) > fixed.One {
		return fmt.Errorf("risk share + oracle share must be <= 1, got %s",
			p.RiskShare.Add(p.OracleShare))
	}
	if p.MaxPendingLocal <= 0 {
		return fmt.Errorf("max pending local must be > 0, got %d", p.MaxPendingLocal)
	}
	if p.MaxPendingGlobal < p.MaxPendingLocal {
		return fmt.Errorf("max pending global (%d) must be >= max pending local (%d)",
			p.MaxPendingGlobal, p.MaxPendingLocal)
	}
	return nil
}

// FeeExempt reports whether the given intent flow is on the fee exclusion list.
func (p *MarketParameter) FeeExempt(flow string) bool {
	for _, f := range p.IntentFeeExempt {
		if f == flow {
			return true
		}
	}
	return false
}

// DefaultRiskParameter returns a conservative starting configuration,
// useful for tests and local development.
func DefaultRiskParameter() RiskParameter {
	return RiskParameter{
		Margin:         fixed.MustParse("0.1"),
		Maintenance:    fixed.MustParse("0.05"),
		MinMargin:      fixed.FromInt(10),
		MinMaintenance: fixed.FromInt(5),

		MakerLimit:      fixed.FromInt(1_000_000),
		EfficiencyLimit: fixed.MustParse("0.2"),

		LiquidationFee: fixed.FromInt(5),

		MakerFee: FeeCurve{Scale: fixed.FromInt(10_000)},
		TakerFee: FeeCurve{Scale: fixed.FromInt(10_000)},

		UtilizationCurve: UtilizationCurve{
			MinRate:           fixed.MustParse("0.02"),
			TargetRate:        fixed.MustParse("0.08"),
			MaxRate:           fixed.MustParse("1"),
			TargetUtilization: fixed.MustParse("0.8"),
		},
		PController: PController{
			K:   fixed.MustParse("0.00001"),
			Min: fixed.MustParse("-1.2"),
			Max: fixed.MustParse("1.2"),
		},

		Staleness: 90 * time.Second,
	}
}

// DefaultMarketParameter returns a starting market configuration.
func DefaultMarketParameter() MarketParameter {
	return MarketParameter{
		FundingFee:       fixed.MustParse("0.1"),
		InterestFee:      fixed.MustParse("0.1"),
		MakerShare:       fixed.MustParse("0.5"),
		RiskShare:        fixed.MustParse("0.3"),
		OracleShare:      fixed.MustParse("0.1"),
		ReferralDefault:  fixed.MustParse("0.05"),
		SolverReferral:   fixed.MustParse("0.05"),
		MaxPendingLocal:  8,
		MaxPendingGlobal: 64,
	}
}
