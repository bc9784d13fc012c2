package params_test

import (
	"testing"

	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
)

func TestRiskParameter_DefaultsValid(t *testing.T) {
	p := params.DefaultRiskParameter()
	if err := p.Validate(); err != nil {
		t.Fatalf("default risk parameter should validate: %v", err)
	}
}

func TestRiskParameter_MarginBelowMaintenance_Fails(t *testing.T) {
	p := params.DefaultRiskParameter()
	p.Margin = fixed.MustParse("0.01")
	p.Maintenance = fixed.MustParse("0.05")

	if err := p.Validate(); err == nil {
		t.Error("margin < maintenance should fail validation")
	}
}

func TestRiskParameter_ZeroScale_Fails(t *testing.T) {
	p := params.DefaultRiskParameter()
	p.TakerFee.Scale = 0

	if err := p.Validate(); err == nil {
		t.Error("zero fee curve scale should fail validation")
	}
}

func TestRiskParameter_InvertedPController_Fails(t *testing.T) {
	p := params.DefaultRiskParameter()
	p.PController.Min = fixed.One
	p.PController.Max = fixed.One.Neg()

	if err := p.Validate(); err == nil {
		t.Error("p-controller min > max should fail validation")
	}
}

func TestMarketParameter_DefaultsValid(t *testing.T) {
	p := params.DefaultMarketParameter()
	if err := p.Validate(); err != nil {
		t.Fatalf("default market parameter should validate: %v", err)
	}
}

func TestMarketParameter_SharesOverOne_Fails(t *testing.T) {
	p := params.DefaultMarketParameter()
	p.RiskShare = fixed.MustParse("0.7")
	p.OracleShare = fixed.MustParse("0.4")

	if err := p.Validate(); err == nil {
		t.Error("risk + oracle share > 1 should fail validation")
	}
}

func TestMarketParameter_FeeExempt(t *testing.T) {
	p := params.DefaultMarketParameter()
	p.IntentFeeExempt = []string{"solver-rebalance"}

	if !p.FeeExempt("solver-rebalance") {
		t.Error("listed flow should be exempt")
	}
	if p.FeeExempt("retail") {
		t.Error("unlisted flow should not be exempt")
	}
}

func TestUtilizationCurve_Rate(t *testing.T) {
	c := params.UtilizationCurve{
		MinRate:           fixed.MustParse("0.02"),
		TargetRate:        fixed.MustParse("0.08"),
		MaxRate:           fixed.MustParse("1"),
		TargetUtilization: fixed.MustParse("0.8"),
	}

	cases := []struct {
		utilization string
		want        string
	}{
		{"0", "0.02"},
		{"0.4", "0.05"},  // halfway to target: 0.02 + 0.06/2
		{"0.8", "0.08"},  // at target
		{"0.9", "0.54"},  // halfway target..max: 0.08 + 0.92/2
		{"1", "1"},       // at max
		{"2.5", "1"},     // clamped above
		{"-0.3", "0.02"}, // clamped below
	}

	for _, tc := range cases {
		got := c.Rate(fixed.MustParse(tc.utilization))
		want := fixed.MustParse(tc.want)
		if got != want {
			t.Errorf("Rate(%s) = %s, want %s", tc.utilization, got, want)
		}
	}
}
