package state_test

import (
	"testing"

	"PerpSettle/internal/fixed"
	"PerpSettle/internal/params"
	"PerpSettle/internal/state"
)

func dec(s string) fixed.Dec { return fixed.MustParse(s) }

// ============================================================================
// Test: Position
// ============================================================================

func TestPosition_SkewAndSides(t *testing.T) {
	p := &state.Position{Maker: dec("10"), Long: dec("6"), Short: dec("2")}

	if got := p.Skew(); got != dec("4") {
		t.Errorf("skew = %s, want 4", got)
	}
	if got := p.Major(); got != dec("6") {
		t.Errorf("major = %s, want 6", got)
	}
	if got := p.Minor(); got != dec("2") {
		t.Errorf("minor = %s, want 2", got)
	}
	if got := p.Magnitude(); got != dec("10") {
		t.Errorf("magnitude = %s, want 10", got)
	}
}

func TestPosition_Utilization(t *testing.T) {
	cases := []struct {
		maker, long, short string
		want               string
	}{
		{"10", "0", "0", "0"},      // no takers
		{"10", "6", "2", "0.5"},    // 6 / (10+2)
		{"0", "5", "0", "1"},       // unbacked
		{"1", "10", "0", "1"},      // clamped at 1
	}
	for _, c := range cases {
		p := &state.Position{Maker: dec(c.maker), Long: dec(c.long), Short: dec(c.short)}
		if got := p.Utilization(); got != dec(c.want) {
			t.Errorf("utilization(%s,%s,%s) = %s, want %s", c.maker, c.long, c.short, got, c.want)
		}
	}
}

func TestPosition_Socialization(t *testing.T) {
	// Maker capacity covers the major side: factor 1.
	covered := &state.Position{Maker: dec("10"), Long: dec("6"), Short: dec("2")}
	if got := covered.Socialization(); got != fixed.One {
		t.Errorf("covered socialization = %s, want 1", got)
	}

	// Major 10 backed by maker 4 + minor 2: factor 0.6.
	deficit := &state.Position{Maker: dec("4"), Long: dec("10"), Short: dec("2")}
	if got := deficit.Socialization(); got != dec("0.6") {
		t.Errorf("deficit socialization = %s, want 0.6", got)
	}
}

func TestPosition_MaintenanceAndMargin(t *testing.T) {
	risk := params.DefaultRiskParameter()
	price := dec("100")

	p := &state.Position{Maker: dec("10")}
	// notional 1000: maintenance 50, margin 100
	if got := p.Maintenance(price, &risk); got != dec("50") {
		t.Errorf("maintenance = %s, want 50", got)
	}
	if got := p.Margin(price, &risk); got != dec("100") {
		t.Errorf("margin = %s, want 100", got)
	}

	// Tiny position hits the absolute floors.
	tiny := &state.Position{Long: dec("0.01")}
	if got := tiny.Maintenance(price, &risk); got != risk.MinMaintenance {
		t.Errorf("tiny maintenance = %s, want floor %s", got, risk.MinMaintenance)
	}
	if got := tiny.Margin(price, &risk); got != risk.MinMargin {
		t.Errorf("tiny margin = %s, want floor %s", got, risk.MinMargin)
	}

	empty := &state.Position{}
	if got := empty.Maintenance(price, &risk); got != 0 {
		t.Errorf("empty maintenance = %s, want 0", got)
	}
}

func TestPosition_ApplyOrder(t *testing.T) {
	p := &state.Position{Timestamp: 100, Maker: dec("10"), Long: dec("3")}
	o := state.NewOrder(200, dec("-4"), dec("2"), dec("1"), 0)

	p.ApplyOrder(o)

	if p.Timestamp != 200 {
		t.Errorf("timestamp = %d, want 200", p.Timestamp)
	}
	if p.Maker != dec("6") || p.Long != dec("5") || p.Short != dec("1") {
		t.Errorf("position after apply = %s/%s/%s, want 6/5/1", p.Maker, p.Long, p.Short)
	}
}

// ============================================================================
// Test: Order
// ============================================================================

func TestOrder_SignedDeltas(t *testing.T) {
	o := state.NewOrder(1, dec("-2"), dec("3"), dec("-1"), dec("50"))

	if o.MakerDelta() != dec("-2") || o.LongDelta() != dec("3") || o.ShortDelta() != dec("-1") {
		t.Errorf("deltas = %s/%s/%s", o.MakerDelta(), o.LongDelta(), o.ShortDelta())
	}
	if o.TakerDelta() != dec("4") {
		t.Errorf("taker delta = %s, want 4", o.TakerDelta())
	}
	if o.TakerTotal() != dec("4") {
		t.Errorf("taker total = %s, want 4", o.TakerTotal())
	}
	if o.Orders != 1 {
		t.Errorf("orders = %d, want 1", o.Orders)
	}
}

func TestOrder_CollateralOnlyHasNoOrderCount(t *testing.T) {
	o := state.NewOrder(1, 0, 0, 0, dec("100"))
	if o.Orders != 0 {
		t.Errorf("collateral-only order count = %d, want 0", o.Orders)
	}
	if o.PositionEmpty() != true {
		t.Error("collateral-only order should be position-empty")
	}
	if o.Empty() {
		t.Error("order with collateral is not empty")
	}
}

func TestOrder_Merge(t *testing.T) {
	a := state.NewOrder(1, dec("2"), 0, 0, dec("10"))
	b := state.NewOrder(1, dec("-1"), dec("5"), 0, dec("-4"))

	a.Merge(b)

	if a.Orders != 2 {
		t.Errorf("orders = %d, want 2", a.Orders)
	}
	if a.MakerDelta() != dec("1") || a.LongDelta() != dec("5") {
		t.Errorf("merged deltas = %s/%s", a.MakerDelta(), a.LongDelta())
	}
	if a.Collateral != dec("6") {
		t.Errorf("merged collateral = %s, want 6", a.Collateral)
	}
}

func TestOrder_IncreasesRisk(t *testing.T) {
	if !state.NewOrder(1, dec("1"), 0, 0, 0).IncreasesRisk() {
		t.Error("maker open should increase risk")
	}
	if state.NewOrder(1, dec("-1"), 0, 0, 0).IncreasesRisk() {
		t.Error("maker close should not increase risk")
	}
	if state.NewOrder(1, 0, 0, 0, dec("-5")).IncreasesRisk() {
		t.Error("withdrawal should not increase risk")
	}
}

func TestOrder_Invalidate(t *testing.T) {
	o := state.NewOrder(1, dec("2"), dec("1"), 0, dec("25"))
	o.Invalidate()

	if !o.PositionEmpty() {
		t.Error("invalidated order should carry no position deltas")
	}
	if o.Collateral != dec("25") {
		t.Error("invalidation must preserve the collateral transfer")
	}
	if o.Invalidation != 1 {
		t.Errorf("invalidation count = %d, want 1", o.Invalidation)
	}
}

// ============================================================================
// Test: Guarantee
// ============================================================================

func TestGuarantee_PriceAdjustment(t *testing.T) {
	// Long 5 units agreed at 125, oracle settles 113.796498:
	// adjustment = 5 * (113.796498 - 125) = -56.017510
	g := state.NewGuarantee(dec("5"), dec("125"), dec("5"))

	got := g.PriceAdjustment(dec("113.796498"))
	want := dec("-56.01751")
	if got != want {
		t.Errorf("price adjustment = %s, want %s", got, want)
	}

	// The counterparty's short guarantee mirrors it exactly.
	cp := state.NewGuarantee(dec("-5"), dec("125"), dec("5"))
	if cp.PriceAdjustment(dec("113.796498")) != want.Neg() {
		t.Error("counterparty adjustment should be the exact negation")
	}
}

func TestGuarantee_MergeNetsOut(t *testing.T) {
	a := state.NewGuarantee(dec("5"), dec("125"), dec("5"))
	b := state.NewGuarantee(dec("-5"), dec("125"), dec("5"))

	a.Merge(b)

	if a.TakerDelta() != 0 {
		t.Errorf("merged taker delta = %s, want 0", a.TakerDelta())
	}
	if a.Notional != 0 {
		t.Errorf("merged notional = %s, want 0", a.Notional)
	}
	if a.PriceAdjustment(dec("113.796498")) != 0 {
		t.Error("global guarantee adjustment must net to zero")
	}
}

// ============================================================================
// Test: Global / Local
// ============================================================================

func TestGlobal_Pending(t *testing.T) {
	g := &state.Global{CurrentID: 5, LatestID: 3}
	if g.Pending() != 2 {
		t.Errorf("pending = %d, want 2", g.Pending())
	}
}

func TestLocal_ClaimIsIdempotent(t *testing.T) {
	l := &state.Local{}
	l.Credit(dec("7"))

	if got := l.Claim(); got != dec("7") {
		t.Errorf("first claim = %s, want 7", got)
	}
	if got := l.Claim(); got != 0 {
		t.Errorf("second claim = %s, want 0", got)
	}
}

// ============================================================================
// Test: Version
// ============================================================================

func TestVersion_SideDelta(t *testing.T) {
	from := &state.Version{
		MakerPostValue: dec("1"),
		LongPostValue:  dec("-2"),
		ShortPostValue: dec("0.5"),
	}
	to := &state.Version{
		MakerPostValue: dec("1.25"),
		LongPostValue:  dec("-1"),
		ShortPostValue: dec("0.25"),
	}
	pos := &state.Position{Maker: dec("4"), Long: dec("2"), Short: dec("8")}

	// 4*0.25 + 2*1 + 8*(-0.25) = 1
	if got := to.SideDelta(from, pos); got != dec("1") {
		t.Errorf("side delta = %s, want 1", got)
	}
}
