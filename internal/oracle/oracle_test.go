package oracle

import (
	"testing"

	"PerpSettle/internal/fixed"
)

// ============================================================
// Current
// ============================================================

func TestCurrentAlignsToGranularity(t *testing.T) {
	o := NewManual(60)

	if got := o.Current(130); got != 120 {
		t.Errorf("Current(130) = %d, want 120", got)
	}
	if got := o.Current(120); got != 120 {
		t.Errorf("Current(120) = %d, want 120", got)
	}
}

func TestCurrentSkipsCommittedVersions(t *testing.T) {
	o := NewManual(60)
	if err := o.Commit(PriceVersion{Timestamp: 120, Price: fixed.FromInt(100), Valid: true}, Receipt{}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// 130 would align to 120, but 120 already committed.
	if got := o.Current(130); got != 180 {
		t.Errorf("Current(130) after commit at 120 = %d, want 180", got)
	}
}

// ============================================================
// Commit ordering
// ============================================================

func TestCommitRequiresIncreasingTimestamps(t *testing.T) {
	o := NewManual(60)
	if err := o.Commit(PriceVersion{Timestamp: 120, Price: fixed.FromInt(100), Valid: true}, Receipt{}); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	if err := o.Commit(PriceVersion{Timestamp: 120}, Receipt{}); err != ErrNonMonotonic {
		t.Errorf("duplicate commit err = %v, want ErrNonMonotonic", err)
	}
	if err := o.Commit(PriceVersion{Timestamp: 60}, Receipt{}); err != ErrNonMonotonic {
		t.Errorf("stale commit err = %v, want ErrNonMonotonic", err)
	}
	if err := o.Commit(PriceVersion{Timestamp: 180, Price: fixed.FromInt(101), Valid: true}, Receipt{}); err != nil {
		t.Errorf("next commit: %v", err)
	}
}

// ============================================================
// Lookup
// ============================================================

func TestLatestAndAt(t *testing.T) {
	o := NewManual(60)
	if _, ok := o.Latest(); ok {
		t.Fatal("Latest() reported a version before any commit")
	}

	receipt := Receipt{SettlementFee: fixed.MustParse("0.25"), OracleFee: fixed.MustParse("0.1")}
	pv := PriceVersion{Timestamp: 120, Price: fixed.MustParse("113.882975"), Valid: true}
	if err := o.Commit(pv, receipt); err != nil {
		t.Fatalf("commit: %v", err)
	}

	latest, ok := o.Latest()
	if !ok || latest != pv {
		t.Errorf("Latest() = %+v, %v, want %+v, true", latest, ok, pv)
	}

	got, gotReceipt, ok := o.At(120)
	if !ok || got != pv || gotReceipt != receipt {
		t.Errorf("At(120) = %+v, %+v, %v", got, gotReceipt, ok)
	}
	if _, _, ok := o.At(60); ok {
		t.Error("At(60) reported a version that never committed")
	}
}

func TestRequested(t *testing.T) {
	o := NewManual(60)
	if o.Requested(120) {
		t.Fatal("Requested(120) before any request")
	}
	o.Request(120)
	if !o.Requested(120) {
		t.Error("Requested(120) after request")
	}
}
