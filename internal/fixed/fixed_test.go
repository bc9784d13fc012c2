package fixed_test

import (
	"encoding/json"
	"testing"

	"PerpSettle/internal/fixed"
)

func TestParse_RoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want fixed.Dec
	}{
		{"0", 0},
		{"1", fixed.One},
		{"-1", -fixed.One},
		{"113.882975", fixed.Dec(113_882_975)},
		{"-0.05", fixed.Dec(-50_000)},
		{"0.000001", fixed.Dec(1)},
		{"2.5", fixed.Dec(2_500_000)},
	}

	for _, c := range cases {
		got, err := fixed.Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"", ".", "-", "1.2345678", "1x", "--1"} {
		if _, err := fixed.Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestMul_TruncatesTowardZero(t *testing.T) {
	// 113.882975 * 0.05 = 5.69414875 -> 5.694148 (not 5.694149)
	price := fixed.MustParse("113.882975")
	rate := fixed.MustParse("0.05")

	got := price.Mul(rate)
	want := fixed.MustParse("5.694148")
	if got != want {
		t.Errorf("Mul = %s, want %s", got, want)
	}

	// Negative operand truncates toward zero, not toward -inf.
	gotNeg := price.Neg().Mul(rate)
	if gotNeg != -want {
		t.Errorf("negative Mul = %s, want %s", gotNeg, -want)
	}
}

func TestDiv_TruncatesTowardZero(t *testing.T) {
	got := fixed.FromInt(10).Div(fixed.FromInt(3))
	want := fixed.MustParse("3.333333")
	if got != want {
		t.Errorf("Div = %s, want %s", got, want)
	}

	gotNeg := fixed.FromInt(-10).Div(fixed.FromInt(3))
	if gotNeg != -want {
		t.Errorf("negative Div = %s, want %s", gotNeg, -want)
	}
}

func TestMulDiv_LargeIntermediates(t *testing.T) {
	// price * quantity where the raw-scale product would overflow int64
	// without the 128-bit intermediate.
	price := fixed.MustParse("99999.999999")
	qty := fixed.FromInt(5_000_000)

	notional := price.Mul(qty)
	want := fixed.Dec(499_999_999_995_000_000)
	if notional != want {
		t.Errorf("notional = %d, want %d", notional, want)
	}
}

func TestClamp(t *testing.T) {
	lo, hi := fixed.MustParse("-1.2"), fixed.MustParse("1.2")

	if got := fixed.Clamp(fixed.FromInt(5), lo, hi); got != hi {
		t.Errorf("clamp above = %s, want %s", got, hi)
	}
	if got := fixed.Clamp(fixed.FromInt(-5), lo, hi); got != lo {
		t.Errorf("clamp below = %s, want %s", got, lo)
	}
	if got := fixed.Clamp(fixed.One, lo, hi); got != fixed.One {
		t.Errorf("clamp inside = %s, want 1", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Price fixed.Dec `json:"price"`
	}

	out, err := json.Marshal(payload{Price: fixed.MustParse("113.882975")})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"price":"113.882975"}` {
		t.Errorf("marshal = %s", out)
	}

	var in payload
	if err := json.Unmarshal(out, &in); err != nil {
		t.Fatal(err)
	}
	if in.Price != fixed.MustParse("113.882975") {
		t.Errorf("unmarshal = %s", in.Price)
	}
}

func TestString(t *testing.T) {
	cases := map[fixed.Dec]string{
		0:                          "0",
		fixed.One:                  "1",
		fixed.MustParse("2.5"):     "2.5",
		fixed.MustParse("-0.05"):   "-0.05",
		fixed.Dec(113_882_975):     "113.882975",
		fixed.MustParse("-1.0001"): "-1.0001",
	}
	for in, want := range cases {
		if got := in.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", in, got, want)
		}
	}
}
