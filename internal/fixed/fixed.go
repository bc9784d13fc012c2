package fixed

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Dec is a signed fixed-point decimal with 6 fractional digits, stored as an
// int64 count of millionths. All monetary quantities, position magnitudes,
// prices, and rates in the engine use this representation.
type Dec int64

const (
	// Precision is the number of fractional decimal digits.
	Precision = 6

	// Scale is 10^Precision.
	Scale = 1_000_000

	// One is the Dec representation of 1.0.
	One Dec = Scale
)

// Intermediate products are computed in big.Int to avoid int64 overflow
// on price*quantity terms. Pooled: the allocations are on the hot
// settlement path.
var bigPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getBig() *big.Int {
	return bigPool.Get().(*big.Int)
}

func putBig(v *big.Int) {
	v.SetInt64(0)
	bigPool.Put(v)
}

// FromInt converts a whole number to a Dec.
func FromInt(i int64) Dec {
	return Dec(i * Scale)
}

// Parse converts a decimal string like "113.882975" or "-0.05" to a Dec.
// More than 6 fractional digits is an error, not silent truncation.
func Parse(s string) (Dec, error) {
	if s == "" {
		return 0, fmt.Errorf("empty decimal string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return 0, fmt.Errorf("malformed decimal string")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > Precision {
		return 0, fmt.Errorf("too many fractional digits in %q (max %d)", s, Precision)
	}

	var v int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid digit %q in %q", c, s)
		}
		v = v*10 + int64(c-'0')
	}
	v *= Scale

	fracScale := int64(Scale / 10)
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid digit %q in %q", c, s)
		}
		v += int64(c-'0') * fracScale
		fracScale /= 10
	}

	if neg {
		v = -v
	}
	return Dec(v), nil
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(s string) Dec {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Add returns d + o.
func (d Dec) Add(o Dec) Dec { return d + o }

// Sub returns d - o.
func (d Dec) Sub(o Dec) Dec { return d - o }

// Mul returns d * o, truncated toward zero.
// Truncation toward zero is the pinned rounding policy for the whole engine:
// the residual dust of every multi-way split is conserved into the protocol
// fee so per-step sums reconcile exactly.
func (d Dec) Mul(o Dec) Dec {
	return d.MulDiv(o, One)
}

// Div returns d / o, truncated toward zero. Division by zero panics, as it
// would for native integers.
func (d Dec) Div(o Dec) Dec {
	return d.MulDiv(One, o)
}

// MulDiv returns d * a / b with a 128-bit intermediate, truncated toward zero.
func (d Dec) MulDiv(a, b Dec) Dec {
	num := getBig()
	tmp := getBig()
	num.SetInt64(int64(d))
	tmp.SetInt64(int64(a))
	num.Mul(num, tmp)
	tmp.SetInt64(int64(b))
	num.Quo(num, tmp) // Quo truncates toward zero
	out := Dec(num.Int64())
	putBig(num)
	putBig(tmp)
	return out
}

// Abs returns the magnitude of d.
func (d Dec) Abs() Dec {
	if d < 0 {
		return -d
	}
	return d
}

// Neg returns -d.
func (d Dec) Neg() Dec { return -d }

// Sign returns -1, 0, or +1.
func (d Dec) Sign() int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether d == 0.
func (d Dec) IsZero() bool { return d == 0 }

// Float64 converts to a float64, for metrics gauges only. Accounting code
// must stay in Dec.
func (d Dec) Float64() float64 { return float64(d) / Scale }

// Min returns the smaller of d and o.
func Min(d, o Dec) Dec {
	if d < o {
		return d
	}
	return o
}

// Max returns the larger of d and o.
func Max(d, o Dec) Dec {
	if d > o {
		return d
	}
	return o
}

// Clamp bounds d to [lo, hi].
func Clamp(d, lo, hi Dec) Dec {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

// MarshalText renders d in its String form, so JSON and YAML carry decimal
// strings instead of raw millionths.
func (d Dec) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses the decimal string form.
func (d *Dec) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// String renders d as a decimal with trailing fractional zeros trimmed.
func (d Dec) String() string {
	v := int64(d)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / Scale
	frac := v % Scale
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	s := fmt.Sprintf("%s%d.%06d", sign, whole, frac)
	return strings.TrimRight(s, "0")
}
