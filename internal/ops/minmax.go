package ops

import "math"

// Names of the C helpers that carry the min/max semantics below.
const (
	MinName = "numfn_min"
	MaxName = "numfn_max"
)

// Min returns the smaller of a and b. A NaN operand is ignored (the other
// operand is returned) and -0 orders below +0.
func Min(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case a == b:
		if math.Signbit(a) {
			return a
		}
		return b
	case a < b:
		return a
	}
	return b
}

// Max returns the larger of a and b with the same NaN and signed-zero rules
// as Min.
func Max(a, b float64) float64 {
	switch {
	case math.IsNaN(a):
		return b
	case math.IsNaN(b):
		return a
	case a == b:
		if math.Signbit(a) {
			return b
		}
		return a
	case a > b:
		return a
	}
	return b
}

// CHelpers is the C definition of Min and Max, emitted ahead of any code
// that uses them.
const CHelpers = `static inline double numfn_min(double a, double b)
{
	if (a != a) return b;
	if (b != b) return a;
	if (a == b) return signbit(a) ? a : b;
	return a < b ? a : b;
}

static inline double numfn_max(double a, double b)
{
	if (a != a) return b;
	if (b != b) return a;
	if (a == b) return signbit(a) ? b : a;
	return a > b ? a : b;
}
`
