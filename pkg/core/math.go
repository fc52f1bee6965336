package core

import "math/bits"

// Fixed-point helpers. All money amounts are unsigned integers; rates and
// prices carry the FloatScaling factor. Products go through a 128-bit
// intermediate so u64 x u64 never overflows before the scale division.

// mulDiv returns a*b/den, truncating, with remainder. Panics when the
// quotient does not fit in 64 bits.
func mulDiv(a, b, den uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		panic("core: fixed-point overflow")
	}
	return bits.Div64(hi, lo, den)
}

// mulTrunc returns a*b/FloatScaling rounded down. Used for notionals and
// maker rebates: the protocol never overpays.
func mulTrunc(a, b uint64) uint64 {
	q, _ := mulDiv(a, b, FloatScaling)
	return q
}

// mulCeil returns a*b/FloatScaling rounded up. Used for taker commissions:
// a nonzero notional with a nonzero rate always yields at least one unit.
func mulCeil(a, b uint64) uint64 {
	q, r := mulDiv(a, b, FloatScaling)
	if r != 0 {
		q++
	}
	return q
}

// divTrunc returns a*FloatScaling/b rounded down: the base amount a quote
// amount buys at price b.
func divTrunc(a, b uint64) uint64 {
	q, _ := mulDiv(a, FloatScaling, b)
	return q
}
