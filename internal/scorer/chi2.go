package scorer

import "math"

// chi2Q computes the upper tail probability of the chi-squared distribution,
// P(X > x) for x >= 0 and an even number of degrees of freedom df = 2n
// (spec §4.6 Fisher combination always calls this with df = 2·n). For even
// df this has the closed finite-sum form used here rather than a general
// incomplete-gamma routine, following the original scoring engine's own
// derivation (original_source/score.c).
//
// The running sum is kept as a mantissa/exponent pair, renormalized via
// math.Frexp whenever the mantissa drifts out of a safe range, so that for
// large evidence sets (where the naive sum's leading term exp(-x/2)
// underflows long before the later terms matter) the tail probability is
// still computed without silently collapsing to zero.
func chi2Q(x float64, df int) float64 {
	if x < 0 {
		x = 0
	}
	k := df / 2
	if k < 1 {
		k = 1
	}

	m := x / 2

	// The leading term is exp(-m), which underflows to a literal 0.0 in
	// ordinary float64 arithmetic once m exceeds roughly 745 — exactly the
	// large-evidence-set case this representation exists to survive. Build
	// it directly from its log instead of computing math.Exp(-m) first.
	acc := mantExpFromLn(-m)
	term := acc
	for i := 1; i < k; i++ {
		term = term.mulScalar(m / float64(i))
		acc = acc.add(term)
	}

	// spec §4.6: "final ln P = ln(mant) + exp·ln2" — convert through the log
	// rather than forming mant·2^exp directly, so a result small enough to
	// underflow in ordinary float64 form still yields a meaningful (if
	// clamped-to-zero) probability instead of an intermediate NaN.
	q := math.Exp(acc.ln())
	return clamp(q, 0, 1)
}

// mantExp represents a value as mant * 2^exp (spec §4.6: "keep {mant, exp}
// pairs and renormalize via frexp whenever |mant| < 1e-200").
type mantExp struct {
	mant float64
	exp  int
}

// mantExpFromLn builds a mantExp directly from a natural log, so a value
// whose ordinary float64 form would underflow to 0 (exp(lnV) for very
// negative lnV) is still represented exactly as mant * 2^exp.
func mantExpFromLn(lnV float64) mantExp {
	if math.IsInf(lnV, -1) {
		return mantExp{}
	}
	exp2 := math.Floor(lnV/math.Ln2) + 1
	frac := lnV - (exp2-1)*math.Ln2
	mant := math.Exp(frac) / 2 // frac in [0, ln2), so exp(frac) in [1,2)
	return mantExp{mant: mant, exp: int(exp2)}
}

// ln returns the natural log of the represented value (spec §4.6: "final
// ln P = ln(mant) + exp·ln2").
func (a mantExp) ln() float64 {
	if a.mant == 0 {
		return math.Inf(-1)
	}
	return math.Log(a.mant) + float64(a.exp)*math.Ln2
}

// mulScalar multiplies the represented value by an ordinary float64,
// renormalizing the mantissa back into frexp's [0.5,1) convention.
func (a mantExp) mulScalar(f float64) mantExp {
	if a.mant == 0 || f == 0 {
		return mantExp{}
	}
	mant := a.mant * f
	m, e := math.Frexp(mant)
	return mantExp{mant: m, exp: a.exp + e}
}

// add sums two mantissa/exponent values, renormalizing the result via
// math.Frexp whenever the running mantissa has drifted out of [0.5, 1) by
// more than the spec's 1e-200 threshold.
func (a mantExp) add(b mantExp) mantExp {
	if a.mant == 0 {
		return b
	}
	if b.mant == 0 {
		return a
	}
	// Express b on a's exponent scale, then add.
	scaled := b.mant * math.Pow(2, float64(b.exp-a.exp))
	sum := a.mant + scaled
	if math.Abs(sum) < 1e-200 || math.Abs(sum) >= 1 {
		m, e := math.Frexp(sum)
		return mantExp{mant: m, exp: a.exp + e}
	}
	return mantExp{mant: sum, exp: a.exp}
}
