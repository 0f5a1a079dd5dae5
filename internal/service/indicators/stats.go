package indicators

import "math"

// Statistical primitives shared by the indicator catalog. All of them treat
// empty input as zero rather than NaN; callers guard degenerate cases before
// scoring.

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	sum := 0.0
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

// coefficientOfVariation returns stddev/mean and false when the mean is zero.
func coefficientOfVariation(xs []float64) (float64, bool) {
	m := mean(xs)
	if m == 0 {
		return 0, false
	}
	return stdDev(xs) / math.Abs(m), true
}

// herfindahl computes the Herfindahl-Hirschman Index on the conventional
// 0-10000 scale from absolute quantities (bid counts or awarded values).
func herfindahl(quantities []float64) float64 {
	total := 0.0
	for _, q := range quantities {
		total += q
	}
	if total == 0 {
		return 0
	}
	hhi := 0.0
	for _, q := range quantities {
		share := q / total
		hhi += share * share
	}
	return hhi * 10000
}

// shannonEntropyNorm computes Shannon entropy over a distribution of absolute
// quantities, normalized to [0,1] by the maximum entropy log2(n). A single
// outcome yields 0.
func shannonEntropyNorm(quantities []float64) float64 {
	total := 0.0
	n := 0
	for _, q := range quantities {
		if q > 0 {
			total += q
			n++
		}
	}
	if n < 2 || total == 0 {
		return 0
	}
	h := 0.0
	for _, q := range quantities {
		if q <= 0 {
			continue
		}
		p := q / total
		h -= p * math.Log2(p)
	}
	return h / math.Log2(float64(n))
}

// jaccard computes set similarity between two non-empty sets given their
// intersection and union sizes already resolved by the caller.
func jaccard(intersection, union int) float64 {
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func clampScore(s float64) float64 {
	return math.Max(0, math.Min(100, s))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// round3 keeps evidence values readable without losing audit precision.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
