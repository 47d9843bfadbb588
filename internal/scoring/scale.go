package scoring

import "math"

// valid reports whether v is a usable, finite, positive input.
func valid(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LogScale maps a count onto 0..w on a base-10 logarithmic curve that reaches
// the cap at 10^d. Counts at or below one score zero.
func LogScale(count, w, d float64) float64 {
	if !valid(count) || !valid(w) || !valid(d) {
		return 0
	}
	v := math.Log10(count) / d * w
	if v <= 0 {
		return 0
	}
	return math.Min(w, v)
}

// LinearScale maps v onto 0..w, reaching the cap at target t.
func LinearScale(v, t, w float64) float64 {
	if !valid(v) || !valid(t) || !valid(w) {
		return 0
	}
	return math.Min(w, v/t*w)
}

// BandScale gives the full weight w inside [lo, hi]. Below lo the score rises
// linearly from zero; above hi it falls linearly to floor*w at falloff and
// stays there.
func BandScale(v, lo, hi, falloff, floor, w float64) float64 {
	if !valid(v) || !valid(w) || lo < 0 || hi < lo || falloff < hi {
		return 0
	}
	floor = math.Max(0, math.Min(1, floor))
	switch {
	case v < lo:
		return v / lo * w
	case v <= hi:
		return w
	case v >= falloff:
		return floor * w
	default:
		drop := (v - hi) / (falloff - hi) * (w - floor*w)
		return w - drop
	}
}

// Award is a fixed number of points granted when On is set.
type Award struct {
	On     bool
	Points float64
}

// Bonus sums the points of every set award, capped at w.
func Bonus(w float64, awards ...Award) float64 {
	if !valid(w) {
		return 0
	}
	var total float64
	for _, a := range awards {
		if a.On && valid(a.Points) {
			total += a.Points
		}
	}
	return math.Min(w, total)
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}
