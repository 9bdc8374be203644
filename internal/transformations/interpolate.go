package transformations

// Interpolate fills each run of missing values that has a known value on both
// sides, treating positions as equally spaced. Leading and trailing runs stay nil.
// The input is not modified.
func Interpolate(values []*float64) []*float64 {
	out := make([]*float64, len(values))
	copy(out, values)

	prev := -1
	for i, value := range values {
		if value == nil {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			lo, hi := *values[prev], *values[i]
			steps := float64(i - prev)
			for k := 1; k < i-prev; k++ {
				filled := lo + (hi-lo)*float64(k)/steps
				out[prev+k] = &filled
			}
		}
		prev = i
	}
	return out
}
