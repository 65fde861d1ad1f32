package audio

// Resample converts samples from srcRate to dstRate by linear interpolation.
// Output index i reads source position i*(src/dst), blended between the
// floor and ceil samples by the fractional part. Equal rates return the
// input unchanged.
func Resample(samples []float32, srcRate, dstRate uint32) []float32 {
	if srcRate == dstRate || srcRate == 0 || dstRate == 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(srcRate) / float64(dstRate)
	n := int(float64(len(samples)) / ratio)
	out := make([]float32, n)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx > last {
			idx = last
		}
		next := idx + 1
		if next > last {
			next = last
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[next]*frac
	}
	return out
}

// Trim drops leading and trailing samples at or below threshold, keeping
// padding samples on each side of the outermost loud samples. A buffer with
// nothing above threshold trims to empty.
func Trim(samples []float32, threshold float32, padding int) []float32 {
	first, last := -1, -1
	for i, s := range samples {
		if abs32(s) > threshold {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return samples[:0]
	}
	start := max(0, first-padding)
	end := min(len(samples), last+1+padding)
	return samples[start:end]
}

// Peak returns the largest absolute amplitude in samples.
func Peak(samples []float32) float32 {
	var p float32
	for _, s := range samples {
		if a := abs32(s); a > p {
			p = a
		}
	}
	return p
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
