package design

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// tolerance for treating a ratio of seconds as a whole number of samples
const sampleEps = 1e-9

// snap rounds x to the nearest integer when it is within float noise of it
func snap(x float64) float64 {
	r := math.Round(x)
	if math.Abs(x-r) <= sampleEps*math.Max(1, math.Abs(x)) {
		return r
	}
	return x
}

// StickArray returns a boxcar series sampled every resolution seconds over
// length seconds, set to one inside each event. Events shorter than one
// sample mark their onset sample.
func StickArray(onsets, durations []float64, length, resolution float64) []float64 {
	n := int(math.Ceil(snap(length / resolution)))
	if n < 0 {
		n = 0
	}
	sf := make([]float64, n)

	for i, onset := range onsets {
		start := int(math.Floor(snap(onset / resolution)))
		end := int(math.Ceil(snap((onset + durations[i]) / resolution)))
		// zero-length events still mark their onset sample
		if end <= start {
			end = start + 1
		}
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		for j := start; j < end; j++ {
			sf[j] = 1
		}
	}

	return sf
}

// FFTConvolve returns the full linear convolution of signal and kernel,
// len(signal)+len(kernel)-1 samples long
func FFTConvolve(signal, kernel []float64) []float64 {
	if len(signal) == 0 || len(kernel) == 0 {
		return nil
	}

	full := len(signal) + len(kernel) - 1
	size := 1
	for size < full {
		size <<= 1
	}

	fft := fourier.NewFFT(size)

	padded := make([]float64, size)
	copy(padded, signal)
	sigCoeff := fft.Coefficients(nil, padded)

	for i := range padded {
		padded[i] = 0
	}
	copy(padded, kernel)
	kerCoeff := fft.Coefficients(nil, padded)

	for i := range sigCoeff {
		sigCoeff[i] *= kerCoeff[i]
	}

	out := fft.Sequence(nil, sigCoeff)
	// the transform pair is unnormalized
	scale := 1 / float64(size)
	for i := range out {
		out[i] *= scale
	}

	return out[:full]
}

// CosineDrift returns the discrete cosine high-pass basis for frames sampled
// at times (seconds): floor(2*(t_last-t_first)*cutoffHz) columns, column k-1
// being cos(pi*(2t+1)*k/(2n)) with t the frame time in seconds and n the
// number of frames. nil when no cosine fits.
func CosineDrift(cutoffHz float64, times []float64) [][]float64 {
	n := len(times)
	if n == 0 || cutoffHz <= 0 {
		return nil
	}

	nCos := int(math.Floor(snap(2 * (times[n-1] - times[0]) * cutoffHz)))
	if nCos < 1 {
		return nil
	}

	basis := make([][]float64, nCos)
	for k := 1; k <= nCos; k++ {
		col := make([]float64, n)
		for i := range col {
			col[i] = math.Cos(math.Pi * (2*times[i] + 1) * float64(k) / float64(2*n))
		}
		basis[k-1] = col
	}
	return basis
}
