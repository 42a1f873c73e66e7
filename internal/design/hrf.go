package design

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// SPM canonical HRF parameters
const (
	hrfTimeLength  = 32.0
	hrfDelay       = 6.0
	hrfUndershoot  = 16.0
	hrfDispersion  = 1.0
	hrfUDispersion = 1.0
	hrfRatio       = 0.167

	// onset shift used for the finite-difference time derivative
	derivativeStep = 0.1
)

// SPMHRF returns the SPM canonical hemodynamic response sampled every
// tr/oversampling seconds over 32s, normalized to unit sum
func SPMHRF(tr float64, oversampling int) []float64 {
	return gammaDifferenceHRF(tr, oversampling, hrfTimeLength, 0)
}

// SPMTimeDerivative returns the finite-difference time derivative of the SPM HRF
func SPMTimeDerivative(tr float64, oversampling int) []float64 {
	hrf := gammaDifferenceHRF(tr, oversampling, hrfTimeLength, 0)
	shifted := gammaDifferenceHRF(tr, oversampling, hrfTimeLength, derivativeStep)

	dhrf := make([]float64, len(hrf))
	for i := range hrf {
		dhrf[i] = (hrf[i] - shifted[i]) / derivativeStep
	}
	return dhrf
}

func gammaDifferenceHRF(tr float64, oversampling int, timeLength, onset float64) []float64 {
	dt := tr / float64(oversampling)
	n := int(math.RoundToEven(timeLength / dt))
	if n < 1 {
		n = 1
	}

	peak := distuv.Gamma{Alpha: hrfDelay / hrfDispersion, Beta: 1 / hrfDispersion}
	undershoot := distuv.Gamma{Alpha: hrfUndershoot / hrfUDispersion, Beta: 1 / hrfUDispersion}

	hrf := make([]float64, n)
	var sum float64
	for i := range hrf {
		t := linspaceAt(0, timeLength, n, i) - onset
		hrf[i] = gammaPDF(peak, t-dt) - hrfRatio*gammaPDF(undershoot, t-dt)
		sum += hrf[i]
	}

	if sum != 0 {
		for i := range hrf {
			hrf[i] /= sum
		}
	}
	return hrf
}

// gammaPDF is zero on the non-positive half line
func gammaPDF(g distuv.Gamma, x float64) float64 {
	if x <= 0 {
		return 0
	}
	return g.Prob(x)
}

// linspaceAt returns the i-th of n evenly spaced points spanning [start, stop]
func linspaceAt(start, stop float64, n, i int) float64 {
	if n == 1 {
		return start
	}
	return start + (stop-start)*float64(i)/float64(n-1)
}
