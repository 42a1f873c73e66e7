// Package design builds first-level GLM design matrices: one HRF-convolved
// regressor per trial, a constant and a discrete cosine high-pass basis.
package design

import (
	"errors"
	"fmt"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// Column names
const (
	ConstantColumn   = "constant"
	DerivativeSuffix = "_derivative"
	cosinePrefix     = "cosine"
)

// ErrBadTiming is returned for non-positive TR, run length or oversampling
var ErrBadTiming = errors.New("invalid timing")

// Event is one row of a long-format events table
type Event struct {
	Onset     float64
	Duration  float64
	TrialType string
}

// BuildOptions controls design matrix construction
type BuildOptions struct {
	// HPFilterCutoff in Hz; zero disables the cosine basis
	HPFilterCutoff float64
	Oversampling   int
	TR             float64
	NumTRs         int
	AddDerivative  bool
}

// Matrix is a design matrix with labeled columns, one row per TR
type Matrix struct {
	Columns []string
	// Times are the frame times in seconds
	Times []float64
	X     *mat64.Dense
}

// Dims returns the number of frames and regressors
func (m *Matrix) Dims() (int, int) {
	return m.X.Dims()
}

// Column returns a copy of a named column, nil if absent
func (m *Matrix) Column(name string) []float64 {
	for j, c := range m.Columns {
		if c == name {
			return mat64.Col(nil, j, m.X)
		}
	}
	return nil
}

// WriteCSV saves the matrix with its column names as header
func (m *Matrix) WriteCSV(path string) error {
	return io.Mat64toCSV(path, m.Columns, m.X)
}

// WriteNpy saves the bare matrix as a numpy array
func (m *Matrix) WriteNpy(path string) error {
	return io.Mat64toNpy(path, m.X)
}

// Build creates a design matrix by convolving each trial type's events with
// the SPM HRF on an oversampled grid and sampling the result at every TR
func Build(events []Event, opts BuildOptions) (*Matrix, error) {
	if opts.TR <= 0 || opts.NumTRs < 1 || opts.Oversampling < 1 {
		return nil, fmt.Errorf("%w: tr=%g num_trs=%d oversampling=%d", ErrBadTiming, opts.TR, opts.NumTRs, opts.Oversampling)
	}

	maxTime := opts.TR * float64(opts.NumTRs)
	convResolution := opts.TR / float64(opts.Oversampling)

	times := make([]float64, opts.NumTRs)
	for i := range times {
		times[i] = opts.TR * float64(i)
	}

	hrf := SPMHRF(opts.TR, opts.Oversampling)
	var hrfDeriv []float64
	if opts.AddDerivative {
		hrfDeriv = SPMTimeDerivative(opts.TR, opts.Oversampling)
	}

	var names []string
	var columns [][]float64

	for _, trialType := range trialTypes(events) {
		var onsets, durations []float64
		for _, e := range events {
			if e.TrialType == trialType {
				onsets = append(onsets, e.Onset)
				durations = append(durations, e.Duration)
			}
		}

		sf := StickArray(onsets, durations, maxTime, convResolution)

		names = append(names, trialType)
		columns = append(columns, downsample(FFTConvolve(sf, hrf), len(sf), opts.Oversampling, opts.NumTRs))

		if opts.AddDerivative {
			names = append(names, trialType+DerivativeSuffix)
			columns = append(columns, downsample(FFTConvolve(sf, hrfDeriv), len(sf), opts.Oversampling, opts.NumTRs))
		}
	}

	constant := make([]float64, opts.NumTRs)
	for i := range constant {
		constant[i] = 1
	}
	names = append(names, ConstantColumn)
	columns = append(columns, constant)

	if opts.HPFilterCutoff != 0 {
		for k, col := range CosineDrift(opts.HPFilterCutoff, times) {
			// redundant with the constant
			if !varies(col) {
				continue
			}
			names = append(names, fmt.Sprintf("%s%d", cosinePrefix, k))
			columns = append(columns, col)
		}
	}

	x := mat64.NewDense(opts.NumTRs, len(columns), nil)
	for j, col := range columns {
		x.SetCol(j, col)
	}

	return &Matrix{Columns: names, Times: times, X: x}, nil
}

// trialTypes returns the distinct trial types in order of first appearance
func trialTypes(events []Event) []string {
	seen := make(map[string]bool)
	var types []string
	for _, e := range events {
		if !seen[e.TrialType] {
			seen[e.TrialType] = true
			types = append(types, e.TrialType)
		}
	}
	return types
}

// downsample truncates a convolution to the stick length and keeps every
// step-th sample, padding with zeros up to n samples
func downsample(conv []float64, length, step, n int) []float64 {
	if len(conv) > length {
		conv = conv[:length]
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := i * step
		if idx >= len(conv) {
			break
		}
		out[i] = conv[idx]
	}
	return out
}

func varies(col []float64) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return true
		}
	}
	return false
}
