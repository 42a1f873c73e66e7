// Package glm estimates least-squares betas for every voxel and writes the
// trial beta series.
package glm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/DiscountGLM/internal/calc"
	"github.com/KyungWonPark/DiscountGLM/internal/design"
	"github.com/KyungWonPark/DiscountGLM/internal/fmri"
	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// LabelColumn is the header of the beta labels file
const LabelColumn = "beta_condition"

var (
	// ErrSingular is returned when X^T X cannot be inverted
	ErrSingular = errors.New("design matrix is rank deficient")
	// ErrNoTrialRegressors is returned when no design column is a trial regressor
	ErrNoTrialRegressors = errors.New("no trial regressors in design matrix")
)

var (
	trialRegressor = regexp.MustCompile(`(?:smaller|larger|false)`)
	trialNumber    = regexp.MustCompile(`_\d+$`)
)

// ComputeBetas solves Y = X B by ordinary least squares, B = (X^T X)^-1 X^T Y.
// X is (time x regressors), Y is (time x voxels) and B comes back as
// (regressors x voxels), computed one voxel column at a time on pl.
func ComputeBetas(X, Y *mat64.Dense, pl *calc.PipeLine) (*mat64.Dense, error) {
	xRows, xCols := X.Dims()
	yRows, yCols := Y.Dims()
	if xRows != yRows {
		return nil, fmt.Errorf("ComputeBetas: design has %d rows, data has %d: %w", xRows, yRows, calc.ErrDimMismatch)
	}

	var xtx mat64.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat64.Dense
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	// (regressors x time)
	var pinv mat64.Dense
	pinv.Mul(&xtxInv, X.T())

	betas := mat64.NewDense(xCols, yCols, nil)
	if err := pl.Project(&pinv, Y, betas); err != nil {
		return nil, err
	}

	return betas, nil
}

// BetaSeries describes a written beta series
type BetaSeries struct {
	Labels     []string
	BetaFile   string
	LabelsFile string
}

// SaveBetaSeries keeps the betas of trial regressors, names each after its
// condition with the trial number stripped, and writes them as a 4-D image
// plus a one-column label table into outDir
func SaveBetaSeries(betas *mat64.Dense, dm *design.Matrix, masker *fmri.Masker, subID, outDir string) (*BetaSeries, error) {
	rows, cols := betas.Dims()
	if rows != len(dm.Columns) {
		return nil, fmt.Errorf("SaveBetaSeries: %d betas for %d regressors: %w", rows, len(dm.Columns), calc.ErrDimMismatch)
	}

	var keep []int
	var labels []string
	for i, name := range dm.Columns {
		if trialRegressor.MatchString(name) {
			keep = append(keep, i)
			labels = append(labels, trialNumber.ReplaceAllString(name, ""))
		}
	}
	if len(keep) == 0 {
		return nil, ErrNoTrialRegressors
	}

	kept := mat64.NewDense(len(keep), cols, nil)
	for k, i := range keep {
		kept.SetRow(k, betas.RawRowView(i))
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}

	out := &BetaSeries{
		Labels:     labels,
		BetaFile:   filepath.Join(outDir, fmt.Sprintf("sub-%s_beta_series.nii.gz", subID)),
		LabelsFile: filepath.Join(outDir, fmt.Sprintf("sub-%s_beta_labels.csv", subID)),
	}

	if err := masker.WriteImage(out.BetaFile, kept); err != nil {
		return nil, fmt.Errorf("SaveBetaSeries: %w", err)
	}
	if err := io.ColumnToCSV(out.LabelsFile, LabelColumn, labels); err != nil {
		return nil, fmt.Errorf("SaveBetaSeries: %w", err)
	}

	return out, nil
}
