package glm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KyungWonPark/DiscountGLM/internal/calc"
	"github.com/KyungWonPark/DiscountGLM/internal/design"
	"github.com/KyungWonPark/DiscountGLM/internal/fmri"
	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestComputeBetas(t *testing.T) {
	X := mat64.NewDense(6, 3, []float64{
		1, 0, 1,
		1, 1, 0,
		1, 2, 1,
		1, 3, 0,
		1, 4, 1,
		1, 5, 0,
	})
	B := mat64.NewDense(3, 4, []float64{
		100, 50, -3, 0,
		2, -1, 0.5, 0,
		7, 0, 1, 1,
	})

	var Y mat64.Dense
	Y.Mul(X, B)

	betas, err := ComputeBetas(X, &Y, calc.Init(3))
	require.NoError(t, err)
	assert.True(t, mat64.EqualApprox(B, betas, 1e-9))
}

func TestComputeBetasLeastSquares(t *testing.T) {
	X := mat64.NewDense(4, 1, []float64{1, 1, 1, 1})
	Y := mat64.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 6, 40})

	betas, err := ComputeBetas(X, Y, calc.Init(2))
	require.NoError(t, err)
	// the mean of each voxel
	assert.InDelta(t, 3.0, betas.At(0, 0), 1e-12)
	assert.InDelta(t, 25.0, betas.At(0, 1), 1e-12)
}

func TestComputeBetasErrors(t *testing.T) {
	pl := calc.Init(2)

	_, err := ComputeBetas(mat64.NewDense(3, 1, []float64{1, 1, 1}), mat64.NewDense(4, 1, nil), pl)
	assert.ErrorIs(t, err, calc.ErrDimMismatch)

	collinear := mat64.NewDense(3, 2, []float64{1, 2, 1, 2, 1, 2})
	_, err = ComputeBetas(collinear, mat64.NewDense(3, 1, []float64{1, 2, 3}), pl)
	assert.ErrorIs(t, err, ErrSingular)
}

func testMasker(t *testing.T) *fmri.Masker {
	t.Helper()
	mask := fmri.NewGrid([4]int{2, 1, 1, 1})
	mask.Set(0, 0, 0, 0, 1)
	mask.Set(1, 0, 0, 0, 1)

	hdr := &io.Header{SformCode: 1}
	hdr.SrowX = [4]float32{2, 0, 0, 0}
	hdr.SrowY = [4]float32{0, 2, 0, 0}
	hdr.SrowZ = [4]float32{0, 0, 2, 0}

	m, err := fmri.NewMasker(mask, hdr)
	require.NoError(t, err)
	return m
}

func TestSaveBetaSeries(t *testing.T) {
	dm := &design.Matrix{Columns: []string{"larger_later_2", "smaller_sooner_4", "larger_later_13", design.ConstantColumn, "cosine0"}}
	betas := mat64.NewDense(5, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
		100, 100,
		0.1, 0.2,
	})

	outDir := filepath.Join(t.TempDir(), "lsa", "out")
	out, err := SaveBetaSeries(betas, dm, testMasker(t), "s101", outDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"larger_later", "smaller_sooner", "larger_later"}, out.Labels)
	assert.Equal(t, filepath.Join(outDir, "sub-s101_beta_series.nii.gz"), out.BetaFile)

	hdr, err := io.ReadHeader(out.BetaFile)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 3}, io.Shape(hdr))
	assert.Equal(t, [4]float32{0, 2, 0, 0}, hdr.SrowY)

	// one volume per trial regressor, voxels in mask order
	img, err := fmri.Open(out.BetaFile)
	require.NoError(t, err)
	assert.Equal(t, [4]int{2, 1, 1, 3}, img.Shape())
	for trial, want := range [][2]float32{{1, 2}, {3, 4}, {5, 6}} {
		assert.Equal(t, want[0], img.GetAt(0, 0, 0, uint32(trial)))
		assert.Equal(t, want[1], img.GetAt(1, 0, 0, uint32(trial)))
	}

	raw, err := os.ReadFile(out.LabelsFile)
	require.NoError(t, err)
	assert.Equal(t, "beta_condition\nlarger_later\nsmaller_sooner\nlarger_later\n", string(raw))
}

func TestSaveBetaSeriesErrors(t *testing.T) {
	dir := t.TempDir()
	m := testMasker(t)

	dm := &design.Matrix{Columns: []string{design.ConstantColumn, "cosine0"}}
	_, err := SaveBetaSeries(mat64.NewDense(2, 2, nil), dm, m, "s101", dir)
	assert.ErrorIs(t, err, ErrNoTrialRegressors)

	_, err = SaveBetaSeries(mat64.NewDense(3, 2, nil), dm, m, "s101", dir)
	assert.ErrorIs(t, err, calc.ErrDimMismatch)
}
