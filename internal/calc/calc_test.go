package calc

import (
	"errors"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInitFallsBackToCPUCount(t *testing.T) {
	assert.Equal(t, 3, Init(3).Workers())
	assert.GreaterOrEqual(t, Init(0).Workers(), 1)
}

func TestMean(t *testing.T) {
	pl := Init(2)
	m := mat64.NewDense(2, 3, []float64{
		1, 2, 3,
		4, 5, 6,
	})

	assert.InDelta(t, 3.5, pl.Mean(m), 1e-12)
}

func TestScaleInPlace(t *testing.T) {
	pl := Init(4)
	m := mat64.NewDense(2, 2, []float64{1, 2, 3, 4})

	require.NoError(t, pl.Scale(m, m, 0.5))
	assert.True(t, mat64.EqualApprox(m, mat64.NewDense(2, 2, []float64{0.5, 1, 1.5, 2}), 1e-12))
}

func TestScaleDimMismatch(t *testing.T) {
	pl := Init(1)
	err := pl.Scale(mat64.NewDense(2, 2, nil), mat64.NewDense(2, 3, nil), 1)
	assert.True(t, errors.Is(err, ErrDimMismatch))
}

func TestProjectMatchesMul(t *testing.T) {
	pl := Init(3)

	proj := mat64.NewDense(2, 4, []float64{
		1, 0, 2, -1,
		0.5, 1, 0, 3,
	})
	data := mat64.NewDense(4, 5, []float64{
		1, 2, 3, 4, 5,
		0, 1, 0, 1, 0,
		2, 2, 2, 2, 2,
		-1, 0, 1, 0, -1,
	})

	got := mat64.NewDense(2, 5, nil)
	require.NoError(t, pl.Project(proj, data, got))

	var want mat64.Dense
	want.Mul(proj, data)
	assert.True(t, mat64.EqualApprox(got, &want, 1e-12))
}

func TestProjectDimMismatch(t *testing.T) {
	pl := Init(2)

	err := pl.Project(mat64.NewDense(2, 3, nil), mat64.NewDense(4, 5, nil), mat64.NewDense(2, 5, nil))
	assert.True(t, errors.Is(err, ErrDimMismatch))

	err = pl.Project(mat64.NewDense(2, 4, nil), mat64.NewDense(4, 5, nil), mat64.NewDense(2, 4, nil))
	assert.True(t, errors.Is(err, ErrDimMismatch))
}

func TestSymCheck(t *testing.T) {
	pl := Init(2)

	sym := mat64.NewDense(3, 3, []float64{
		2, 1, 0,
		1, 3, 4,
		0, 4, 5,
	})
	assert.True(t, pl.SymCheck(sym, 1e-12))

	sym.Set(2, 1, 4.1)
	assert.False(t, pl.SymCheck(sym, 1e-12))
	assert.False(t, pl.SymCheck(mat64.NewDense(2, 3, nil), 1e-12))
}
