package calc

import (
	"github.com/gonum/floats"
	"github.com/gonum/matrix/mat64"
)

// Mean returns the grand mean over every element of inputMat
func (p *PipeLine) Mean(inputMat *mat64.Dense) float64 {
	inputRows, inputCols := inputMat.Dims()
	if inputRows == 0 || inputCols == 0 {
		return 0
	}

	rowSums := make([]float64, inputRows)
	p.run(inputRows, func(index int) {
		rowSums[index] = floats.Sum(inputMat.RawRowView(index))
	})

	return floats.Sum(rowSums) / float64(inputRows*inputCols)
}
