package calc

import (
	"github.com/gonum/matrix/mat64"
)

// Scale multiplies every element of inputMat by factor into outputMat.
// inputMat and outputMat may be the same matrix.
func (p *PipeLine) Scale(inputMat *mat64.Dense, outputMat *mat64.Dense, factor float64) error {
	inputRows, inputCols := inputMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if inputRows != outputRows || inputCols != outputCols {
		return dimError("Scale", inputRows, inputCols, outputRows, outputCols)
	}

	p.run(inputRows, func(index int) {
		for t := 0; t < inputCols; t++ {
			outputMat.Set(index, t, inputMat.At(index, t)*factor)
		}
	})

	return nil
}
