package calc

import (
	"github.com/gonum/matrix/mat64"
)

// Project computes outputMat = projMat * dataMat one data column at a time.
// projMat is k by n, dataMat is n by m and outputMat must be k by m. Columns
// are voxels in the GLM, so each worker owns whole voxels.
func (p *PipeLine) Project(projMat *mat64.Dense, dataMat *mat64.Dense, outputMat *mat64.Dense) error {
	projRows, projCols := projMat.Dims()
	dataRows, dataCols := dataMat.Dims()
	outputRows, outputCols := outputMat.Dims()

	if projCols != dataRows {
		return dimError("Project", projRows, projCols, dataRows, dataCols)
	}
	if outputRows != projRows || outputCols != dataCols {
		return dimError("Project", projRows, dataCols, outputRows, outputCols)
	}

	p.run(dataCols, func(voxel int) {
		column := mat64.Col(nil, voxel, dataMat)
		for k := 0; k < projRows; k++ {
			var acc float64
			row := projMat.RawRowView(k)
			for t, w := range row {
				acc += w * column[t]
			}
			outputMat.Set(k, voxel, acc)
		}
	})

	return nil
}
