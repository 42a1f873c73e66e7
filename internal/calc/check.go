package calc

import (
	"math"

	"github.com/gonum/matrix/mat64"
)

// SymCheck checks symmetry
func (p *PipeLine) SymCheck(matrix *mat64.Dense, pre float64) bool {
	rows, cols := matrix.Dims()
	if rows != cols {
		return false
	}

	pre = math.Abs(pre)
	isSymm := make([]bool, rows)

	p.run(rows, func(index int) {
		isSymm[index] = true
		for i := index; i < cols; i++ {
			if math.Abs(matrix.At(index, i)-matrix.At(i, index)) >= pre {
				isSymm[index] = false
				break
			}
		}
	})

	symm := true
	for i := 0; i < rows; i++ {
		symm = symm && isSymm[i]
	}

	return symm
}
