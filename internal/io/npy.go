package io

import (
	"fmt"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	w, err := gonpy.NewFileWriter(path)
	if err != nil {
		return fmt.Errorf("Mat64toNpy: open %s: %w", path, err)
	}
	w.Shape = []int{rows, cols}
	w.Version = 2

	if err := w.WriteFloat64(contiguous(matrix)); err != nil {
		return fmt.Errorf("Mat64toNpy: write %s: %w", path, err)
	}

	return nil
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix
func NpytoMat64(path string) (*mat64.Dense, error) {
	r, err := gonpy.NewFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("NpytoMat64: open %s: %w", path, err)
	}

	if len(r.Shape) != 2 {
		return nil, fmt.Errorf("NpytoMat64: %s has shape %v, want 2-D", path, r.Shape)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, fmt.Errorf("NpytoMat64: read %s: %w", path, err)
	}

	return mat64.NewDense(r.Shape[0], r.Shape[1], data), nil
}

// contiguous returns the row-major backing data of matrix, copying when the
// matrix is a strided view.
func contiguous(matrix *mat64.Dense) []float64 {
	rows, cols := matrix.Dims()
	raw := matrix.RawMatrix()
	if raw.Stride == cols {
		return raw.Data[:rows*cols]
	}

	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		data = append(data, matrix.RawRowView(i)...)
	}
	return data
}
