package fmri

import (
	"fmt"
	"math"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// Affine returns the 4x4 voxel-to-world transform of hdr: the sform when
// set, else the qform, else a scaling by the voxel sizes
func Affine(hdr *io.Header) *mat64.Dense {
	switch {
	case hdr.SformCode > 0:
		a := mat64.NewDense(4, 4, nil)
		for j := 0; j < 4; j++ {
			a.Set(0, j, float64(hdr.SrowX[j]))
			a.Set(1, j, float64(hdr.SrowY[j]))
			a.Set(2, j, float64(hdr.SrowZ[j]))
		}
		a.Set(3, 3, 1)
		return a
	case hdr.QformCode > 0:
		return quaternAffine(hdr)
	}

	a := mat64.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		a.Set(i, i, pixdim(hdr, i+1))
	}
	a.Set(3, 3, 1)
	return a
}

func pixdim(hdr *io.Header, i int) float64 {
	if d := float64(hdr.Pixdim[i]); d > 0 {
		return d
	}
	return 1
}

func quaternAffine(hdr *io.Header) *mat64.Dense {
	b := float64(hdr.QuaternB)
	c := float64(hdr.QuaternC)
	d := float64(hdr.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// 180 degree rotation
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d, a = b/n, c/n, d/n, 0
	} else {
		a = math.Sqrt(a)
	}

	qfac := 1.0
	if hdr.Pixdim[0] < 0 {
		qfac = -1
	}
	dx, dy, dz := pixdim(hdr, 1), pixdim(hdr, 2), qfac*pixdim(hdr, 3)

	return mat64.NewDense(4, 4, []float64{
		(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(hdr.QoffsetX),
		2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(hdr.QoffsetY),
		2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - c*c - b*b) * dz, float64(hdr.QoffsetZ),
		0, 0, 0, 1,
	})
}

// ResampleNearest resamples the first volume of src onto the grid of target
// by nearest-neighbour lookup through both affines. Target voxels falling
// outside src are zero.
func ResampleNearest(src Image, srcHdr, target *io.Header) (*Grid, error) {
	var srcInv mat64.Dense
	if err := srcInv.Inverse(Affine(srcHdr)); err != nil {
		return nil, fmt.Errorf("ResampleNearest: source affine: %w", err)
	}

	// target voxel -> source voxel
	var vox2vox mat64.Dense
	vox2vox.Mul(&srcInv, Affine(target))

	srcShape := src.Shape()
	xyz := io.Spatial(target)
	out := NewGrid([4]int{xyz[0], xyz[1], xyz[2], 1})

	m := vox2vox.RawMatrix()
	at := func(r, c int) float64 { return m.Data[r*m.Stride+c] }

	for x := 0; x < xyz[0]; x++ {
		for y := 0; y < xyz[1]; y++ {
			for z := 0; z < xyz[2]; z++ {
				fx, fy, fz := float64(x), float64(y), float64(z)

				var idx [3]int
				inside := true
				for r := 0; r < 3; r++ {
					v := at(r, 0)*fx + at(r, 1)*fy + at(r, 2)*fz + at(r, 3)
					idx[r] = int(math.Round(v))
					if idx[r] < 0 || idx[r] >= srcShape[r] {
						inside = false
						break
					}
				}
				if !inside {
					continue
				}

				out.Set(x, y, z, 0, src.GetAt(uint32(idx[0]), uint32(idx[1]), uint32(idx[2]), 0))
			}
		}
	}

	return out, nil
}
