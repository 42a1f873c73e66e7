package fmri

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/gonum/matrix/mat64"

	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

var (
	// ErrEmptyMask is returned for a mask without any nonzero voxel
	ErrEmptyMask = errors.New("mask has no voxels")
	// ErrGridMismatch is returned when an image is not on the mask grid
	ErrGridMismatch = errors.New("image grid does not match mask")
)

// Voxel is a 3-D grid coordinate
type Voxel struct {
	x, y, z int
}

// Masker maps images on a mask grid to time by voxel matrices and back.
// Voxels are ordered with x slowest and z fastest.
type Masker struct {
	header *io.Header
	dims   [3]int
	voxels []Voxel
}

// NewMasker selects the nonzero voxels of the first volume of mask. hdr
// carries the grid geometry used when writing images back out.
func NewMasker(mask Image, hdr *io.Header) (*Masker, error) {
	shape := mask.Shape()
	m := &Masker{header: hdr, dims: [3]int{shape[0], shape[1], shape[2]}}

	for x := 0; x < shape[0]; x++ {
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[2]; z++ {
				v := mask.GetAt(uint32(x), uint32(y), uint32(z), 0)
				if v != 0 && !math.IsNaN(float64(v)) {
					m.voxels = append(m.voxels, Voxel{x, y, z})
				}
			}
		}
	}

	if len(m.voxels) == 0 {
		return nil, ErrEmptyMask
	}
	return m, nil
}

// Len returns the number of voxels in the mask
func (m *Masker) Len() int {
	return len(m.voxels)
}

// Dims returns the x, y, z extents of the mask grid
func (m *Masker) Dims() [3]int {
	return m.dims
}

// Header returns the grid geometry
func (m *Masker) Header() *io.Header {
	return m.header
}

// Transform extracts the masked voxels of every volume of img into a
// (volumes x voxels) matrix, numLoader volumes at a time
func (m *Masker) Transform(img Image, numLoader int) (*mat64.Dense, error) {
	shape := img.Shape()
	if shape[0] != m.dims[0] || shape[1] != m.dims[1] || shape[2] != m.dims[2] {
		return nil, fmt.Errorf("%w: image %v, mask %v", ErrGridMismatch, shape[:3], m.dims)
	}
	if numLoader < 1 {
		numLoader = runtime.NumCPU()
	}

	timeSeries := mat64.NewDense(shape[3], len(m.voxels), nil)
	m.doSampling(img, timeSeries, shape[3], numLoader)

	return timeSeries, nil
}

func (m *Masker) sampling(img Image, order <-chan int, wg *sync.WaitGroup, timeSeries *mat64.Dense) {
	for timePoint := range order {
		row := timeSeries.RawRowView(timePoint)
		for i, vox := range m.voxels {
			row[i] = float64(img.GetAt(uint32(vox.x), uint32(vox.y), uint32(vox.z), uint32(timePoint)))
		}
		wg.Done()
	}
}

func (m *Masker) doSampling(img Image, timeSeries *mat64.Dense, numTime, numLoader int) {
	order := make(chan int, numLoader)
	var wg sync.WaitGroup

	wg.Add(numTime)
	for i := 0; i < numLoader; i++ {
		go m.sampling(img, order, &wg, timeSeries)
	}

	for timePoint := 0; timePoint < numTime; timePoint++ {
		order <- timePoint
	}
	wg.Wait()

	close(order)
}

// InverseTransform places each row of rows, one value per mask voxel, into
// its own volume on the mask grid; voxels outside the mask stay zero
func (m *Masker) InverseTransform(rows *mat64.Dense) (*Grid, error) {
	numVol, numVox := rows.Dims()
	if numVox != len(m.voxels) {
		return nil, fmt.Errorf("%w: %d values per row for %d mask voxels", ErrGridMismatch, numVox, len(m.voxels))
	}

	g := NewGrid([4]int{m.dims[0], m.dims[1], m.dims[2], numVol})
	for t := 0; t < numVol; t++ {
		row := rows.RawRowView(t)
		for i, vox := range m.voxels {
			g.Set(vox.x, vox.y, vox.z, t, float32(row[i]))
		}
	}

	return g, nil
}

// WriteImage inverse-transforms rows and saves them as a NIfTI image
func (m *Masker) WriteImage(path string, rows *mat64.Dense) error {
	g, err := m.InverseTransform(rows)
	if err != nil {
		return err
	}
	return g.Save(path, m.header)
}
