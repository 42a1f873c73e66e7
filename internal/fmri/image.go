// Package fmri reads BOLD and mask images, maps them to time-by-voxel
// matrices and back, and applies grand-mean scaling.
package fmri

import (
	"fmt"

	"github.com/KyungWonPark/nifti"

	"github.com/KyungWonPark/DiscountGLM/internal/io"
)

// Image is a voxel grid indexed x, y, z, t
type Image interface {
	GetAt(x, y, z, t uint32) float32
	// Shape returns the x, y, z extents and the number of volumes
	Shape() [4]int
}

// Volume is a NIfTI image held in memory
type Volume struct {
	Path   string
	Header *io.Header

	img    *nifti.Nifti1Image
	decode func(float32) float32
}

// Open loads a .nii or .nii.gz image. Integer voxels are converted to their
// signed value and scl_slope/scl_inter scaling is applied.
func Open(path string) (*Volume, error) {
	hdr, err := io.ReadHeader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !io.IsSingleFile(hdr) {
		return nil, fmt.Errorf("open %s: %w: paired .hdr/.img", path, io.ErrNotNifti)
	}

	decode, err := io.Decoder(hdr)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := io.CheckDataSize(path, hdr); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	loaded := img.GetHeader()
	if err := io.Validate(&loaded); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return &Volume{Path: path, Header: hdr, img: &img, decode: decode}, nil
}

// GetAt returns the voxel value at x, y, z in volume t
func (v *Volume) GetAt(x, y, z, t uint32) float32 {
	return v.decode(v.img.GetAt(x, y, z, t))
}

// Shape implements Image
func (v *Volume) Shape() [4]int {
	xyz := io.Spatial(v.Header)
	return [4]int{xyz[0], xyz[1], xyz[2], io.Volumes(v.Header)}
}

// Grid is an in-memory float32 image, x fastest and volume slowest
type Grid struct {
	shape [4]int
	data  []float32
}

// NewGrid returns a zero-filled grid
func NewGrid(shape [4]int) *Grid {
	if shape[3] < 1 {
		shape[3] = 1
	}
	return &Grid{shape: shape, data: make([]float32, shape[0]*shape[1]*shape[2]*shape[3])}
}

func (g *Grid) index(x, y, z, t int) int {
	return x + g.shape[0]*(y+g.shape[1]*(z+g.shape[2]*t))
}

// GetAt implements Image
func (g *Grid) GetAt(x, y, z, t uint32) float32 {
	return g.data[g.index(int(x), int(y), int(z), int(t))]
}

// Set stores v at x, y, z in volume t
func (g *Grid) Set(x, y, z, t int, v float32) {
	g.data[g.index(x, y, z, t)] = v
}

// Shape implements Image
func (g *Grid) Shape() [4]int {
	return g.shape
}

// Data returns the backing slice in NIfTI order
func (g *Grid) Data() []float32 {
	return g.data
}

// Save writes the grid as a float32 NIfTI image with the geometry of ref
func (g *Grid) Save(path string, ref *io.Header) error {
	return io.WriteFloat32Volume(path, ref, g.shape, g.data)
}
