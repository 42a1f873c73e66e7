package io

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/klauspost/pgzip"
)

// NIfTI-1 constants
const (
	HeaderSize   = 348
	VoxOffset    = 352
	magicSingle  = "n+1\x00"
	magicPaired  = "ni1\x00"
	maxDimension = 7
)

// NIfTI-1 datatype codes
const (
	DTUint8   = 2
	DTInt16   = 4
	DTInt32   = 8
	DTFloat32 = 16
	DTFloat64 = 64
	DTInt8    = 256
	DTUint16  = 512
)

var (
	// ErrNotNifti is returned when a file does not carry a NIfTI-1 header
	ErrNotNifti = errors.New("not a NIfTI-1 file")
	// ErrBigEndian is returned for headers written most significant byte first
	ErrBigEndian = errors.New("big-endian NIfTI is not supported")
	// ErrDatatype is returned for voxel types the reader cannot decode
	ErrDatatype = errors.New("unsupported NIfTI datatype")
	// ErrTruncated is returned when the voxel data is shorter than the header says
	ErrTruncated = errors.New("NIfTI data shorter than header")
	// ErrNotGzip is returned when an output path does not end in .gz
	ErrNotGzip = errors.New("NIfTI output must be gzip-compressed (.nii.gz)")
)

// Header is the 348 byte NIfTI-1 header
type Header = nifti.Nifti1Header

// Shape returns the used dimensions, dim[1]..dim[dim[0]]
func Shape(h *Header) []int {
	n := int(h.Dim[0])
	if n < 1 || n > maxDimension {
		return nil
	}
	shape := make([]int, n)
	for i := 0; i < n; i++ {
		shape[i] = int(h.Dim[i+1])
	}
	return shape
}

// Spatial returns the x, y, z extents
func Spatial(h *Header) [3]int {
	var xyz [3]int
	for i := 0; i < 3; i++ {
		xyz[i] = 1
		if int(h.Dim[0]) > i {
			xyz[i] = int(h.Dim[i+1])
		}
	}
	return xyz
}

// Volumes returns the length of the fourth dimension, 1 for 3-D images
func Volumes(h *Header) int {
	if h.Dim[0] < 4 || h.Dim[4] < 1 {
		return 1
	}
	return int(h.Dim[4])
}

// NumVoxels is the product of all used dimensions
func NumVoxels(h *Header) int64 {
	n := int64(1)
	for _, d := range Shape(h) {
		n *= int64(d)
	}
	return n
}

// IsGzip reports whether path names a gzip stream
func IsGzip(path string) bool {
	return strings.HasSuffix(path, ".gz")
}

// IsSingleFile reports whether the header belongs to a .nii file holding its
// own voxel data
func IsSingleFile(h *Header) bool {
	return string(h.Magic[:]) == magicSingle
}

// checkReadable opens path the way LoadHeader does. LoadHeader only prints
// open errors and then closes a nil reader.
func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if IsGzip(path) {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		gz.Close()
	}
	return nil
}

// ReadHeader reads only the header of a .nii or .nii.gz file
func ReadHeader(path string) (*Header, error) {
	if err := checkReadable(path); err != nil {
		return nil, err
	}

	var h Header
	h.LoadHeader(path)
	if err := Validate(&h); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &h, nil
}

// Validate checks the header size field, byte order, dimension count and magic
func Validate(h *Header) error {
	switch {
	case h.SizeofHdr == HeaderSize:
	case int32(bits.ReverseBytes32(uint32(h.SizeofHdr))) == HeaderSize:
		return ErrBigEndian
	default:
		return ErrNotNifti
	}

	if h.Dim[0] < 1 || h.Dim[0] > maxDimension {
		return fmt.Errorf("%w: dim[0]=%d", ErrNotNifti, h.Dim[0])
	}

	magic := string(h.Magic[:])
	if magic != magicSingle && magic != magicPaired {
		return fmt.Errorf("%w: magic %q", ErrNotNifti, magic)
	}
	return nil
}

// datatypes maps every decodable datatype to its bits per voxel
var datatypes = map[int16]int16{
	DTUint8:   8,
	DTInt8:    8,
	DTInt16:   16,
	DTUint16:  16,
	DTFloat32: 32,
	DTFloat64: 64,
}

// Decoder returns the function that turns a value read by the nifti package
// into the stored voxel value. The nifti package reads 1 and 2 byte voxels as
// unsigned integers and 4 and 8 byte voxels as floats, all little-endian.
func Decoder(h *Header) (func(float32) float32, error) {
	bitpix, ok := datatypes[h.Datatype]
	if !ok {
		return nil, fmt.Errorf("%w: datatype %d", ErrDatatype, h.Datatype)
	}
	if bitpix != h.Bitpix {
		return nil, fmt.Errorf("%w: datatype %d with bitpix %d", ErrDatatype, h.Datatype, h.Bitpix)
	}

	raw := func(v float32) float32 { return v }
	switch h.Datatype {
	case DTInt8:
		raw = func(v float32) float32 { return float32(int8(uint8(v))) }
	case DTInt16:
		raw = func(v float32) float32 { return float32(int16(uint16(v))) }
	}

	slope, inter := float64(h.SclSlope), float64(h.SclInter)
	if slope == 0 || math.IsNaN(slope) || math.IsInf(slope, 0) {
		return raw, nil
	}
	if math.IsNaN(inter) || math.IsInf(inter, 0) {
		inter = 0
	}
	return func(v float32) float32 {
		return float32(float64(raw(v))*slope + inter)
	}, nil
}

// CheckDataSize returns ErrTruncated when the file, decompressed for .gz,
// is shorter than vox_offset plus the voxel data the header describes
func CheckDataSize(path string, h *Header) error {
	want := int64(h.VoxOffset) + NumVoxels(h)*int64(h.Bitpix/8)

	var have int64
	if IsGzip(path) {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer gz.Close()

		if have, err = io.Copy(io.Discard, gz); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	} else {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		have = info.Size()
	}

	if have < want {
		return fmt.Errorf("%s: %w: %d bytes, want %d", path, ErrTruncated, have, want)
	}
	return nil
}

// WriteFloat32Volume writes a gzip-compressed single-file NIfTI-1 float32
// image. Geometry is taken from ref; dims gives the x, y, z and volume counts
// and data is laid out x fastest, volume slowest.
func WriteFloat32Volume(path string, ref *Header, dims [4]int, data []float32) error {
	want := dims[0] * dims[1] * dims[2] * dims[3]
	if len(data) != want {
		return fmt.Errorf("WriteFloat32Volume: %d values for dims %v", len(data), dims)
	}
	if !IsGzip(path) {
		return fmt.Errorf("WriteFloat32Volume %s: %w", path, ErrNotGzip)
	}

	h := *ref
	h.SizeofHdr = HeaderSize
	h.Dim = [8]int16{4, int16(dims[0]), int16(dims[1]), int16(dims[2]), int16(dims[3]), 1, 1, 1}
	if dims[3] == 1 {
		h.Dim[0] = 3
	}
	h.Datatype = DTFloat32
	h.Bitpix = 32
	h.VoxOffset = VoxOffset
	h.SclSlope = 1
	h.SclInter = 0
	h.CalMax = 0
	h.CalMin = 0
	h.IntentCode = 0
	copy(h.Magic[:], magicSingle)

	img := nifti.NewImg(dims[0], dims[1], dims[2], dims[3])
	img.SetNewHeader(h)

	i := 0
	for t := 0; t < dims[3]; t++ {
		for z := 0; z < dims[2]; z++ {
			for y := 0; y < dims[1]; y++ {
				for x := 0; x < dims[0]; x++ {
					img.SetAt(uint32(x), uint32(y), uint32(z), uint32(t), data[i])
					i++
				}
			}
		}
	}

	return save(img, path)
}

// save wraps Save, which appends .gz to its argument, panics when the file
// cannot be created and drops write errors. The header is read back to
// confirm the file landed.
func save(img *nifti.Nifti1Image, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save %s: %v", path, r)
		}
	}()

	img.Save(strings.TrimSuffix(path, ".gz"))

	h, err := ReadHeader(path)
	if err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return CheckDataSize(path, h)
}
