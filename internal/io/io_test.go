package io

import (
	"bytes"
	"encoding/binary"
	stdio "io"
	"math"
	"math/bits"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gonum/matrix/mat64"
	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refHeader() *Header {
	h := &Header{QformCode: 1, SformCode: 1}
	h.Pixdim = [8]float32{1, 2, 2, 2, 0.68, 0, 0, 0}
	h.SrowX = [4]float32{2, 0, 0, -90}
	h.SrowY = [4]float32{0, 2, 0, -126}
	h.SrowZ = [4]float32{0, 0, 2, -72}
	return h
}

func TestWriteReadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.nii.gz")
	dims := [4]int{3, 4, 5, 6}
	data := make([]float32, 3*4*5*6)
	for i := range data {
		data[i] = float32(i)
	}

	require.NoError(t, WriteFloat32Volume(path, refHeader(), dims, data))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5, 6}, Shape(h))
	assert.Equal(t, [3]int{3, 4, 5}, Spatial(h))
	assert.Equal(t, 6, Volumes(h))
	assert.Equal(t, int64(3*4*5*6), NumVoxels(h))
	assert.Equal(t, int16(DTFloat32), h.Datatype)
	assert.Equal(t, float32(VoxOffset), h.VoxOffset)
	assert.Equal(t, refHeader().SrowY, h.SrowY)
	assert.True(t, IsSingleFile(h))
}

func TestWriteFloat32VolumeLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.nii.gz")
	data := []float32{1.5, -2, 3, 4}
	require.NoError(t, WriteFloat32Volume(path, refHeader(), [4]int{2, 2, 1, 1}, data))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()
	raw, err := stdio.ReadAll(gz)
	require.NoError(t, err)
	require.Len(t, raw, VoxOffset+4*len(data))

	var h Header
	require.NoError(t, binary.Read(bytes.NewReader(raw), binary.LittleEndian, &h))
	require.NoError(t, Validate(&h))
	assert.Equal(t, []int{2, 2, 1}, Shape(&h))
	assert.Equal(t, 1, Volumes(&h))

	for i, want := range data {
		bits := binary.LittleEndian.Uint32(raw[VoxOffset+4*i:])
		assert.Equal(t, want, math.Float32frombits(bits))
	}
}

func TestWriteFloat32VolumeErrors(t *testing.T) {
	dir := t.TempDir()

	err := WriteFloat32Volume(filepath.Join(dir, "img.nii.gz"), refHeader(), [4]int{2, 2, 2, 1}, make([]float32, 7))
	assert.Error(t, err)

	err = WriteFloat32Volume(filepath.Join(dir, "img.nii"), refHeader(), [4]int{1, 1, 1, 1}, []float32{1})
	assert.ErrorIs(t, err, ErrNotGzip)

	err = WriteFloat32Volume(filepath.Join(dir, "missing", "img.nii.gz"), refHeader(), [4]int{1, 1, 1, 1}, []float32{1})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	h := refHeader()
	h.SizeofHdr = HeaderSize
	h.Dim = [8]int16{3, 1, 1, 1}
	copy(h.Magic[:], magicPaired)
	require.NoError(t, Validate(h))
	assert.False(t, IsSingleFile(h))

	h.Magic = [4]byte{'x', 'y', 'z', 0}
	assert.ErrorIs(t, Validate(h), ErrNotNifti)

	copy(h.Magic[:], magicSingle)
	h.Dim[0] = 9
	assert.ErrorIs(t, Validate(h), ErrNotNifti)

	h.SizeofHdr = int32(bits.ReverseBytes32(HeaderSize))
	assert.ErrorIs(t, Validate(h), ErrBigEndian)
}

func TestDecoder(t *testing.T) {
	cases := []struct {
		name     string
		datatype int16
		bitpix   int16
		slope    float32
		inter    float32
		in, want float32
	}{
		{"uint8", DTUint8, 8, 0, 0, 255, 255},
		{"int8", DTInt8, 8, 0, 0, 255, -1},
		{"int16", DTInt16, 16, 0, 0, 65531, -5},
		{"uint16", DTUint16, 16, 1, 0, 65531, 65531},
		{"int16 scaled", DTInt16, 16, 2, 1000, 100, 1200},
		{"float32 scaled", DTFloat32, 32, 0.5, -1, 3, 0.5},
		{"float64", DTFloat64, 64, float32(math.NaN()), 0, 1.25, 1.25},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := &Header{Datatype: c.datatype, Bitpix: c.bitpix, SclSlope: c.slope, SclInter: c.inter}
			decode, err := Decoder(h)
			require.NoError(t, err)
			assert.Equal(t, c.want, decode(c.in))
		})
	}

	_, err := Decoder(&Header{Datatype: DTInt32, Bitpix: 32})
	assert.ErrorIs(t, err, ErrDatatype)
	_, err = Decoder(&Header{Datatype: DTInt16, Bitpix: 32})
	assert.ErrorIs(t, err, ErrDatatype)
}

func TestReadHeaderNotNifti(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.nii")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{7}, 400), 0644))

	_, err := ReadHeader(path)
	assert.ErrorIs(t, err, ErrNotNifti)

	short := filepath.Join(t.TempDir(), "short.nii")
	require.NoError(t, os.WriteFile(short, []byte("abc"), 0644))
	_, err = ReadHeader(short)
	assert.ErrorIs(t, err, ErrNotNifti)

	notGzip := filepath.Join(t.TempDir(), "plain.nii.gz")
	require.NoError(t, os.WriteFile(notGzip, bytes.Repeat([]byte{7}, 400), 0644))
	_, err = ReadHeader(notGzip)
	assert.Error(t, err)

	_, err = ReadHeader(filepath.Join(t.TempDir(), "missing.nii"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCheckDataSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.nii.gz")
	require.NoError(t, WriteFloat32Volume(path, refHeader(), [4]int{2, 1, 1, 1}, []float32{1, 2}))

	h, err := ReadHeader(path)
	require.NoError(t, err)
	require.NoError(t, CheckDataSize(path, h))

	h.Dim = [8]int16{3, 2, 2, 1, 1, 1, 1, 1}
	assert.ErrorIs(t, CheckDataSize(path, h), ErrTruncated)
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.tsv")
	require.NoError(t, os.WriteFile(path, []byte("\ufeffonset\t duration \n1\t2\n3\n"), 0644))

	tab, err := ReadTable(path, '\t')
	require.NoError(t, err)
	assert.Equal(t, []string{"onset", "duration"}, tab.Header)
	assert.Equal(t, 1, tab.Index("duration"))
	assert.Equal(t, -1, tab.Index("choice"))
	assert.Len(t, tab.Records, 2)

	empty := filepath.Join(t.TempDir(), "empty.tsv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = ReadTable(empty, '\t')
	assert.Error(t, err)
}

func TestMat64toCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.csv")
	m := mat64.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6.5})

	require.NoError(t, Mat64toCSV(path, []string{"a", "b"}, m))

	tab, err := ReadTable(path, ',')
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tab.Header)
	require.Len(t, tab.Records, 3)
	assert.Equal(t, "6.5", strings.TrimSpace(tab.Records[2][1]))

	assert.Error(t, Mat64toCSV(path, []string{"a"}, m))
}

func TestColumnToCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.csv")
	require.NoError(t, ColumnToCSV(path, "beta_condition", []string{"larger_later", "smaller_sooner"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "beta_condition\nlarger_later\nsmaller_sooner\n", string(raw))
}

func TestNpy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.npy")
	m := mat64.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})

	// strided view
	view := m.View(0, 1, 2, 2).(*mat64.Dense)
	require.NoError(t, Mat64toNpy(path, view))

	back, err := NpytoMat64(path)
	require.NoError(t, err)
	assert.True(t, mat64.Equal(back, mat64.NewDense(2, 2, []float64{2, 3, 5, 6})))
}
