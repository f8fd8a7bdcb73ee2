package geometry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540
)

// ErrNotNIfTI is returned for files without a NIfTI-1 header.
var ErrNotNIfTI = errors.New("not a NIfTI-1 file")

// nifti1Header is the on-disk NIfTI-1 header.
type nifti1Header struct {
	SizeofHdr                    int32
	DataType                     [10]byte
	DBName                       [18]byte
	Extents                      int32
	SessionError                 int16
	Regular                      byte
	DimInfo                      byte
	Dim                          [8]int16
	IntentP1, IntentP2, IntentP3 float32
	IntentCode                   int16
	Datatype                     int16
	Bitpix                       int16
	SliceStart                   int16
	Pixdim                       [8]float32
	VoxOffset                    float32
	SclSlope, SclInter           float32
	SliceEnd                     int16
	SliceCode                    byte
	XYZTUnits                    byte
	CalMax, CalMin               float32
	SliceDuration                float32
	Toffset                      float32
	Glmax, Glmin                 int32
	Descrip                      [80]byte
	AuxFile                      [24]byte
	QformCode, SformCode         int16
	QuaternB, QuaternC, QuaternD float32
	QoffsetX, QoffsetY, QoffsetZ float32
	SrowX, SrowY, SrowZ          [4]float32
	IntentName                   [16]byte
	Magic                        [4]byte
}

// Volume is the geometry of a NIfTI image.
type Volume struct {
	Shape  [3]int
	Affine Affine
}

// Mapping returns the axis mapping of the volume
func (v *Volume) Mapping() (*Mapping, error) {
	return Axes(v.Affine, v.Shape)
}

// ReadNIfTI reads the header of a .nii or .nii.gz file
func ReadNIfTI(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defer zr.Close()
		r = zr
	}

	v, err := DecodeNIfTI(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// DecodeNIfTI reads a NIfTI-1 header in either byte order. The affine
// comes from the sform when set, then the qform, then the voxel sizes.
func DecodeNIfTI(r io.Reader) (*Volume, error) {
	buf := make([]byte, nifti1HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(buf) == nifti1HeaderSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(buf) == nifti1HeaderSize:
		order = binary.BigEndian
	case binary.LittleEndian.Uint32(buf) == nifti2HeaderSize,
		binary.BigEndian.Uint32(buf) == nifti2HeaderSize:
		return nil, fmt.Errorf("NIfTI-2 is not supported: %w", ErrNotNIfTI)
	default:
		return nil, ErrNotNIfTI
	}

	var h nifti1Header
	if err := binary.Read(bytes.NewReader(buf), order, &h); err != nil {
		return nil, err
	}
	if magic := string(h.Magic[:3]); magic != "n+1" && magic != "ni1" {
		return nil, fmt.Errorf("bad magic %q: %w", h.Magic[:], ErrNotNIfTI)
	}

	ndim := int(h.Dim[0])
	if ndim < 1 || ndim > 7 {
		return nil, fmt.Errorf("bad dimension count %d", ndim)
	}
	v := &Volume{Shape: [3]int{1, 1, 1}}
	for i := 0; i < 3 && i < ndim; i++ {
		v.Shape[i] = int(h.Dim[i+1])
	}

	switch {
	case h.SformCode > 0:
		v.Affine = h.sform()
	case h.QformCode > 0:
		v.Affine = h.qform()
	default:
		v.Affine = h.base()
	}
	return v, nil
}

func (h *nifti1Header) sform() Affine {
	a := Identity()
	for i, row := range [3][4]float32{h.SrowX, h.SrowY, h.SrowZ} {
		for j := range row {
			a[i][j] = float64(row[j])
		}
	}
	return a
}

// qform builds the affine from the quaternion, voxel sizes and offsets
func (h *nifti1Header) qform() Affine {
	b, c, d := float64(h.QuaternB), float64(h.QuaternC), float64(h.QuaternD)
	a := 1 - (b*b + c*c + d*d)
	if a < 1e-7 {
		// 180 degree rotation: renormalise b, c, d
		n := math.Sqrt(b*b + c*c + d*d)
		b, c, d = b/n, c/n, d/n
		a = 0
	} else {
		a = math.Sqrt(a)
	}

	rot := [3][3]float64{
		{a*a + b*b - c*c - d*d, 2 * (b*c - a*d), 2 * (b*d + a*c)},
		{2 * (b*c + a*d), a*a + c*c - b*b - d*d, 2 * (c*d - a*b)},
		{2 * (b*d - a*c), 2 * (c*d + a*b), a*a + d*d - c*c - b*b},
	}

	qfac := 1.0
	if h.Pixdim[0] < 0 {
		qfac = -1
	}
	zooms := [3]float64{float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3]) * qfac}
	offset := [3]float64{float64(h.QoffsetX), float64(h.QoffsetY), float64(h.QoffsetZ)}

	out := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = rot[i][j] * zooms[j]
		}
		out[i][3] = offset[i]
	}
	return out
}

// base is the scanner-less affine: voxel sizes with x flipped, centred
// on the volume
func (h *nifti1Header) base() Affine {
	out := Identity()
	signs := [3]float64{-1, 1, 1}
	for i := 0; i < 3; i++ {
		zoom := float64(h.Pixdim[i+1])
		if zoom == 0 {
			zoom = 1
		}
		n := 1.0
		if int(h.Dim[0]) > i {
			n = float64(h.Dim[i+1])
		}
		out[i][i] = signs[i] * zoom
		out[i][3] = -signs[i] * zoom * (n - 1) / 2
	}
	return out
}
