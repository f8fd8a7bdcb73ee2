// Package geometry maps voxel axes of a reconstructed image onto
// anatomical directions so that encoding directions printed on the
// protocol can be expressed in voxel terms.
package geometry

import (
	"fmt"
	"math"
)

// Affine is a row-major 4x4 voxel to RAS+ world matrix.
type Affine [4][4]float64

// Identity returns the identity affine
func Identity() Affine {
	var a Affine
	for i := range a {
		a[i][i] = 1
	}
	return a
}

// anatomical directions of the positive world axes x, y and z
var anatNames = [3]string{"LR", "PA", "IS"}

var voxNames = [3]string{"i", "j", "k"}

// Mapping relates voxel axes and anatomical directions.
type Mapping struct {
	// VoxToAnat is the direction each voxel axis runs along, e.g. "PA"
	// when the index grows toward anterior.
	VoxToAnat [3]string
	// AnatToVox gives the voxel axis and polarity of every direction:
	// "LR" -> "i+", "RL" -> "i-" ...
	AnatToVox map[string]string
	Shape     [3]int
}

// Axes projects the rotation part of an affine onto the canonical axes.
// Each voxel axis takes the world axis it is most aligned with; when two
// world axes are equally close the earlier voxel axis picks first.
func Axes(affine Affine, shape [3]int) (*Mapping, error) {
	var r [3][3]float64
	for col := 0; col < 3; col++ {
		norm := math.Sqrt(affine[0][col]*affine[0][col] +
			affine[1][col]*affine[1][col] +
			affine[2][col]*affine[2][col])
		if norm == 0 || math.IsNaN(norm) {
			return nil, fmt.Errorf("voxel axis %s has no extent", voxNames[col])
		}
		for row := 0; row < 3; row++ {
			r[row][col] = affine[row][col] / norm
		}
	}

	m := &Mapping{AnatToVox: make(map[string]string, 6), Shape: shape}
	var taken [3]bool
	for col := 0; col < 3; col++ {
		best := -1
		for row := 0; row < 3; row++ {
			if taken[row] {
				continue
			}
			if best < 0 || math.Abs(r[row][col]) > math.Abs(r[best][col])+1e-9 {
				best = row
			}
		}
		taken[best] = true

		name := anatNames[best]
		if r[best][col] < 0 {
			name = reverse(name)
		}
		m.VoxToAnat[col] = name
		m.AnatToVox[name] = voxNames[col] + "+"
		m.AnatToVox[reverse(name)] = voxNames[col] + "-"
	}
	return m, nil
}

func reverse(direction string) string {
	return direction[1:] + direction[:1]
}
