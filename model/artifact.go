package model

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDimension is returned when calibration artifacts do not fit the live
// channel layout.
var ErrDimension = errors.New("artifact dimension mismatch")

// Artifact file names inside a model directory.
const (
	SpatialFilterFile = "csp.bin"
	DiscriminantFile  = "lda.bin"
)

// Classes is the fixed number of classes of the discriminant.
const Classes = 2

// Model is the output of calibration and the input of the online classifier.
// Both matrices are read-only once loaded.
type Model struct {
	// SpatialFilter projects reduced samples to components, components x channels.
	SpatialFilter *mat.Dense
	// Discriminant holds one row per class: [bias, w_1 .. w_components].
	Discriminant *mat.Dense
}

// Components returns the number of spatial components.
func (m *Model) Components() int {
	r, _ := m.SpatialFilter.Dims()
	return r
}

// Check verifies the model against the number of enabled channels.
func (m *Model) Check(channels int) error {
	if m.SpatialFilter == nil || m.Discriminant == nil {
		return errors.Wrap(ErrDimension, "incomplete model")
	}

	comps, cols := m.SpatialFilter.Dims()
	if cols != channels {
		return errors.Wrapf(ErrDimension,
			"spatial filter expects %d channels, %d enabled", cols, channels)
	}

	classes, coefs := m.Discriminant.Dims()
	if classes != Classes {
		return errors.Wrapf(ErrDimension, "discriminant has %d classes, want %d", classes, Classes)
	}

	if coefs != comps+1 {
		return errors.Wrapf(ErrDimension,
			"discriminant has %d coefficients, want %d", coefs, comps+1)
	}

	return nil
}

// Save writes both matrices into dir.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create model directory")
	}

	if err := SaveMatrix(filepath.Join(dir, SpatialFilterFile), m.SpatialFilter); err != nil {
		return err
	}

	return SaveMatrix(filepath.Join(dir, DiscriminantFile), m.Discriminant)
}

// LoadModel reads both matrices from dir.
func LoadModel(dir string) (*Model, error) {
	csp, err := LoadMatrix(filepath.Join(dir, SpatialFilterFile))
	if err != nil {
		return nil, err
	}

	lda, err := LoadMatrix(filepath.Join(dir, DiscriminantFile))
	if err != nil {
		return nil, err
	}

	return &Model{SpatialFilter: csp, Discriminant: lda}, nil
}

// SaveMatrix writes m in the gonum binary matrix format.
func SaveMatrix(path string, m *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create matrix file")
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := m.MarshalBinaryTo(w); err != nil {
		return errors.Wrapf(err, "failed to encode %s", path)
	}

	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return f.Close()
}

// LoadMatrix reads a matrix written by SaveMatrix.
func LoadMatrix(path string) (*mat.Dense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open matrix file")
	}
	defer f.Close()

	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(bufio.NewReader(f)); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	return &m, nil
}
