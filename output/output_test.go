package output

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type collect struct {
	rows [][]float32
	err  error
}

func (c *collect) Write(v []float32) error {
	c.rows = append(c.rows, v)
	return c.err
}

func TestLines(t *testing.T) {
	var buf bytes.Buffer
	l := NewLines(&buf, "erds")

	assert.NoError(t, l.Write([]float32{0.5, -0.25}))
	assert.NoError(t, l.Write([]float32{1}))

	assert.Equal(t, "erds  0.500 -0.250\nerds  1.000\n", buf.String())
}

func TestMulti(t *testing.T) {
	assert.Nil(t, Multi(nil, nil))

	a := &collect{}
	assert.Same(t, a, Multi(nil, a))

	b := &collect{err: errors.New("gone")}
	c := &collect{}

	err := Multi(a, b, c).Write([]float32{1, 2})
	assert.EqualError(t, err, "gone")
	assert.Len(t, a.rows, 1)
	assert.Len(t, b.rows, 1)
	assert.Len(t, c.rows, 1)
}
