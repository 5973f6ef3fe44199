// Package output holds the sinks for the classification and ERDS streams.
package output

import (
	"bytes"
	"fmt"
	"io"
)

// Output receives one vector per emitted sample. Implementations are
// best-effort and never block for long.
type Output interface {
	Write([]float32) error
}

type multi []Output

// Multi writes to every non-nil output. It returns nil when there is none.
func Multi(outs ...Output) Output {
	var m multi
	for _, o := range outs {
		if o != nil {
			m = append(m, o)
		}
	}

	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}

	return m
}

// Write writes v to every output and returns the first error.
func (m multi) Write(v []float32) error {
	var first error
	for _, o := range m {
		if err := o.Write(v); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Lines prints one line of values per sample, prefixed by the stream name.
type Lines struct {
	w    io.Writer
	name string
	buf  bytes.Buffer
}

// NewLines returns a line writer for the named stream.
func NewLines(w io.Writer, name string) *Lines {
	return &Lines{w: w, name: name}
}

// Write prints v as a single write call so lines of different streams on the
// same writer do not interleave.
func (l *Lines) Write(v []float32) error {
	l.buf.Reset()
	l.buf.WriteString(l.name)

	for _, x := range v {
		fmt.Fprintf(&l.buf, " %6.3f", x)
	}

	l.buf.WriteByte('\n')

	_, err := l.w.Write(l.buf.Bytes())
	return err
}
