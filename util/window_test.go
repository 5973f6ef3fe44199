package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMovingWindow(t *testing.T) {
	mw := NewMovingWindow(3)

	mean, sd := mw.Update(2)
	assert.Equal(t, 2.0, mean)
	assert.Equal(t, 0.0, sd)

	mw.Update(4)
	mean, sd = mw.Update(6)
	assert.InDelta(t, 4, mean, 1e-12)
	assert.InDelta(t, 2, sd, 1e-12)
	assert.Equal(t, 3, mw.Len())

	// 2 falls out
	mean, sd = mw.Update(8)
	assert.InDelta(t, 6, mean, 1e-12)
	assert.InDelta(t, 2, sd, 1e-12)
	assert.Equal(t, 3, mw.Len())
	assert.Equal(t, 3, mw.Cap())

	mw.Reset()
	assert.Equal(t, 0, mw.Len())

	mean, _ = mw.Update(-1)
	assert.Equal(t, -1.0, mean)
}

func TestMovingWindowLongRun(t *testing.T) {
	mw := NewMovingWindow(10)

	for i := 0; i < 1000; i++ {
		mw.Update(math.Sin(float64(i)))
	}

	want := 0.0
	for i := 990; i < 1000; i++ {
		want += math.Sin(float64(i))
	}

	mean, _ := mw.Stats()
	assert.InDelta(t, want/10, mean, 1e-9)
}
