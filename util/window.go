// Package util holds small helpers shared by the output sinks.
package util

import (
	"math"
)

// as long as we know what comes next, we can keep a chain
type node struct {
	value float64
	next  *node
}

// MovingWindow keeps the mean and standard deviation of the last Cap values.
//
// Only the tail node is referenced. The tail holds no value; it is pointed
// to by the newest node and points to the oldest. Adding a value writes it
// into the tail, links a node from the pool behind it and makes that node the
// new tail.
type MovingWindow struct {
	tail *node

	pool []*node

	length   int
	capacity int

	squares float64
	sum     float64

	average float64
	stddev  float64
}

// NewMovingWindow returns an empty window of size values.
func NewMovingWindow(size int) *MovingWindow {
	if size < 1 {
		size = 1
	}

	var mw = &MovingWindow{
		tail:     &node{},
		pool:     make([]*node, size),
		capacity: size,
	}

	for xNode := 0; xNode < size; xNode++ {
		mw.pool[xNode] = &node{}
	}

	mw.tail.next = mw.tail

	return mw
}

func (mw *MovingWindow) calcFinal() (float64, float64) {
	if mw.length == 0 {
		mw.average, mw.stddev = 0, 0
		return 0, 0
	}

	n := float64(mw.length)
	mw.average = mw.sum / n

	if mw.length > 1 {
		// sample variance from the running sums
		v := (mw.squares - n*mw.average*mw.average) / (n - 1)
		mw.stddev = math.Sqrt(math.Max(v, 0))
	} else {
		mw.stddev = 0
	}

	return mw.average, mw.stddev
}

// Update adds value, dropping the oldest one once the window is full.
func (mw *MovingWindow) Update(value float64) (float64, float64) {
	if mw.length < mw.capacity {
		mw.pool[mw.length].next = mw.tail.next
		mw.tail.next = mw.pool[mw.length]

		mw.length++

		mw.squares += value * value
		mw.sum += value

	} else {
		old := mw.tail.next.value
		mw.squares += (value * value) - (old * old)
		mw.sum += value - old
	}

	mw.tail.value = value
	mw.tail = mw.tail.next

	return mw.calcFinal()
}

// Reset empties the window.
func (mw *MovingWindow) Reset() {
	mw.tail = &node{}
	mw.tail.next = mw.tail

	for xNode := range mw.pool {
		mw.pool[xNode] = &node{}
	}

	mw.length = 0
	mw.squares = 0
	mw.sum = 0

	mw.calcFinal()
}

// Len returns how many items in the window
func (mw *MovingWindow) Len() int {
	return mw.length
}

// Cap returns max size of window
func (mw *MovingWindow) Cap() int {
	return mw.capacity
}

// Stats returns the mean and standard deviation of the window.
func (mw *MovingWindow) Stats() (float64, float64) {
	return mw.average, mw.stddev
}
