package processor

import "github.com/noriah/bcifeed/model"

// Voting smooths per-sample labels over the last len(labels) samples.
type Voting struct {
	labels []int
	counts [model.Classes]int
	pos    int
}

// NewVoting builds a buffer covering length samples, usually one second.
func NewVoting(length int) *Voting {
	if length < 1 {
		length = 1
	}

	v := &Voting{labels: make([]int, length)}
	v.Reset()

	return v
}

// Len returns the buffer length.
func (v *Voting) Len() int {
	return len(v.labels)
}

// Count returns the number of buffered votes for class.
func (v *Voting) Count(class int) int {
	return v.counts[class]
}

// Reset empties the buffer.
func (v *Voting) Reset() {
	for i := range v.labels {
		v.labels[i] = -1
	}
	v.counts = [model.Classes]int{}
	v.pos = 0
}

// Update records label in the next slot and returns the majority label with
// its share of the buffer. Ties go to the lower class.
func (v *Voting) Update(label int) (int, float64) {
	if old := v.labels[v.pos]; old >= 0 {
		v.counts[old]--
	}

	v.counts[label]++
	v.labels[v.pos] = label

	if v.pos++; v.pos == len(v.labels) {
		v.pos = 0
	}

	out := 0
	for class, n := range v.counts {
		if n > v.counts[out] {
			out = class
		}
	}

	return out, float64(v.counts[out]) / float64(len(v.labels))
}
