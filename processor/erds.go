package processor

import (
	"math"

	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
)

// ErrInsufficientReference is reported when a baseline is requested without
// usable reference rows.
var ErrInsufficientReference = errors.New("insufficient reference samples")

// Baseline accumulates squared reference rows and averages them once per
// trial. The first warmup rows after a reset are left out of the mean.
type Baseline struct {
	warmup int
	rows   int
	sums   []float64
	mean   []float64
}

// NewBaseline builds an empty baseline for channels values per row.
func NewBaseline(channels, warmup int) *Baseline {
	b := &Baseline{
		warmup: warmup,
		sums:   make([]float64, channels),
		mean:   make([]float64, channels),
	}
	b.Reset()

	return b
}

// Reset drops every accumulated row and invalidates the mean.
func (b *Baseline) Reset() {
	b.rows = 0
	for i := range b.sums {
		b.sums[i] = 0
		b.mean[i] = math.NaN()
	}
}

// Append adds one row of reference power.
func (b *Baseline) Append(power []float64) {
	b.rows++
	if b.rows <= b.warmup {
		return
	}

	for i, v := range power {
		b.sums[i] += v
	}
}

// Rows returns the number of rows appended since the last reset.
func (b *Baseline) Rows() int {
	return b.rows
}

// Compute sets the mean from the rows past the warm-up window. Without such
// rows the mean stays NaN and ErrInsufficientReference is returned.
func (b *Baseline) Compute() error {
	if b.rows == 0 {
		return errors.Wrap(ErrInsufficientReference, "no reference rows")
	}

	used := b.rows - b.warmup
	if used < 1 {
		return errors.Wrapf(ErrInsufficientReference,
			"%d reference rows, all inside the %d row warm-up", b.rows, b.warmup)
	}

	for i, sum := range b.sums {
		b.mean[i] = sum / float64(used)
	}

	return nil
}

// Mean returns the baseline, NaN until computed.
func (b *Baseline) Mean() []float64 {
	return b.mean
}

// Valid reports whether every baseline value is finite.
func (b *Baseline) Valid() bool {
	return finite(b.mean)
}

// Change writes (power - base) / base per channel into dst.
func Change(dst, power, base []float64) []float64 {
	if cap(dst) < len(power) {
		dst = make([]float64, len(power))
	}
	dst = dst[:len(power)]

	for i, p := range power {
		dst[i] = (p - base[i]) / base[i]
	}

	return dst
}

// ROIMean writes the mean of values over every roi of rois into dst.
func ROIMean(dst, values []float64, rois model.ROIMap) []float64 {
	if cap(dst) < len(rois) {
		dst = make([]float64, len(rois))
	}
	dst = dst[:len(rois)]

	for roi, set := range rois {
		sum := 0.0
		for _, idx := range set {
			sum += values[idx]
		}
		dst[roi] = sum / float64(len(set))
	}

	return dst
}

// ERDS computes the band power change per roi against a reference baseline.
// It is owned by one worker.
type ERDS struct {
	filter   RowFilter
	baseline *Baseline
	rois     model.ROIMap

	power  []float64
	change []float64
	out    []float64
}

// NewERDS builds the engine. warmup is the number of reference rows left out
// of the baseline, half a second of samples by default.
func NewERDS(filter RowFilter, channels, warmup int, rois model.ROIMap) *ERDS {
	return &ERDS{
		filter:   filter,
		baseline: NewBaseline(channels, warmup),
		rois:     rois,
		power:    make([]float64, channels),
		change:   make([]float64, channels),
		out:      make([]float64, len(rois)),
	}
}

// Baseline returns the reference baseline.
func (e *ERDS) Baseline() *Baseline {
	return e.baseline
}

// Prime feeds the bandpass and discards the result.
func (e *ERDS) Prime(row []float64) {
	e.power = e.filter.Filter(e.power, row)
}

// Resume restarts the bandpass from the steady state of row.
func (e *ERDS) Resume(row []float64) {
	e.filter.ResetTo(row)
}

// Reference appends the squared filtered row to the baseline.
func (e *ERDS) Reference(row []float64) {
	e.baseline.Append(e.squared(row))
}

// Snapshot computes the baseline mean.
func (e *ERDS) Snapshot() error {
	return e.baseline.Compute()
}

// Reset clears the baseline for the next trial.
func (e *ERDS) Reset() {
	e.baseline.Reset()
}

// Feedback returns the per-roi change for one row. ok is false when the power
// or the baseline is not finite; nothing should be emitted then.
func (e *ERDS) Feedback(row []float64) ([]float64, bool) {
	power := e.squared(row)

	if !finite(power) || !e.baseline.Valid() {
		return nil, false
	}

	e.change = Change(e.change, power, e.baseline.Mean())
	e.out = ROIMean(e.out, e.change, e.rois)

	return e.out, true
}

func (e *ERDS) squared(row []float64) []float64 {
	e.power = e.filter.Filter(e.power, row)
	for i, v := range e.power {
		e.power[i] = v * v
	}
	return e.power
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
