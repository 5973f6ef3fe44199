package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoChannels is returned when the channel table has nothing enabled.
var ErrNoChannels = errors.New("no enabled channels")

// ERDSMode selects how ERDS values are grouped.
type ERDSMode string

// ERDS modes
const (
	ERDSAverage ERDSMode = "average" // mean over every channel of an roi
	ERDSSingle  ERDSMode = "single"  // one value per listed channel id
)

// Channel is one entry of the channel table, in stream order.
type Channel struct {
	Name    string
	ID      int
	ROI     int
	Enabled bool
}

// Selection holds the stream positions of the enabled channels, increasing.
type Selection []int

// Apply reduces a raw stream sample to the enabled channels.
func (s Selection) Apply(dst []float64, src []float32) []float64 {
	dst = dst[:0]
	for _, idx := range s {
		dst = append(dst, float64(src[idx]))
	}
	return dst
}

// ROIMap holds, per roi, the positions inside the reduced sample that
// contribute to it.
type ROIMap [][]int

// EmptyROIError reports an roi with no contributing channel.
type EmptyROIError struct {
	ROI int
}

func (e *EmptyROIError) Error() string {
	return fmt.Sprintf("roi %d has no enabled channels", e.ROI)
}

// Validate checks that every roi has at least one channel and that every
// index lies inside a reduced sample of width n.
func (m ROIMap) Validate(n int) error {
	for roi, set := range m {
		if len(set) == 0 {
			return &EmptyROIError{ROI: roi + 1}
		}

		for _, idx := range set {
			if idx < 0 || idx >= n {
				return errors.Errorf("roi %d: index %d out of range [0, %d)", roi+1, idx, n)
			}
		}
	}

	return nil
}

// Layout is the result of mapping a channel table.
type Layout struct {
	Selection Selection
	ROIs      ROIMap
}

// Map resolves the enabled channels and the roi map. In average mode rois are
// numbered 1..roiCount. In single mode each id in singleIDs yields one roi made
// of the enabled channels carrying that id.
//
// An roi may come back empty; callers decide whether that is acceptable with
// ROIMap.Validate.
func Map(channels []Channel, mode ERDSMode, roiCount int, singleIDs []int) (Layout, error) {
	var lay Layout

	for idx, ch := range channels {
		if ch.Enabled {
			lay.Selection = append(lay.Selection, idx)
		}
	}

	if len(lay.Selection) == 0 {
		return Layout{}, ErrNoChannels
	}

	switch mode {
	case ERDSAverage:
		lay.ROIs = make(ROIMap, roiCount)
		for roi := range lay.ROIs {
			lay.ROIs[roi] = positions(channels, lay.Selection, func(ch Channel) bool {
				return ch.ROI == roi+1
			})
		}

	case ERDSSingle:
		lay.ROIs = make(ROIMap, len(singleIDs))
		for roi, id := range singleIDs {
			id := id
			lay.ROIs[roi] = positions(channels, lay.Selection, func(ch Channel) bool {
				return ch.ID == id
			})
		}

	default:
		return Layout{}, errors.Errorf("unknown erds mode %q", mode)
	}

	return lay, nil
}

func positions(channels []Channel, sel Selection, match func(Channel) bool) []int {
	out := []int{}
	for pos, idx := range sel {
		if match(channels[idx]) {
			out = append(out, pos)
		}
	}
	return out
}
