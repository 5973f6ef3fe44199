package graphic

import (
	"fmt"
	"math"

	"github.com/nsf/termbox-go"
)

const (
	// BarRune is the block used for bars
	BarRune rune = '█'

	// CenterRune marks the zero line of a centered bar
	CenterRune rune = '│'

	StyleDefault     = termbox.ColorDefault
	StyleDefaultBack = termbox.ColorDefault
	StyleLeft        = termbox.ColorBlue
	StyleRight       = termbox.ColorGreen
	StyleERD         = termbox.ColorRed
	StyleERS         = termbox.ColorCyan

	labelWidth = 16
)

// barExtent returns the half-open column range covered by a bar of value
// around center. value is clamped to [-1, 1] and half is the column count of
// a full bar.
func barExtent(value float64, center, half int) (int, int) {
	switch {
	case math.IsNaN(value):
		return center, center
	case value > 1:
		value = 1
	case value < -1:
		value = -1
	}

	n := int(value*float64(half) + 0.5*sign(value))

	if n < 0 {
		return center + n, center
	}

	return center + 1, center + 1 + n
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

func printAt(x, y int, s string, fg termbox.Attribute) {
	for _, r := range s {
		termbox.SetCell(x, y, r, fg, StyleDefaultBack)
		x++
	}
}

// drawBar draws a labelled bar centered in the space right of the label.
func drawBar(y, width int, label string, value float64, neg, pos termbox.Attribute) {
	printAt(0, y, fmt.Sprintf("%-*s", labelWidth, label), StyleDefault)

	var span = width - labelWidth
	if span < 3 {
		return
	}

	var half = (span - 1) / 2
	var center = labelWidth + half

	termbox.SetCell(center, y, CenterRune, StyleDefault, StyleDefaultBack)

	from, to := barExtent(value, center, half)

	var fg = pos
	if value < 0 {
		fg = neg
	}

	for xCol := from; xCol < to; xCol++ {
		termbox.SetCell(xCol, y, BarRune, fg, StyleDefaultBack)
	}
}

func draw(st *state) error {
	if err := termbox.Clear(StyleDefault, StyleDefaultBack); err != nil {
		return err
	}

	var cWidth, cHeight = termbox.Size()

	printAt(0, 0, st.header(), termbox.AttrBold)

	var xRow = 2

	if xRow < cHeight {
		var value float64
		var text = "class -"

		if st.classOK {
			// left class draws left of center
			value = st.distance
			if st.label == 0 {
				value = -value
			}
			text = fmt.Sprintf("class %d %5.2f", st.label, st.distance)
		}

		drawBar(xRow, cWidth, text, value, StyleLeft, StyleRight)
	}

	xRow += 2

	for i, v := range st.erds {
		if xRow >= cHeight {
			break
		}

		drawBar(xRow, cWidth, fmt.Sprintf("roi %d %6.2f", i+1, v), v, StyleERD, StyleERS)
		xRow++
	}

	return termbox.Flush()
}
