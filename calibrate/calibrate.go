package calibrate

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	logging "github.com/ipfs/go-log/v2"
	"github.com/noriah/bcifeed/dsp"
	"github.com/noriah/bcifeed/model"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var logger = logging.Logger("calibrate")

// Config holds the offline fitting parameters.
type Config struct {
	SampleRate float64         // rate of the recording
	Selection  model.Selection // enabled channels in stream order
	Order      int             // butterworth order, doubled by the bandpass transform
	Low, High  float64         // passband edges in Hz

	CueOffset    float64 // seconds from cue to the start of the task epoch
	TaskDuration float64 // task epoch length in seconds
	FeatureDelay float64 // seconds from cue to the feature sample
	Window       float64 // log power window in seconds

	Filters int // spatial patterns kept per class
}

// Result is the outcome of a fit.
type Result struct {
	Model *model.Model

	// Accuracy is the re-classification rate on the training trials.
	Accuracy float64
	Trials   [model.Classes]int
}

// Trial is one cue position with its class index.
type Trial struct {
	Cue   int
	Class int
}

// Trials scans a trigger channel for class label codes. A code held over
// several samples counts once.
func Trials(labels []float64) []Trial {
	var trials []Trial

	prev := 0.0
	for idx, v := range labels {
		if v != prev {
			switch int(math.Round(v)) {
			case model.LabelLeft:
				trials = append(trials, Trial{Cue: idx, Class: 0})
			case model.LabelRight:
				trials = append(trials, Trial{Cue: idx, Class: 1})
			}
		}
		prev = v
	}

	return trials
}

// Fit runs the whole offline procedure on a recording.
func Fit(cfg Config, ds *Dataset) (*Result, error) {
	if len(cfg.Selection) == 0 {
		return nil, model.ErrNoChannels
	}

	for _, idx := range cfg.Selection {
		if idx >= ds.Channels() {
			return nil, errors.Errorf("channel %d selected, recording has %d", idx, ds.Channels())
		}
	}

	sections, err := dsp.DesignBandpass(2*cfg.Order, cfg.Low, cfg.High, cfg.SampleRate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to design offline bandpass")
	}

	filtered, err := filterChannels(sections, ds, cfg.Selection)
	if err != nil {
		return nil, err
	}

	samples, channels := filtered.Dims()

	start := seconds(cfg.CueOffset, cfg.SampleRate)
	length := seconds(cfg.TaskDuration, cfg.SampleRate)
	delay := seconds(cfg.FeatureDelay, cfg.SampleRate)

	if length < 1 {
		return nil, errors.Errorf("task duration %gs shorter than one sample", cfg.TaskDuration)
	}

	var trials []Trial
	for _, tr := range Trials(ds.Labels) {
		if tr.Cue+start < 0 || tr.Cue+start+length > samples || tr.Cue+delay >= samples {
			logger.Warnw("trial runs past the recording, skipped", "cue", tr.Cue)
			continue
		}
		trials = append(trials, tr)
	}

	res := &Result{}
	for _, tr := range trials {
		res.Trials[tr.Class]++
	}

	for class, n := range res.Trials {
		if n < 2 {
			return nil, errors.Errorf("class %d has %d usable trials, need at least 2", class, n)
		}
	}

	epochs := [model.Classes]*mat.Dense{}
	fill := [model.Classes]int{}
	for class, n := range res.Trials {
		epochs[class] = mat.NewDense(n*length, channels, nil)
	}

	for _, tr := range trials {
		src := filtered.Slice(tr.Cue+start, tr.Cue+start+length, 0, channels)
		dst := epochs[tr.Class].Slice(fill[tr.Class], fill[tr.Class]+length, 0, channels).(*mat.Dense)
		dst.Copy(src)
		fill[tr.Class] += length
	}

	csp, err := TrainCSP(epochs[0], epochs[1], cfg.Filters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fit spatial filter")
	}

	features := logPowerFeatures(filtered, csp, trials, delay, seconds(cfg.Window, cfg.SampleRate))

	classes := make([]int, len(trials))
	for idx, tr := range trials {
		classes[idx] = tr.Class
	}

	lda, err := TrainLDA(features, classes, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fit discriminant")
	}

	correct := 0
	for idx, tr := range trials {
		if Predict(lda, features.RawRowView(idx)) == tr.Class {
			correct++
		}
	}

	res.Model = &model.Model{SpatialFilter: csp, Discriminant: lda}
	res.Accuracy = float64(correct) / float64(len(trials))

	logger.Infow("calibration done",
		"trials", len(trials), "left", res.Trials[0], "right", res.Trials[1],
		"accuracy", res.Accuracy)

	return res, nil
}

// filterChannels reduces the recording to the selection, replaces NaN with
// zero and applies the zero phase bandpass per channel.
func filterChannels(sections []biquad.Coefficients, ds *Dataset, sel model.Selection) (*mat.Dense, error) {
	samples := ds.Samples()
	out := mat.NewDense(samples, len(sel), nil)

	col := make([]float64, samples)
	for pos, idx := range sel {
		mat.Col(col, idx, ds.Data)
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = 0
			}
		}

		y, err := dsp.FiltFilt(sections, col)
		if err != nil {
			return nil, errors.Wrapf(err, "channel %d", idx)
		}

		out.SetCol(pos, y)
	}

	return out, nil
}

// logPowerFeatures projects the filtered recording through the spatial filter,
// smooths the log power over the whole recording and samples it delay samples
// after every cue.
func logPowerFeatures(filtered, csp *mat.Dense, trials []Trial, delay, window int) *mat.Dense {
	var proj mat.Dense
	proj.Mul(filtered, csp.T())

	samples, comps := proj.Dims()
	lp := dsp.NewLogPower(window, comps)

	byCue := make(map[int][]int, len(trials))
	for idx, tr := range trials {
		byCue[tr.Cue+delay] = append(byCue[tr.Cue+delay], idx)
	}

	features := mat.NewDense(len(trials), comps, nil)
	row := make([]float64, comps)

	for i := 0; i < samples; i++ {
		row = lp.Compute(row, proj.RawRowView(i))
		for _, idx := range byCue[i] {
			features.SetRow(idx, row)
		}
	}

	return features
}

func seconds(s, rate float64) int {
	return int(math.Round(s * rate))
}
