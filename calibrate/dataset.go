package calibrate

import (
	"io"

	"github.com/OpenPSG/edf"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Dataset is a labelled recording. Labels is the trigger channel: zero
// everywhere except at cue positions, which carry a class label code.
type Dataset struct {
	Labels []float64
	// Data holds samples x advertised channels.
	Data *mat.Dense
}

// Channels returns the number of advertised channels in the recording.
func (ds *Dataset) Channels() int {
	_, c := ds.Data.Dims()
	return c
}

// Samples returns the recording length in samples.
func (ds *Dataset) Samples() int {
	return len(ds.Labels)
}

const readChunk = 4096

// ReadEDF loads a recording where signal 0 is the trigger channel and the
// remaining signals are the advertised channels in stream order.
func ReadEDF(r io.ReadSeeker) (*Dataset, error) {
	er, err := edf.Open(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open edf")
	}

	var signals [][]float64
	for idx := 0; ; idx++ {
		sr, err := er.Signal(idx)
		if err != nil {
			// out of range ends the signal list
			break
		}

		data, err := readSignal(sr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read signal %d", idx)
		}

		signals = append(signals, data)
	}

	if len(signals) < 2 {
		return nil, errors.Errorf("edf has %d signals, need a trigger and at least one channel", len(signals))
	}

	samples := len(signals[0])
	if samples == 0 {
		return nil, errors.New("edf has no data records")
	}

	for idx, sig := range signals {
		if len(sig) != samples {
			return nil, errors.Errorf("signal %d has %d samples, trigger has %d", idx, len(sig), samples)
		}
	}

	ds := &Dataset{
		Labels: signals[0],
		Data:   mat.NewDense(samples, len(signals)-1, nil),
	}

	for ch, sig := range signals[1:] {
		ds.Data.SetCol(ch, sig)
	}

	return ds, nil
}

func readSignal(sr *edf.SignalReader) ([]float64, error) {
	var out []float64
	buf := make([]float64, readChunk)

	for {
		n, err := sr.Read(buf)
		out = append(out, buf[:n]...)

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return out, nil
		default:
			return nil, err
		}
	}
}
