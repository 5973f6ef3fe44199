package execread

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/noriah/bcifeed/input"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFrames(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []float32{1, 2, 3, 4, 5, 6, 7} {
		binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}

	cfg := input.SessionConfig{FrameSize: 3, SampleRate: 2}

	var got []input.Sample
	err := ReadFrames(context.Background(), &buf, cfg, func(s input.Sample) error {
		got = append(got, s)
		return nil
	})
	require.NoError(t, err)

	// the trailing partial frame is dropped
	assert.Equal(t, []input.Sample{
		{Values: []float32{1, 2, 3}, Time: 0},
		{Values: []float32{4, 5, 6}, Time: 0.5},
	}, got)
}

func TestReadFramesInvalidFrame(t *testing.T) {
	err := ReadFrames(context.Background(), &bytes.Buffer{}, input.SessionConfig{}, nil)
	assert.Error(t, err)
}

func TestParseDevice(t *testing.T) {
	dev, err := Backend{}.ParseDevice("  amp-stream --rate 250 ")
	require.NoError(t, err)
	assert.Equal(t, Command{"amp-stream", "--rate", "250"}, dev)
	assert.Equal(t, "amp-stream --rate 250", dev.String())

	_, err = Backend{}.ParseDevice(" ")
	assert.Error(t, err)
}
