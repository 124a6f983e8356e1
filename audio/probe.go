package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
)

const (
	probeBytes   = 16 * 1024
	probeSamples = 512
)

// ErrUndecodable is returned when a stream that claims to be mp3 carries no decodable frames.
var ErrUndecodable = errors.New("stream carries no decodable audio")

// Format describes what a probe found in the first bytes of a stream.
type Format struct {
	SampleRate  int
	NumChannels int
}

// probeMP3 decodes a few samples from the head of an mp3 stream. Browsers
// report a playback-start failure for streams like this, so the output does too.
func probeMP3(head []byte) (Format, error) {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(head)))
	if err != nil {
		return Format{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	defer streamer.Close()

	samples := make([][2]float64, probeSamples)
	n, ok := streamer.Stream(samples)
	if !ok && n == 0 {
		if streamErr := streamer.Err(); streamErr != nil {
			return Format{}, fmt.Errorf("%w: %v", ErrUndecodable, streamErr)
		}
		return Format{}, ErrUndecodable
	}

	return Format{
		SampleRate:  int(format.SampleRate),
		NumChannels: format.NumChannels,
	}, nil
}

// FrameDuration is how long one probe window lasts at the detected rate.
func (f Format) FrameDuration() string {
	if f.SampleRate == 0 {
		return "0s"
	}
	return beep.SampleRate(f.SampleRate).D(probeSamples).String()
}

func needsProbe(contentType string) bool {
	switch contentType {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3":
		return true
	default:
		return false
	}
}
