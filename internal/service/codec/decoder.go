// Package codec decodes the wearable's compressed voice codec into the
// linear PCM shape the recognition backends consume.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/opus"
	"github.com/pion/opus/pkg/oggreader"
	"github.com/zeozeozeo/gomplerate"
)

const (
	// TargetSampleRate is the rate every backend receives.
	TargetSampleRate = 16000

	// gainFactor is the fixed volume boost applied to the decoded signal.
	// The wearable's microphone records quiet; recognition accuracy drops
	// without it.
	gainFactor = 7

	// maxFrameSize is the largest Opus frame: 120ms at 48kHz.
	maxFrameSize = 5760
)

var (
	// ErrEmptyAudio marks input that is valid but carries no signal.
	ErrEmptyAudio = errors.New("empty audio")
	// ErrMalformed marks input that is not a valid codec bitstream.
	ErrMalformed = errors.New("malformed audio")
)

// PCM is decoded linear audio: 16-bit signed mono samples at SampleRate.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Bytes returns the samples as little-endian 16-bit PCM.
func (p PCM) Bytes() []byte {
	out := make([]byte, len(p.Samples)*2)
	for i, s := range p.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Duration returns the playback length of the audio.
func (p PCM) Duration() time.Duration {
	if p.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(p.Samples)) * time.Second / time.Duration(p.SampleRate)
}

// Decode converts an Ogg-encapsulated Opus payload into 16kHz mono PCM.
// Empty input, or input that decodes to pure silence, returns
// ErrEmptyAudio so the dispatcher can short-circuit without a backend
// call. A payload that is not a valid bitstream returns ErrMalformed.
func Decode(data []byte) (pcm PCM, err error) {
	// The pure Go decoder can panic on hostile bitstreams; surface that
	// as a decode failure instead of killing the request worker.
	defer func() {
		if r := recover(); r != nil {
			pcm = PCM{}
			err = fmt.Errorf("%w: decoder panic: %v", ErrMalformed, r)
		}
	}()

	if len(data) == 0 {
		return PCM{}, ErrEmptyAudio
	}

	ogg, header, err := oggreader.NewWith(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	sampleRate := int(header.SampleRate)
	channels := int(header.Channels)
	if sampleRate <= 0 || channels <= 0 {
		return PCM{}, fmt.Errorf("%w: rate=%d channels=%d", ErrMalformed, sampleRate, channels)
	}

	decoder := opus.NewDecoder()
	out := make([]byte, maxFrameSize*channels*2)

	var samples []int16
	for {
		segments, _, err := ogg.ParseNextPage()
		if err == io.EOF {
			break
		}
		if err != nil {
			return PCM{}, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		for _, segment := range segments {
			if len(segment) == 0 {
				continue
			}
			// Undecodable packets are skipped rather than failing the
			// whole utterance; a stream with nothing decodable at all is
			// caught below.
			if _, _, err := decoder.Decode(segment, out); err != nil {
				continue
			}
			samples = append(samples, trimFrame(out)...)
		}
	}

	if len(samples) == 0 {
		return PCM{}, ErrEmptyAudio
	}
	if channels > 1 {
		samples = downmix(samples, channels)
	}
	applyGain(samples, gainFactor)
	if sampleRate != TargetSampleRate {
		samples, err = resample(samples, sampleRate, TargetSampleRate)
		if err != nil {
			return PCM{}, err
		}
	}
	if silent(samples) {
		return PCM{}, ErrEmptyAudio
	}
	return PCM{Samples: samples, SampleRate: TargetSampleRate}, nil
}

// trimFrame parses little-endian int16 samples from a decode buffer. The
// decoder fills the buffer without reporting how many bytes it wrote, so
// trailing zero padding is stripped.
func trimFrame(buf []byte) []int16 {
	samples := make([]int16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(buf[i : i+2]))
		if sample == 0 && i > 0 && allZero(buf[i:]) {
			break
		}
		samples = append(samples, sample)
	}
	return samples
}

func allZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// downmix averages interleaved channels into mono.
func downmix(samples []int16, channels int) []int16 {
	mono := make([]int16, len(samples)/channels)
	for i := range mono {
		var sum int32
		for ch := 0; ch < channels; ch++ {
			sum += int32(samples[i*channels+ch])
		}
		mono[i] = int16(sum / int32(channels))
	}
	return mono
}

// applyGain multiplies samples in place, saturating at the int16 range.
func applyGain(samples []int16, factor int) {
	for i, s := range samples {
		v := int(s) * factor
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}
}

func resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	resampler, err := gomplerate.NewResampler(1, fromRate, toRate)
	if err != nil {
		return nil, fmt.Errorf("%w: resample %d->%d: %s", ErrMalformed, fromRate, toRate, err)
	}
	return resampler.ResampleInt16(samples), nil
}

func silent(samples []int16) bool {
	for _, s := range samples {
		if s != 0 {
			return false
		}
	}
	return true
}
