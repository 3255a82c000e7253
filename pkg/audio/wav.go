package audio

import (
	"fmt"
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

const streamBufferSize = 4096

// DecodeWAV reads a WAV stream and downmixes it to mono float32 samples.
func DecodeWAV(r io.Reader) (Audio, error) {
	streamer, format, err := wav.Decode(r)
	if err != nil {
		return Audio{}, fmt.Errorf("decode wav: %w", err)
	}
	defer streamer.Close()

	scale := pcmScale(format.Precision)
	samples := make([]float32, 0, max(streamer.Len(), 0))
	buf := make([][2]float64, streamBufferSize)
	for {
		n, ok := streamer.Stream(buf)
		for i := 0; i < n; i++ {
			samples = append(samples, float32((buf[i][0]+buf[i][1])/2*scale))
		}
		if !ok {
			break
		}
	}
	if err := streamer.Err(); err != nil {
		return Audio{}, fmt.Errorf("read wav samples: %w", err)
	}

	return Audio{Samples: samples, SampleRate: int(format.SampleRate)}, nil
}

// pcmScale corrects beep's wav decoder, which divides 16- and 24-bit samples
// by the full unsigned range and so returns them at half scale.
func pcmScale(precision int) float64 {
	switch precision {
	case 2:
		return float64(1<<16-1) / (1 << 15)
	case 3:
		return float64(1<<24-1) / (1 << 23)
	default:
		return 1
	}
}

// EncodeWAV writes mono 16-bit PCM WAV data.
func EncodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	pos := 0
	streamer := beep.StreamerFunc(func(buf [][2]float64) (int, bool) {
		if pos >= len(samples) {
			return 0, false
		}
		n := 0
		for n < len(buf) && pos < len(samples) {
			v := float64(samples[pos])
			buf[n][0], buf[n][1] = v, v
			n++
			pos++
		}
		return n, true
	})

	format := beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
	if err := wav.Encode(w, streamer, format); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	return nil
}
