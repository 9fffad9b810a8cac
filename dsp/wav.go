package dsp

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavBitDepth = 16
	wavChannels = 1
	wavPCM      = 1
)

// WriteWAV encodes wave as 16-bit mono PCM. Samples are clipped to [-1, 1].
// The encoder seeks back to fill in the chunk sizes, so w must be seekable.
func WriteWAV(w io.WriteSeeker, wave []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	pcm := make([]int, len(wave))
	for i, s := range wave {
		v := math.Max(-1, math.Min(1, float64(s)))
		pcm[i] = int(math.Round(v * math.MaxInt16))
	}

	enc := wav.NewEncoder(w, sampleRate, wavBitDepth, wavChannels, wavPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: wavChannels, SampleRate: sampleRate},
		Data:           pcm,
		SourceBitDepth: wavBitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write wav samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %v", err)
	}
	return nil
}
