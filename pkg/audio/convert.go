package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
)

// Format describes the sample rate and channel count of a 16-bit PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// STT is the format every bundled speech-to-text provider prefers.
var STT = Format{SampleRate: 16000, Channels: 1}

// FrameBytes returns the size of one sample across all channels.
func (f Format) FrameBytes() int { return 2 * max(f.Channels, 1) }

// Valid reports whether f describes a usable stream.
func (f Format) Valid() bool { return f.SampleRate > 0 && f.Channels > 0 }

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	}
	return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
}

// Converter converts PCM chunks from one format to another: down-mix to mono
// first, then resample. It logs once when a conversion is needed.
type Converter struct {
	From, To Format

	warnOnce sync.Once
}

// Convert returns pcm in the target format. When the formats match, pcm is
// returned unchanged. Trailing bytes that do not form a whole frame are
// dropped.
func (c *Converter) Convert(pcm []byte) []byte {
	from := c.From
	if fb := from.FrameBytes(); len(pcm)%fb != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%fb]
	}
	if from == c.To {
		return pcm
	}
	c.warnOnce.Do(func() {
		slog.Info("audio: converting input", "from", from.String(), "to", c.To.String())
	})

	if from.Channels != c.To.Channels {
		switch {
		case c.To.Channels == 1:
			pcm = Downmix(pcm, from.Channels)
		case from.Channels == 1 && c.To.Channels == 2:
			pcm = MonoToStereo(pcm)
		}
		from.Channels = c.To.Channels
	}
	if from.SampleRate != c.To.SampleRate {
		pcm = Resample(pcm, from.Channels, from.SampleRate, c.To.SampleRate)
	}
	return pcm
}

func sampleAt(pcm []byte, i int) int32 {
	return int32(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
}

func putSample(pcm []byte, i int, v int32) {
	v = min(max(v, -32768), 32767)
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
}

// Downmix averages every frame of interleaved channels into one mono sample.
func Downmix(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frames := len(pcm) / (2 * channels)
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += sampleAt(pcm, i*channels+ch)
		}
		putSample(out, i, sum/int32(channels))
	}
	return out
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	n := len(pcm) / 2
	out := make([]byte, n*4)
	for i := range n {
		s := sampleAt(pcm, i)
		putSample(out, 2*i, s)
		putSample(out, 2*i+1, s)
	}
	return out
}

// Resample converts interleaved PCM between sample rates with linear
// interpolation per channel.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	srcFrames := len(pcm) / (2 * channels)
	if srcFrames == 0 {
		return nil
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*channels*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		for ch := range channels {
			s0 := float64(sampleAt(pcm, idx*channels+ch))
			s1 := float64(sampleAt(pcm, next*channels+ch))
			putSample(out, i*channels+ch, int32(s0*(1-frac)+s1*frac))
		}
	}
	return out
}
