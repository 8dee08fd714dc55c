package audio

import "fmt"

// Normalize converts synthesis output of any supported linear PCM shape to
// the capture profile before transmission. Conversions are applied in a
// fixed order: channel downmix, then bit-depth conversion, then sample-rate
// conversion. Input audio is never normalized; see DecodeCapture.
func Normalize(pcm []byte, from Format) ([]byte, error) {
	if err := from.validate(); err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	if len(pcm)%from.Width != 0 {
		return nil, fmt.Errorf("normalize: pcm length %d is not a multiple of sample width %d", len(pcm), from.Width)
	}
	if from == CaptureProfile {
		return pcm, nil
	}

	wide, err := toWideSamples(pcm, from)
	if err != nil {
		return nil, err
	}
	if from.Channels > 1 {
		wide = downmix(wide, from.Channels)
	}
	samples := make([]int16, len(wide))
	for i, w := range wide {
		samples[i] = int16(w >> 16)
	}
	if from.SampleRate != CaptureProfile.SampleRate {
		samples = resample(samples, from.SampleRate, CaptureProfile.SampleRate)
	}

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(s >> 8)
	}
	return out, nil
}

// toWideSamples sign-extends raw PCM to a common 32-bit scale so channels
// average at full source precision before narrowing to 16 bits. 8-bit WAV
// audio is unsigned by convention; 24/32-bit is signed LE.
func toWideSamples(pcm []byte, f Format) ([]int32, error) {
	n := len(pcm) / f.Width
	samples := make([]int32, n)
	switch f.Width {
	case 1:
		for i := 0; i < n; i++ {
			samples[i] = int32(int(pcm[i])-128) << 24
		}
	case 2:
		for i := 0; i < n; i++ {
			samples[i] = int32(int16(uint16(pcm[2*i])|uint16(pcm[2*i+1])<<8)) << 16
		}
	case 3:
		for i := 0; i < n; i++ {
			v := int32(pcm[3*i]) | int32(pcm[3*i+1])<<8 | int32(int8(pcm[3*i+2]))<<16
			samples[i] = v << 8
		}
	case 4:
		for i := 0; i < n; i++ {
			samples[i] = int32(uint32(pcm[4*i]) | uint32(pcm[4*i+1])<<8 | uint32(pcm[4*i+2])<<16 | uint32(pcm[4*i+3])<<24)
		}
	default:
		return nil, fmt.Errorf("normalize: unsupported sample width %d", f.Width)
	}
	return samples, nil
}

// downmix averages interleaved channels into mono.
func downmix(samples []int32, channels int) []int32 {
	frames := len(samples) / channels
	out := make([]int32, frames)
	for i := 0; i < frames; i++ {
		var sum int64
		for c := 0; c < channels; c++ {
			sum += int64(samples[i*channels+c])
		}
		out[i] = int32(sum / int64(channels))
	}
	return out
}

// resample performs linear-interpolation rate conversion on mono samples.
func resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}
	outLen := int(int64(len(samples)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	ratio := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * ratio
		j := int(pos)
		if j >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(j)
		a, b := float64(samples[j]), float64(samples[j+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
