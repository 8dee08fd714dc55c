// Package audio implements the fixed-profile PCM framing used by the
// gateway: WAV (RIFF) wrapping of raw linear PCM, strict input validation
// against the capture profile, and normalization of synthesis output.
package audio

import (
	"encoding/binary"
	"fmt"
)

// Format describes the shape of a linear PCM byte stream.
type Format struct {
	SampleRate int // samples per second
	Channels   int // interleaved channel count
	Width      int // bytes per sample (2 = 16-bit)
}

// CaptureProfile is the only input format the gateway accepts: the client
// hardware records 16-bit signed little-endian mono at 16 kHz.
var CaptureProfile = Format{SampleRate: 16000, Channels: 1, Width: 2}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%d-bit", f.SampleRate, f.Channels, f.Width*8)
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channel count must be > 0, got %d", f.Channels)
	}
	switch f.Width {
	case 1, 2, 3, 4:
	default:
		return fmt.Errorf("unsupported sample width %d bytes", f.Width)
	}
	return nil
}

// FormatError reports audio that does not match the capture profile.
type FormatError struct {
	Got  Format
	Want Format
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("audio format %s does not match required %s", e.Got, e.Want)
}

const wavHeaderSize = 44

// EncodeWAV wraps raw PCM bytes in a minimal RIFF/WAVE container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}

	blockAlign := f.Channels * f.Width
	byteRate := f.SampleRate * blockAlign

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // audio format: linear PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.Width*8))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)
	return out, nil
}

// DecodeWAV unwraps a RIFF/WAVE container and returns the PCM payload and
// its declared format. Chunks other than fmt/data are skipped.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, fmt.Errorf("decode wav: not a RIFF/WAVE stream")
	}

	var (
		f       Format
		pcm     []byte
		sawFmt  bool
		sawData bool
	)

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			return nil, Format{}, fmt.Errorf("decode wav: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, fmt.Errorf("decode wav: fmt chunk too short (%d bytes)", size)
			}
			if codec := binary.LittleEndian.Uint16(data[body : body+2]); codec != 1 {
				return nil, Format{}, fmt.Errorf("decode wav: unsupported codec %d (linear PCM only)", codec)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			f.Width = int(binary.LittleEndian.Uint16(data[body+14:body+16])) / 8
			sawFmt = true
		case "data":
			pcm = data[body : body+size]
			sawData = true
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !sawFmt || !sawData {
		return nil, Format{}, fmt.Errorf("decode wav: missing fmt or data chunk")
	}
	if err := f.validate(); err != nil {
		return nil, Format{}, fmt.Errorf("decode wav: %w", err)
	}
	return pcm, f, nil
}

// DecodeCapture unwraps a WAV container and validates the payload against
// the capture profile. Mismatched input is a hard failure: the gateway does
// not resample on the input side.
func DecodeCapture(data []byte) ([]byte, error) {
	pcm, f, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	if f != CaptureProfile {
		return nil, &FormatError{Got: f, Want: CaptureProfile}
	}
	return pcm, nil
}
