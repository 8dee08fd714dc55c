package audio

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeWAV_RoundTrip(t *testing.T) {
	pcms := [][]byte{
		{0x01, 0x02},
		{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80},
		bytes.Repeat([]byte{0xab, 0xcd}, 1600),
	}
	for _, pcm := range pcms {
		wav, err := EncodeWAV(pcm, CaptureProfile)
		if err != nil {
			t.Fatalf("EncodeWAV: %v", err)
		}
		got, f, err := DecodeWAV(wav)
		if err != nil {
			t.Fatalf("DecodeWAV: %v", err)
		}
		if !bytes.Equal(got, pcm) {
			t.Fatalf("pcm round trip mismatch: got %d bytes, want %d", len(got), len(pcm))
		}
		if f != CaptureProfile {
			t.Fatalf("format=%v, want %v", f, CaptureProfile)
		}
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte("not a wav"),
		[]byte("RIFF\x00\x00\x00\x00WAVE"), // no chunks
	} {
		if _, _, err := DecodeWAV(data); err == nil {
			t.Fatalf("DecodeWAV(%q) succeeded, want error", data)
		}
	}
}

func TestDecodeWAV_TruncatedDataChunk(t *testing.T) {
	wav, err := EncodeWAV(bytes.Repeat([]byte{1, 2}, 100), CaptureProfile)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if _, _, err := DecodeWAV(wav[:len(wav)-10]); err == nil {
		t.Fatal("expected error for truncated data chunk")
	}
}

func TestDecodeCapture_FormatMismatchIsHardError(t *testing.T) {
	cases := []Format{
		{SampleRate: 44100, Channels: 1, Width: 2},
		{SampleRate: 16000, Channels: 2, Width: 2},
		{SampleRate: 16000, Channels: 1, Width: 1},
	}
	for _, f := range cases {
		wav, err := EncodeWAV([]byte{0, 0, 0, 0}, f)
		if err != nil {
			t.Fatalf("EncodeWAV(%v): %v", f, err)
		}
		_, err = DecodeCapture(wav)
		fe, ok := err.(*FormatError)
		if !ok {
			t.Fatalf("DecodeCapture(%v) err=%v, want *FormatError", f, err)
		}
		if fe.Got != f {
			t.Fatalf("FormatError.Got=%v, want %v", fe.Got, f)
		}
	}
}

func TestDecodeCapture_AcceptsProfile(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x34, 0x12}, 320)
	wav, err := EncodeWAV(pcm, CaptureProfile)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	got, err := DecodeCapture(wav)
	if err != nil {
		t.Fatalf("DecodeCapture: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatal("payload mismatch")
	}
}
