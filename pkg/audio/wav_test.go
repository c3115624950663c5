package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestHeader(t *testing.T) {
	tests := []struct {
		name   string
		params HeaderParams
	}{
		{"mono 8k", HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16, DataLength: 640}},
		{"stereo 16k", HeaderParams{Channels: 2, SampleRate: 16000, BitDepth: 16, DataLength: 3200}},
		{"empty data", HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16, DataLength: 0}},
		{"odd length", HeaderParams{Channels: 2, SampleRate: 44100, BitDepth: 16, DataLength: 7}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Header(tt.params)
			if err != nil {
				t.Fatalf("Header failed: %v", err)
			}
			if len(data) != HeaderSize {
				t.Fatalf("Expected %d header bytes, got %d", HeaderSize, len(data))
			}

			h, err := ParseHeader(data)
			if err != nil {
				t.Fatalf("ParseHeader failed: %v", err)
			}
			if int(h.NumChannels) != tt.params.Channels {
				t.Errorf("Expected %d channels, got %d", tt.params.Channels, h.NumChannels)
			}
			if int(h.SampleRate) != tt.params.SampleRate {
				t.Errorf("Expected sample rate %d, got %d", tt.params.SampleRate, h.SampleRate)
			}
			if int(h.BitsPerSample) != tt.params.BitDepth {
				t.Errorf("Expected bit depth %d, got %d", tt.params.BitDepth, h.BitsPerSample)
			}
			if int(h.Subchunk2Size) != tt.params.DataLength {
				t.Errorf("Expected data length %d, got %d", tt.params.DataLength, h.Subchunk2Size)
			}
			if h.ChunkSize != uint32(36+tt.params.DataLength) {
				t.Errorf("Expected chunk size %d, got %d", 36+tt.params.DataLength, h.ChunkSize)
			}

			wantByteRate := uint32(tt.params.SampleRate * tt.params.Channels * tt.params.BitDepth / 8)
			if got := binary.LittleEndian.Uint32(data[28:32]); got != wantByteRate {
				t.Errorf("Expected byte rate %d, got %d", wantByteRate, got)
			}
			wantAlign := uint16(tt.params.Channels * tt.params.BitDepth / 8)
			if got := binary.LittleEndian.Uint16(data[32:34]); got != wantAlign {
				t.Errorf("Expected block align %d, got %d", wantAlign, got)
			}
		})
	}
}

func TestHeader_Deterministic(t *testing.T) {
	p := HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16, DataLength: 320}
	a, _ := Header(p)
	b, _ := Header(p)
	if string(a) != string(b) {
		t.Error("Header is not deterministic")
	}
}

func TestHeader_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params HeaderParams
	}{
		{"zero channels", HeaderParams{Channels: 0, SampleRate: 8000, BitDepth: 16}},
		{"zero sample rate", HeaderParams{Channels: 1, SampleRate: 0, BitDepth: 16}},
		{"negative sample rate", HeaderParams{Channels: 1, SampleRate: -8000, BitDepth: 16}},
		{"bit depth not byte aligned", HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 12}},
		{"negative data length", HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16, DataLength: -1}},
		{"data length overflow", HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16, DataLength: math.MaxUint32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Header(tt.params); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestParseHeader_Invalid(t *testing.T) {
	if _, err := ParseHeader(make([]byte, 10)); err == nil {
		t.Error("Expected error for short data")
	}

	data, _ := Header(HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16})
	copy(data[0:4], "RIFX")
	if _, err := ParseHeader(data); err == nil {
		t.Error("Expected error for missing RIFF marker")
	}
}

func TestWAVHeader_Duration(t *testing.T) {
	data, _ := Header(HeaderParams{Channels: 1, SampleRate: 8000, BitDepth: 16, DataLength: 16000})
	h, err := ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if math.Abs(h.Duration()-1.0) > 0.0001 {
		t.Errorf("Expected 1s duration, got %.4f", h.Duration())
	}
}
