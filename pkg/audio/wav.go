package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// HeaderSize is the length of a canonical PCM WAV header.
const HeaderSize = 44

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// HeaderParams describes the audio that follows a header.
type HeaderParams struct {
	Channels   int
	SampleRate int
	BitDepth   int
	DataLength int
}

// Header builds the 44-byte PCM header for raw audio described by p.
func Header(p HeaderParams) ([]byte, error) {
	if p.Channels < 1 || p.Channels > math.MaxUint16 {
		return nil, fmt.Errorf("invalid channel count: %d", p.Channels)
	}
	if p.SampleRate <= 0 || int64(p.SampleRate) > math.MaxUint32 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.BitDepth <= 0 || p.BitDepth%8 != 0 {
		return nil, fmt.Errorf("bit depth must be a positive multiple of 8, got %d", p.BitDepth)
	}
	// ChunkSize must also fit, so leave room for the 36 header bytes it covers.
	if p.DataLength < 0 || int64(p.DataLength) > math.MaxUint32-36 {
		return nil, fmt.Errorf("data length out of range: %d", p.DataLength)
	}

	channels := uint16(p.Channels)
	bits := uint16(p.BitDepth)
	dataSize := uint32(p.DataLength)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(p.SampleRate),
		ByteRate:      uint32(p.SampleRate) * uint32(channels) * uint32(bits) / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHeader reads and validates the header at the start of data.
func ParseHeader(data []byte) (*WAVHeader, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", HeaderSize, len(data))
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	return &header, nil
}

// Duration returns the playing time in seconds described by the header.
func (h *WAVHeader) Duration() float64 {
	if h.ByteRate == 0 {
		return 0
	}
	return float64(h.Subchunk2Size) / float64(h.ByteRate)
}
