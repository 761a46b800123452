package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Params fixes the raw PCM stream format produced by the decode process.
// Every chunk of a job shares the same parameters, so a chunk's container
// header depends only on its payload length.
type Params struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultParams is the pipeline-wide decode format: 16 kHz mono 16-bit PCM.
var DefaultParams = Params{SampleRate: 16000, Channels: 1, BitDepth: 16}

// Validate checks that the parameters describe an encodable PCM format.
func (p Params) Validate() error {
	if p.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("channel count must be positive, got %d", p.Channels)
	}
	if p.BitDepth <= 0 || p.BitDepth%8 != 0 {
		return fmt.Errorf("bit depth must be a positive multiple of 8, got %d", p.BitDepth)
	}
	return nil
}

// BytesPerSecond returns the raw PCM byte rate for the parameters.
func (p Params) BytesPerSecond() int {
	return p.SampleRate * p.Channels * p.BitDepth / 8
}

// BlockAlign returns the size in bytes of one sample frame across channels.
func (p Params) BlockAlign() int {
	return p.Channels * p.BitDepth / 8
}

// ChunkSizeBytes returns the raw payload size of one nominal-duration chunk.
// The duration is in seconds, matching the configured chunk length.
func ChunkSizeBytes(p Params, chunkSeconds float64) int {
	return int(float64(p.BytesPerSecond()) * chunkSeconds)
}

// PCMDuration derives the effective duration of a raw PCM payload from its
// byte length. The final chunk of a stream may be shorter than nominal; its
// duration comes from here, not from configuration.
func PCMDuration(p Params, payloadLen int) time.Duration {
	if payloadLen <= 0 {
		return 0
	}
	seconds := float64(payloadLen) / float64(p.BytesPerSecond())
	return time.Duration(seconds * float64(time.Second))
}

// wavHeader is the canonical 44-byte RIFF/WAVE header for PCM audio.
type wavHeader struct {
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

// headerSize is the encoded size of wavHeader.
const headerSize = 44

// NewHeader synthesizes a WAV header sized for exactly dataSize payload bytes.
// The header is a function of the payload length and the three fixed audio
// parameters only, which is what makes each chunk a self-contained file.
func NewHeader(p Params, dataSize int) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if dataSize <= 0 {
		return nil, fmt.Errorf("payload size must be positive, got %d", dataSize)
	}

	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(dataSize) + headerSize - 8,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(p.Channels),
		SampleRate:    uint32(p.SampleRate),
		ByteRate:      uint32(p.BytesPerSecond()),
		BlockAlign:    uint16(p.BlockAlign()),
		BitsPerSample: uint16(p.BitDepth),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataSize),
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return buf.Bytes(), nil
}

// WrapPCM concatenates a synthesized header with a raw PCM payload, producing
// one self-contained WAV chunk ready for upload.
func WrapPCM(p Params, pcm []byte) ([]byte, error) {
	header, err := NewHeader(p, len(pcm))
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(header)+len(pcm))
	out = append(out, header...)
	out = append(out, pcm...)
	return out, nil
}

// Info describes a parsed WAV header.
type Info struct {
	SampleRate    int     `json:"sample_rate"`
	Channels      int     `json:"channels"`
	BitsPerSample int     `json:"bits_per_sample"`
	DataSize      int     `json:"data_size_bytes"`
	Duration      float64 `json:"duration_seconds"`
}

// ParseHeader validates a WAV chunk and returns its format metadata.
func ParseHeader(data []byte) (*Info, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("WAV data too short: need at least %d bytes, got %d", headerSize, len(data))
	}

	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
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
	if header.SampleRate == 0 {
		return nil, fmt.Errorf("invalid sample rate: 0")
	}

	byteRate := int(header.SampleRate) * int(header.NumChannels) * int(header.BitsPerSample) / 8
	duration := float64(0)
	if byteRate > 0 {
		duration = float64(header.Subchunk2Size) / float64(byteRate)
	}

	return &Info{
		SampleRate:    int(header.SampleRate),
		Channels:      int(header.NumChannels),
		BitsPerSample: int(header.BitsPerSample),
		DataSize:      int(header.Subchunk2Size),
		Duration:      duration,
	}, nil
}
