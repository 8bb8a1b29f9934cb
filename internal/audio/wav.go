package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAV audio format codes
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
	wavFormatMulaw = 7
)

// WAVHeader is the canonical 44-byte header written by EncodeWAV
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// WAVInfo describes a parsed WAV container
type WAVInfo struct {
	AudioFormat   uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
	Data          []byte // Raw sample bytes of the data chunk
}

// EncodeWAV encodes 16-bit PCM samples into a WAV container
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// ParseWAV walks the RIFF chunk list and returns the format and data chunks.
// Unknown chunks (LIST, fact, ...) are skipped.
func ParseWAV(data []byte) (*WAVInfo, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("WAV data too short: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("missing RIFF/WAVE signature")
	}

	info := &WAVInfo{}
	haveFmt, haveData := false, false
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if size < 0 || body+size > len(data) {
			// Streaming recorders sometimes leave the data size unset; clamp to what we have
			if id == "data" {
				size = len(data) - body
			} else {
				return nil, fmt.Errorf("chunk %q overruns buffer", id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			f := data[body : body+size]
			info.AudioFormat = binary.LittleEndian.Uint16(f[0:2])
			info.Channels = int(binary.LittleEndian.Uint16(f[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(f[14:16]))
			haveFmt = true
		case "data":
			info.Data = data[body : body+size]
			haveData = true
		}

		// Chunks are word aligned
		offset = body + size + size%2
	}

	if !haveFmt {
		return nil, fmt.Errorf("missing fmt chunk")
	}
	if !haveData {
		return nil, fmt.Errorf("missing data chunk")
	}
	if info.Channels <= 0 || info.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid format: %d channels at %d Hz", info.Channels, info.SampleRate)
	}
	return info, nil
}

// Samples decodes the data chunk into interleaved 16-bit samples.
// Only 16-bit PCM and 8-bit μ-law are supported.
func (w *WAVInfo) Samples() ([]int16, error) {
	switch {
	case w.AudioFormat == wavFormatPCM && w.BitsPerSample == 16:
		data := w.Data
		if len(data)%2 != 0 {
			data = data[:len(data)-1]
		}
		return BytesToSamples(data)
	case w.AudioFormat == wavFormatMulaw && w.BitsPerSample == 8:
		return DecodeMulaw(w.Data), nil
	default:
		return nil, fmt.Errorf("unsupported WAV encoding: format %d, %d bits", w.AudioFormat, w.BitsPerSample)
	}
}

// FrameCount returns the number of sample frames in the data chunk
func (w *WAVInfo) FrameCount() int {
	bytesPerFrame := w.Channels * w.BitsPerSample / 8
	if bytesPerFrame <= 0 {
		return 0
	}
	return len(w.Data) / bytesPerFrame
}

// DecodeWAV decodes a WAV container back to mono 16-bit samples
func DecodeWAV(data []byte) ([]int16, int, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return nil, 0, err
	}
	samples, err := info.Samples()
	if err != nil {
		return nil, 0, err
	}
	return DownmixToMono(samples, info.Channels), info.SampleRate, nil
}
