package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// ErrAudioDecode is returned for chunks that are not a complete, decodable container
var ErrAudioDecode = errors.New("audio decode error")

// Format identifies the container of an inbound chunk
type Format string

const (
	FormatWAV  Format = "wav"
	FormatOgg  Format = "ogg"
	FormatWebM Format = "webm"
)

// Opus granule positions always count 48kHz samples
const opusGranuleRate = 48000

var (
	riffMagic = []byte("RIFF")
	oggMagic  = []byte("OggS")
	ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}
)

// DecodedChunk is a validated audio chunk
type DecodedChunk struct {
	Format     Format
	MIMEType   string
	SampleRate int
	Channels   int
	Duration   time.Duration
	Samples    []int16 // Mono PCM, only populated for WAV
	Payload    []byte  // Original container bytes
}

// HasPCM reports whether the chunk carries decoded samples
func (d *DecodedChunk) HasPCM() bool {
	return len(d.Samples) > 0
}

// Codec validates self-contained audio chunks before they enter a session pipeline
type Codec struct {
	MaxBytes int
}

// NewCodec creates a codec that rejects payloads above maxBytes (0 disables the limit)
func NewCodec(maxBytes int) *Codec {
	return &Codec{MaxBytes: maxBytes}
}

// SniffFormat detects the container format from its magic bytes
func SniffFormat(payload []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(payload, riffMagic):
		return FormatWAV, true
	case bytes.HasPrefix(payload, oggMagic):
		return FormatOgg, true
	case bytes.HasPrefix(payload, ebmlMagic):
		return FormatWebM, true
	default:
		return "", false
	}
}

// Decode validates payload as one complete WAV, Ogg/Opus or WebM container.
// All failures wrap ErrAudioDecode.
func (c *Codec) Decode(payload []byte) (*DecodedChunk, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrAudioDecode)
	}
	if c.MaxBytes > 0 && len(payload) > c.MaxBytes {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds limit of %d", ErrAudioDecode, len(payload), c.MaxBytes)
	}

	format, ok := SniffFormat(payload)
	if !ok {
		return nil, fmt.Errorf("%w: unrecognized container", ErrAudioDecode)
	}

	var (
		chunk *DecodedChunk
		err   error
	)
	switch format {
	case FormatWAV:
		chunk, err = decodeWAVChunk(payload)
	case FormatOgg:
		chunk, err = decodeOggChunk(payload)
	case FormatWebM:
		chunk, err = decodeWebMChunk(payload)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAudioDecode, format, err)
	}
	chunk.Format = format
	chunk.Payload = payload
	return chunk, nil
}

func decodeWAVChunk(payload []byte) (*DecodedChunk, error) {
	info, err := ParseWAV(payload)
	if err != nil {
		return nil, err
	}
	samples, err := info.Samples()
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio frames")
	}

	frames := info.FrameCount()
	return &DecodedChunk{
		MIMEType:   "audio/wav",
		SampleRate: info.SampleRate,
		Channels:   info.Channels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(info.SampleRate),
		Samples:    DownmixToMono(samples, info.Channels),
	}, nil
}

// decodeOggChunk walks every page so truncated streams are rejected
func decodeOggChunk(payload []byte) (*DecodedChunk, error) {
	reader, header, err := oggreader.NewWith(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	var lastGranule uint64
	pages := 0
	for {
		_, page, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		pages++
		lastGranule = page.GranulePosition
	}
	if pages == 0 {
		return nil, fmt.Errorf("no audio pages after header")
	}

	var samples uint64
	if lastGranule > uint64(header.PreSkip) {
		samples = lastGranule - uint64(header.PreSkip)
	}

	return &DecodedChunk{
		MIMEType:   "audio/ogg",
		SampleRate: int(header.SampleRate),
		Channels:   int(header.Channels),
		Duration:   time.Duration(samples) * time.Second / opusGranuleRate,
	}, nil
}

// EBML element ids used to check a WebM header
const (
	ebmlDocTypeID = 0x4282
)

// decodeWebMChunk checks the EBML header declares a webm or matroska document.
// Opus frames inside are passed to the transcriber untouched.
func decodeWebMChunk(payload []byte) (*DecodedChunk, error) {
	pos := len(ebmlMagic)
	headerSize, n, err := readVint(payload[pos:], true)
	if err != nil {
		return nil, fmt.Errorf("header size: %w", err)
	}
	pos += n
	end := pos + int(headerSize)
	if end > len(payload) || headerSize == 0 {
		return nil, fmt.Errorf("truncated EBML header")
	}
	if end == len(payload) {
		return nil, fmt.Errorf("no segment after EBML header")
	}

	docType := ""
	for pos < end {
		id, idLen, err := readVint(payload[pos:end], false)
		if err != nil {
			return nil, fmt.Errorf("element id: %w", err)
		}
		pos += idLen
		size, sizeLen, err := readVint(payload[pos:end], true)
		if err != nil {
			return nil, fmt.Errorf("element size: %w", err)
		}
		pos += sizeLen
		if pos+int(size) > end {
			return nil, fmt.Errorf("element %#x overruns header", id)
		}
		if id == ebmlDocTypeID {
			docType = string(bytes.TrimRight(payload[pos:pos+int(size)], "\x00"))
		}
		pos += int(size)
	}

	if docType != "webm" && docType != "matroska" {
		return nil, fmt.Errorf("unexpected doc type %q", docType)
	}
	return &DecodedChunk{MIMEType: "audio/webm"}, nil
}

// readVint reads an EBML variable-length integer. Ids keep their length marker,
// sizes have it masked off.
func readVint(data []byte, mask bool) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	first := data[0]
	length := 1
	for bit := byte(0x80); bit != 0 && first&bit == 0; bit >>= 1 {
		length++
	}
	if length > 8 {
		return 0, 0, fmt.Errorf("invalid vint lead byte %#x", first)
	}
	if len(data) < length {
		return 0, 0, io.ErrUnexpectedEOF
	}

	value := uint64(first)
	if mask {
		value &= uint64(0xFF >> length)
	}
	for i := 1; i < length; i++ {
		value = value<<8 | uint64(data[i])
	}
	return value, length, nil
}
