// Package audio provides WAV payload inspection for the voice service.
//
// The gateway uses it to validate engine output before caching, and the HTTP
// surface uses it to report duration and sample rate headers.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Minimum bytes for a RIFF header plus one chunk header.
const minWAVSize = 12

// Chunk identifiers.
const (
	riffMagic = "RIFF"
	waveMagic = "WAVE"
	fmtChunk  = "fmt "
	dataChunk = "data"
)

// Static errors.
var (
	// ErrNotWAV indicates the payload is not a RIFF/WAVE container.
	ErrNotWAV = errors.New("payload is not WAV audio")
	// ErrTruncatedWAV indicates the container ends before its declared chunks do.
	ErrTruncatedWAV = errors.New("truncated WAV payload")
	// ErrMissingFormat indicates the container has no fmt chunk.
	ErrMissingFormat = errors.New("WAV payload has no format chunk")
)

// Info describes a parsed WAV payload.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataBytes     int
}

// Duration returns the playback length implied by the format and data size.
func (i Info) Duration() time.Duration {
	bytesPerSecond := i.SampleRate * i.Channels * i.BitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}

	seconds := float64(i.DataBytes) / float64(bytesPerSecond)

	return time.Duration(seconds * float64(time.Second))
}

// Inspect parses the RIFF/WAVE container enough to extract format and data
// size. It walks the chunk list rather than assuming the canonical 44-byte
// layout, since engines may emit extra chunks (LIST, fact) before data.
func Inspect(payload []byte) (Info, error) {
	if len(payload) < minWAVSize {
		return Info{}, fmt.Errorf("%w: %d bytes", ErrNotWAV, len(payload))
	}

	if string(payload[0:4]) != riffMagic || string(payload[8:12]) != waveMagic {
		return Info{}, ErrNotWAV
	}

	info := Info{SampleRate: 0, Channels: 0, BitsPerSample: 0, DataBytes: 0}
	haveFormat := false
	haveData := false

	offset := minWAVSize
	for offset+8 <= len(payload) {
		chunkID := string(payload[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(payload[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case fmtChunk:
			if body+16 > len(payload) {
				return Info{}, ErrTruncatedWAV
			}

			info.Channels = int(binary.LittleEndian.Uint16(payload[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(payload[body+4 : body+8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(payload[body+14 : body+16]))
			haveFormat = true
		case dataChunk:
			if body+chunkSize > len(payload) {
				return Info{}, ErrTruncatedWAV
			}

			info.DataBytes = chunkSize
			haveData = true
		}

		// Chunks are word-aligned; odd sizes carry a pad byte.
		offset = body + chunkSize + chunkSize%2
	}

	if !haveFormat {
		return Info{}, ErrMissingFormat
	}

	if !haveData {
		return Info{}, ErrTruncatedWAV
	}

	return info, nil
}
