// Package audio_test tests WAV payload inspection.
package audio_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/book-expert/voice-service/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeWAV builds a canonical 16-bit PCM WAV payload for testing.
func makeWAV(t *testing.T, sampleRate, channels int, pcm []byte) []byte {
	t.Helper()

	const bitsPerSample = 16

	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	payload := make([]byte, 0, 44+len(pcm))
	payload = append(payload, "RIFF"...)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(36+len(pcm)))
	payload = append(payload, "WAVE"...)
	payload = append(payload, "fmt "...)
	payload = binary.LittleEndian.AppendUint32(payload, 16)
	payload = binary.LittleEndian.AppendUint16(payload, 1) // PCM
	payload = binary.LittleEndian.AppendUint16(payload, uint16(channels))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(sampleRate))
	payload = binary.LittleEndian.AppendUint32(payload, uint32(byteRate))
	payload = binary.LittleEndian.AppendUint16(payload, uint16(blockAlign))
	payload = binary.LittleEndian.AppendUint16(payload, bitsPerSample)
	payload = append(payload, "data"...)
	payload = binary.LittleEndian.AppendUint32(payload, uint32(len(pcm)))
	payload = append(payload, pcm...)

	return payload
}

func TestInspect_CanonicalPayload(t *testing.T) {
	t.Parallel()

	// One second of silence: 24000 Hz, mono, 16-bit.
	pcm := make([]byte, 24000*2)
	payload := makeWAV(t, 24000, 1, pcm)

	info, err := audio.Inspect(payload)
	require.NoError(t, err)

	assert.Equal(t, 24000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitsPerSample)
	assert.Equal(t, len(pcm), info.DataBytes)
	assert.Equal(t, time.Second, info.Duration())
}

func TestInspect_RejectsNonWAV(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"too short", []byte("RIFF")},
		{"wrong magic", []byte("OGGS0000000000000000")},
		{"json error body", []byte(`{"detail":"engine exploded"}`)},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := audio.Inspect(testCase.payload)
			require.ErrorIs(t, err, audio.ErrNotWAV)
		})
	}
}

func TestInspect_RejectsTruncatedData(t *testing.T) {
	t.Parallel()

	payload := makeWAV(t, 24000, 1, make([]byte, 100))
	truncated := payload[:len(payload)-50]

	_, err := audio.Inspect(truncated)
	require.ErrorIs(t, err, audio.ErrTruncatedWAV)
}

func TestInspect_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	payload := makeWAV(t, 22050, 2, make([]byte, 64))

	// Splice a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 0x04, 0x00, 0x00, 0x00, 'I', 'N', 'F', 'O')
	spliced := append([]byte{}, payload[:36]...)
	spliced = append(spliced, list...)
	spliced = append(spliced, payload[36:]...)

	info, err := audio.Inspect(spliced)
	require.NoError(t, err)
	assert.Equal(t, 22050, info.SampleRate)
	assert.Equal(t, 2, info.Channels)
	assert.Equal(t, 64, info.DataBytes)
}
