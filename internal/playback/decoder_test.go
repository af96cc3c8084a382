package playback_test

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mp3Fixture() []byte {
	data := []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0A}
	data = append(data, make([]byte, 10)...)

	frames := make([]byte, 16000)
	copy(frames, []byte{0xFF, 0xFB, 0x90, 0x00})

	return append(data, frames...)
}

func wavFixture() []byte {
	le32 := func(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
	le16 := func(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }

	var data []byte
	data = append(data, "RIFF"...)
	data = append(data, le32(36+64000)...)
	data = append(data, "WAVE"...)
	data = append(data, "fmt "...)
	data = append(data, le32(16)...)
	data = append(data, le16(1)...)
	data = append(data, le16(1)...)
	data = append(data, le32(16000)...)
	data = append(data, le32(32000)...)
	data = append(data, le16(2)...)
	data = append(data, le16(16)...)
	data = append(data, "data"...)
	data = append(data, le32(64000)...)

	return append(data, make([]byte, 64000)...)
}

func flacFixture() []byte {
	data := make([]byte, 42)
	copy(data, "fLaC")
	data[4] = 0x80
	data[7] = 34

	const sampleRate = 44100

	data[18] = byte(sampleRate >> 12)
	data[19] = byte((sampleRate >> 4) & 0xFF)
	data[20] = byte(sampleRate&0x0F)<<4 | 0x02
	binary.BigEndian.PutUint32(data[22:26], 88200)

	return data
}

func TestDecoder_Formats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		format   core.AudioFormat
		duration time.Duration
	}{
		{name: "mp3 with id3", data: mp3Fixture(), format: core.FormatMP3, duration: time.Second},
		{name: "wav", data: wavFixture(), format: core.FormatWAV, duration: 2 * time.Second},
		{name: "flac", data: flacFixture(), format: core.FormatFLAC, duration: 2 * time.Second},
		{name: "ogg", data: []byte("OggS\x00\x02rest"), format: core.FormatOGG},
	}

	decoder := playback.NewDecoder()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			buf, err := decoder.Decode(context.Background(), testCase.data)
			require.NoError(t, err)
			assert.Equal(t, testCase.format, buf.Format)
			assert.InDelta(t, testCase.duration.Seconds(), buf.Duration.Seconds(), 0.01)
			assert.Len(t, buf.Data, len(testCase.data))
		})
	}
}

func TestDecoder_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{name: "empty", data: nil, want: playback.ErrEmptyAudio},
		{name: "json error body", data: []byte(`{"error":"quota"}`), want: playback.ErrUnknownFormat},
		{name: "riff but not wave", data: []byte("RIFF\x00\x00\x00\x00AVI "), want: playback.ErrUnknownFormat},
		{name: "truncated flac", data: []byte("fLaC\x00"), want: playback.ErrTruncated},
	}

	decoder := playback.NewDecoder()

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := decoder.Decode(context.Background(), testCase.data)

			var decodeErr *core.DecodeError
			require.ErrorAs(t, err, &decodeErr)
			require.ErrorIs(t, err, testCase.want)
		})
	}
}
