package playback

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/voice-studio/internal/core"
)

var (
	// ErrEmptyAudio is returned for zero-length input.
	ErrEmptyAudio = errors.New("audio is empty")
	// ErrUnknownFormat is returned when no supported container is recognised.
	ErrUnknownFormat = errors.New("unrecognised audio format")
	// ErrTruncated is returned when a recognised container is cut short.
	ErrTruncated = errors.New("audio is truncated")
)

const (
	id3HeaderSize  = 10
	id3FooterFlag  = 0x10
	mp3SyncScan    = 4096
	wavHeaderSize  = 12
	chunkHeaderLen = 8
	flacInfoEnd    = 42
	bitsPerByte    = 8
)

var (
	magicID3  = []byte("ID3")
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicOgg  = []byte("OggS")
	magicFLAC = []byte("fLaC")
)

// Layer III bitrates in kbit/s by bitrate index.
var (
	mpeg1Layer3Bitrates = [15]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320}
	mpeg2Layer3Bitrates = [15]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160}
)

// Decoder recognises MP3, WAV, Ogg and FLAC containers by their magic bytes
// and estimates their duration. It does not transcode: the external player
// receives the original bytes.
type Decoder struct{}

// NewDecoder returns a container sniffing decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode validates data and wraps it in an AudioBuffer.
func (d *Decoder) Decode(ctx context.Context, data []byte) (*core.AudioBuffer, error) {
	err := ctx.Err()
	if err != nil {
		return nil, &core.DecodeError{Err: err}
	}

	if len(data) == 0 {
		return nil, &core.DecodeError{Err: ErrEmptyAudio}
	}

	var (
		format   core.AudioFormat
		duration time.Duration
	)

	switch {
	case bytes.HasPrefix(data, magicRIFF):
		format = core.FormatWAV
		duration, err = wavDuration(data)
	case bytes.HasPrefix(data, magicOgg):
		format = core.FormatOGG
	case bytes.HasPrefix(data, magicFLAC):
		format = core.FormatFLAC
		duration, err = flacDuration(data)
	case bytes.HasPrefix(data, magicID3) || isFrameSync(data):
		format = core.FormatMP3
		duration, err = mp3Duration(data)
	default:
		err = ErrUnknownFormat
	}

	if err != nil {
		return nil, &core.DecodeError{Err: err}
	}

	return &core.AudioBuffer{Format: format, Data: data, Duration: duration}, nil
}

func isFrameSync(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func mp3Duration(data []byte) (time.Duration, error) {
	offset := 0

	if bytes.HasPrefix(data, magicID3) {
		if len(data) < id3HeaderSize {
			return 0, fmt.Errorf("%w: id3 header", ErrTruncated)
		}

		size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
		offset = id3HeaderSize + size

		if data[5]&id3FooterFlag != 0 {
			offset += id3HeaderSize
		}
	}

	frame := findFrame(data, offset)
	if frame < 0 {
		return 0, fmt.Errorf("%w: no mpeg frame found", ErrUnknownFormat)
	}

	kbps := layer3Bitrate(data[frame : frame+4])
	if kbps == 0 {
		return 0, nil
	}

	bits := float64(len(data)-frame) * bitsPerByte

	return time.Duration(bits / float64(kbps*1000) * float64(time.Second)), nil
}

func findFrame(data []byte, offset int) int {
	limit := min(len(data)-4, offset+mp3SyncScan)

	for i := offset; i <= limit; i++ {
		if isFrameSync(data[i:]) {
			return i
		}
	}

	return -1
}

// layer3Bitrate returns the bitrate of a Layer III frame header, or zero for
// other layers and free-format streams.
func layer3Bitrate(header []byte) int {
	version := (header[1] >> 3) & 0x03
	layer := (header[1] >> 1) & 0x03
	index := header[2] >> 4

	if layer != 0x01 || index == 0 || index == 0x0F || version == 0x01 {
		return 0
	}

	if version == 0x03 {
		return mpeg1Layer3Bitrates[index]
	}

	return mpeg2Layer3Bitrates[index]
}

func wavDuration(data []byte) (time.Duration, error) {
	if len(data) < wavHeaderSize || !bytes.Equal(data[8:12], magicWAVE) {
		return 0, fmt.Errorf("%w: riff container is not wave", ErrUnknownFormat)
	}

	var (
		byteRate uint32
		dataSize uint32
		haveData bool
	)

	for offset := wavHeaderSize; offset+chunkHeaderLen <= len(data); {
		id := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		body := offset + chunkHeaderLen

		switch id {
		case "fmt ":
			if body+12 > len(data) {
				return 0, fmt.Errorf("%w: fmt chunk", ErrTruncated)
			}

			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			dataSize = min(size, uint32(len(data)-body))
			haveData = true
		}

		if haveData && byteRate != 0 {
			break
		}

		next := body + int(size) + int(size&1)
		if next <= offset {
			break
		}

		offset = next
	}

	if byteRate == 0 || !haveData {
		return 0, fmt.Errorf("%w: wave header is incomplete", ErrTruncated)
	}

	return time.Duration(float64(dataSize) / float64(byteRate) * float64(time.Second)), nil
}

func flacDuration(data []byte) (time.Duration, error) {
	if len(data) < flacInfoEnd {
		return 0, fmt.Errorf("%w: flac streaminfo", ErrTruncated)
	}

	if data[4]&0x7F != 0 {
		return 0, fmt.Errorf("%w: flac streaminfo missing", ErrUnknownFormat)
	}

	sampleRate := uint64(data[18])<<12 | uint64(data[19])<<4 | uint64(data[20])>>4
	totalSamples := uint64(data[21]&0x0F)<<32 | uint64(binary.BigEndian.Uint32(data[22:26]))

	if sampleRate == 0 {
		return 0, nil
	}

	return time.Duration(float64(totalSamples) / float64(sampleRate) * float64(time.Second)), nil
}
