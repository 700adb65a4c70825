// Package mp3 computes the total playback duration of an MPEG Layer III
// bitstream by walking its frame headers, without decoding any audio.
package mp3

import (
	"encoding/binary"
	"time"
)

// HeaderLen is the size of an MPEG audio frame header.
const HeaderLen = 4

// MPEG Layer III bitrate tables in kbps, indexed by the header's 4-bit
// bitrate field. Index 0 (free format) and 15 (reserved) are rejected.
var (
	bitrateV1 = []int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	bitrateV2 = []int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// MPEG1 sample rate table in Hz; MPEG2 halves it, MPEG2.5 quarters it.
var sampleRateV1 = []int{44100, 48000, 32000, 0}

// FrameInfo describes one valid frame found in the stream.
type FrameInfo struct {
	// Size is the total frame length in bytes, header included.
	Size int

	// Duration is the playback time of the frame's samples.
	Duration time.Duration
}

// ParseFrameHeader decodes the frame header at the start of b. It returns
// ok=false when b does not begin with a valid Layer III frame header;
// the caller resynchronizes by advancing one byte and retrying.
func ParseFrameHeader(b []byte) (FrameInfo, bool) {
	if len(b) < HeaderLen {
		return FrameInfo{}, false
	}
	h := binary.BigEndian.Uint32(b)

	// Frame sync: 11 set bits.
	if h&0xFFE00000 != 0xFFE00000 {
		return FrameInfo{}, false
	}

	version := (h >> 19) & 0x3 // 0=MPEG2.5, 1=reserved, 2=MPEG2, 3=MPEG1
	layer := (h >> 17) & 0x3   // 1=Layer III
	if version == 1 || layer != 1 {
		return FrameInfo{}, false
	}

	bitrateIdx := (h >> 12) & 0xF
	sampleIdx := (h >> 10) & 0x3
	padding := int((h >> 9) & 0x1)
	if bitrateIdx == 0 || bitrateIdx == 15 || sampleIdx == 3 {
		return FrameInfo{}, false
	}

	var bitrate, sampleRate, samplesPerFrame int
	if version == 3 {
		bitrate = bitrateV1[bitrateIdx] * 1000
		sampleRate = sampleRateV1[sampleIdx]
		samplesPerFrame = 1152
	} else {
		bitrate = bitrateV2[bitrateIdx] * 1000
		sampleRate = sampleRateV1[sampleIdx] / 2
		if version == 0 {
			sampleRate = sampleRateV1[sampleIdx] / 4
		}
		samplesPerFrame = 576
	}

	// Layer III frame length: samples/8 * bitrate / sampleRate (+padding).
	size := samplesPerFrame/8*bitrate/sampleRate + padding
	if size <= HeaderLen {
		return FrameInfo{}, false
	}

	return FrameInfo{
		Size:     size,
		Duration: time.Duration(samplesPerFrame) * time.Second / time.Duration(sampleRate),
	}, true
}
