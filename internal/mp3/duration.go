package mp3

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

const (
	readChunkSize = 64 * 1024
	id3HeaderLen  = 10
)

var id3Magic = []byte("ID3")

// Accumulator computes a running total playback duration from a stream
// delivered in arbitrary-sized chunks. Bytes belonging to an incomplete
// trailing frame are carried over to the next chunk, so no frame is ever
// parsed from a truncated window and no byte is counted twice.
//
// The zero value is ready to use.
type Accumulator struct {
	buf        []byte
	tagChecked bool
	skip       int64
	total      time.Duration
}

// Feed consumes the next chunk of the stream. Chunks may be any size,
// down to a single byte.
func (a *Accumulator) Feed(chunk []byte) {
	a.buf = append(a.buf, chunk...)

	if !a.tagChecked && !a.checkLeadingTag() {
		return
	}

	if a.skip > 0 {
		n := int64(len(a.buf))
		if n > a.skip {
			n = a.skip
		}
		a.buf = a.buf[n:]
		a.skip -= n
		if a.skip > 0 {
			return
		}
	}

	a.scan()
}

// Total returns the duration accumulated so far.
func (a *Accumulator) Total() time.Duration {
	return a.total
}

// checkLeadingTag inspects the very first bytes of the stream for an
// ID3v2 header and, if present, turns its synchsafe size field into a
// skip count. It returns false while more bytes are needed to decide.
func (a *Accumulator) checkLeadingTag() bool {
	if len(a.buf) < id3HeaderLen {
		n := len(a.buf)
		if n > len(id3Magic) {
			n = len(id3Magic)
		}
		if bytes.Equal(a.buf[:n], id3Magic[:n]) {
			// Could still turn out to be a tag header.
			return false
		}
		a.tagChecked = true
		return true
	}

	a.tagChecked = true
	if bytes.Equal(a.buf[:len(id3Magic)], id3Magic) {
		a.skip = id3HeaderLen + int64(decodeSynchsafe(a.buf[6:10]))
	}
	return true
}

// scan consumes whole frames from the window, advancing one byte past
// anything that does not decode as a frame header. A recognized frame
// whose declared length extends past the window is left for the next
// chunk.
func (a *Accumulator) scan() {
	for len(a.buf) >= HeaderLen {
		info, ok := ParseFrameHeader(a.buf)
		if !ok {
			a.buf = a.buf[1:]
			continue
		}
		if info.Size > len(a.buf) {
			return
		}
		a.total += info.Duration
		a.buf = a.buf[info.Size:]
	}
}

// decodeSynchsafe decodes a 4-byte synchsafe integer: 7 meaningful bits
// per byte, big-endian, top bits always zero.
func decodeSynchsafe(b []byte) uint32 {
	return uint32(b[0]&0x7F)<<21 | uint32(b[1]&0x7F)<<14 | uint32(b[2]&0x7F)<<7 | uint32(b[3]&0x7F)
}

// Measure reads the stream to the end and returns the total playback
// duration of all valid frames, zero if none were found.
func Measure(r io.Reader) (time.Duration, error) {
	var acc Accumulator
	buf := make([]byte, readChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			acc.Feed(buf[:n])
		}
		if err == io.EOF {
			return acc.Total(), nil
		}
		if err != nil {
			return 0, fmt.Errorf("read audio stream: %w", err)
		}
	}
}
