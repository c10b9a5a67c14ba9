package protocol

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// DecoderStats are diagnostic counters. Unparseable text is never reported
// per occurrence.
type DecoderStats struct {
	FastPath      int
	SlowPath      int
	Frames        int
	BufferedBytes int
}

// Decoder turns a stream of text chunks into complete JSON object frames.
// Chunks may split an object or carry several objects. A Decoder is not safe
// for concurrent use.
//
// Text that never becomes part of a parseable object stays in the buffer for
// as long as the Decoder lives.
type Decoder struct {
	buf   strings.Builder
	stats DecoderStats
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed pushes one chunk and returns the frames it completed, in the order in
// which their closing braces appeared.
//
// A chunk that is exactly one object is emitted without touching the buffer.
// While a partial object is buffered the chunk may instead be a nested value
// of it, so it only skips the buffer when it carries a top-level "event"
// member, which nested values never have.
func (d *Decoder) Feed(chunk string) []string {
	if frame, ok := singleObject(chunk); ok && (!d.midFrame() || isEventFrame(frame)) {
		d.stats.FastPath++
		d.stats.Frames++
		return []string{frame}
	}

	d.stats.SlowPath++
	d.buf.WriteString(chunk)

	pending := d.buf.String()
	frames, rest := scanFrames(pending)
	if len(rest) != len(pending) {
		d.buf.Reset()
		d.buf.WriteString(rest)
	}
	d.stats.Frames += len(frames)
	d.stats.BufferedBytes = d.buf.Len()

	return frames
}

// Pending returns the text waiting for more input.
func (d *Decoder) Pending() string {
	return d.buf.String()
}

func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

func (d *Decoder) midFrame() bool {
	return strings.IndexByte(d.buf.String(), '{') >= 0
}

func singleObject(chunk string) (string, bool) {
	trimmed := strings.TrimSpace(chunk)
	if !strings.HasPrefix(trimmed, "{") || !json.Valid([]byte(trimmed)) {
		return "", false
	}
	return trimmed, true
}

func isEventFrame(frame string) bool {
	var members map[string]json.RawMessage
	if err := json.Unmarshal([]byte(frame), &members); err != nil {
		return false
	}
	_, ok := members["event"]
	return ok
}

// scanFrames extracts every complete object from pending and returns the
// unconsumed remainder. Consuming a frame drops everything before it too.
func scanFrames(pending string) ([]string, string) {
	var frames []string

	from := 0
	for {
		idx := strings.IndexByte(pending[from:], '{')
		if idx < 0 {
			return frames, pending
		}
		start := from + idx

		end, err := objectEnd(pending[start:])
		switch {
		case err == nil:
			frames = append(frames, pending[start:start+end])
			pending = pending[start+end:]
			from = 0
		case errors.Is(err, errIncomplete):
			return frames, pending
		default:
			// This brace can never open a frame; a later one might.
			from = start + 1
		}
	}
}

var errIncomplete = errors.New("incomplete object")

// objectEnd returns the length of the JSON object at the start of s.
func objectEnd(s string) (int, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return 0, errIncomplete
		}
		return 0, err
	}

	return int(dec.InputOffset()), nil
}
