package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/valyala/bytebufferpool"
	"github.com/vmihailenco/msgpack/v5"
)

// Stage frames on the side channel: an 8-byte big-endian payload length
// followed by the msgpack encoding of a StageReport. The pipe is
// byte-oriented; decoders must tolerate arbitrary chunking.
const frameHeaderLen = 8

// maxFramePayload bounds a single frame; a longer length prefix means
// the stream is corrupt.
const maxFramePayload = 1 << 20

var stagePool bytebufferpool.Pool

// StageRecorder is the child-side handle for reporting sub-step
// outcomes. Reports are strictly in order; the recorder keeps the time
// of the previous report as the baseline for the next duration.
type StageRecorder struct {
	w    io.Writer
	last time.Time
}

func NewStageRecorder(w io.Writer) *StageRecorder {
	return &StageRecorder{w: w, last: time.Now()}
}

// Report emits one stage frame and advances the duration baseline.
func (r *StageRecorder) Report(name string, status StageStatus) error {
	now := time.Now()
	frame := StageReport{
		Name:     name,
		Status:   status,
		Duration: now.Sub(r.last),
	}
	r.last = now

	payload, err := msgpack.Marshal(&frame)
	if err != nil {
		return err
	}

	// one write per frame
	bb := stagePool.Get()
	defer stagePool.Put(bb)
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(payload)))
	bb.Write(hdr[:])
	bb.Write(payload)
	_, err = r.w.Write(bb.B)
	return err
}

// stageDecoder incrementally decodes stage frames from an arbitrarily
// chunked byte stream. After a decode error the stream is considered
// corrupt and the decoder yields nothing more.
type stageDecoder struct {
	buf  *bytebufferpool.ByteBuffer
	off  int
	dead bool
}

func newStageDecoder() *stageDecoder {
	return &stageDecoder{buf: stagePool.Get()}
}

func (d *stageDecoder) feed(p []byte) {
	if !d.dead {
		d.buf.Write(p)
	}
}

// next returns the next complete frame, or nil if more bytes are
// needed. A non-nil error marks the stream corrupt.
func (d *stageDecoder) next() (*StageReport, error) {
	if d.dead {
		return nil, nil
	}
	avail := len(d.buf.B) - d.off
	if avail < frameHeaderLen {
		return nil, nil
	}
	length := binary.BigEndian.Uint64(d.buf.B[d.off:])
	if length > maxFramePayload {
		d.dead = true
		return nil, fmt.Errorf("stage frame of %d bytes exceeds the limit", length)
	}
	if uint64(avail-frameHeaderLen) < length {
		return nil, nil
	}
	payload := d.buf.B[d.off+frameHeaderLen : d.off+frameHeaderLen+int(length)]
	var frame StageReport
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		d.dead = true
		return nil, err
	}
	d.off += frameHeaderLen + int(length)
	return &frame, nil
}

func (d *stageDecoder) release() {
	if d.buf != nil {
		stagePool.Put(d.buf)
		d.buf = nil
		d.dead = true
	}
}
