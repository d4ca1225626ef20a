package core

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStageCodec_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := NewStageRecorder(&buf)

	want := []struct {
		name   string
		status StageStatus
	}{
		{"s1", StageSuccess()},
		{"s2", StageFailure(42)},
		{"s3", StageSkipped("later")},
	}
	for _, w := range want {
		require.NoError(t, rec.Report(w.name, w.status))
	}

	// feed the stream in awkward chunks
	for _, chunk := range []int{1, 2, 3, 5, 7, 11} {
		dec := newStageDecoder()
		data := buf.Bytes()

		var got []*StageReport
		for len(data) > 0 {
			n := min(chunk, len(data))
			dec.feed(data[:n])
			data = data[n:]
			for {
				frame, err := dec.next()
				require.NoError(t, err)
				if frame == nil {
					break
				}
				got = append(got, frame)
			}
		}

		require.Len(t, got, len(want), "chunk size %d", chunk)
		for i, w := range want {
			require.Equal(t, w.name, got[i].Name)
			require.Equal(t, w.status, got[i].Status)
			require.GreaterOrEqual(t, got[i].Duration, time.Duration(0))
		}

		// and then nothing more
		frame, err := dec.next()
		require.NoError(t, err)
		require.Nil(t, frame)
		dec.release()
	}
}

func TestStageDecoder_PartialHeader(t *testing.T) {
	dec := newStageDecoder()
	defer dec.release()

	dec.feed([]byte{0, 0, 0})
	frame, err := dec.next()
	require.NoError(t, err)
	require.Nil(t, frame)
}

func TestStageDecoder_CorruptLength(t *testing.T) {
	dec := newStageDecoder()
	defer dec.release()

	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[:], 1<<40)
	dec.feed(hdr[:])

	_, err := dec.next()
	require.Error(t, err)

	// the stream is dead: further input yields nothing
	dec.feed(make([]byte, 64))
	frame, err := dec.next()
	require.NoError(t, err)
	require.Nil(t, frame)
}

func TestStageDecoder_CorruptPayload(t *testing.T) {
	dec := newStageDecoder()
	defer dec.release()

	payload := []byte{0xc1, 0xc1, 0xc1, 0xc1} // invalid msgpack
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(len(payload)))
	dec.feed(hdr[:])
	dec.feed(payload)

	_, err := dec.next()
	require.Error(t, err)
}
