package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"testing/iotest"

	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/testutil/testlog"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	testlog.Start(t)
	in, err := message.Encode(3, message.DataBuffer{Index: 512, Samples: []float32{0.25, -0.5}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, in, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if got := binary.LittleEndian.Uint32(buf.Bytes()[0:4]); got != uint32(4+len(in.Payload)) {
		t.Fatalf("total length got=%d want=%d", got, 4+len(in.Payload))
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if out.Type != in.Type || !bytes.Equal(out.Payload, in.Payload) {
		t.Fatalf("frame mismatch: got=%+v want=%+v", out, in)
	}
}

func TestReadFrameOneByteAtATime(t *testing.T) {
	testlog.Start(t)
	var stream bytes.Buffer
	msgs := []message.Tagged{
		{Type: 1, Payload: []byte{}},
		{Type: 5, Payload: []byte("Dev1/ai0")},
		message.NoOp(),
		{Type: 7, Payload: []byte{0, 1, 0, 0}},
	}
	for _, m := range msgs {
		if err := WriteFrame(&stream, m, DefaultLimits()); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	whole := bytes.NewReader(stream.Bytes())
	split := iotest.OneByteReader(bytes.NewReader(stream.Bytes()))
	for i := range msgs {
		a, err := ReadFrame(whole, DefaultLimits())
		if err != nil {
			t.Fatalf("whole read %d: %v", i, err)
		}
		b, err := ReadFrame(split, DefaultLimits())
		if err != nil {
			t.Fatalf("split read %d: %v", i, err)
		}
		if a.Type != b.Type || !bytes.Equal(a.Payload, b.Payload) {
			t.Fatalf("frame %d differs: whole=%+v split=%+v", i, a, b)
		}
	}
	if _, err := ReadFrame(split, DefaultLimits()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected clean EOF after last frame, got %v", err)
	}
}

func TestReadFrameRejectsNonPositiveLength(t *testing.T) {
	testlog.Start(t)
	for _, n := range []int32{0, -5, 3} {
		buf := binary.LittleEndian.AppendUint32(nil, uint32(n))
		_, err := ReadFrame(bytes.NewReader(buf), DefaultLimits())
		if !errors.Is(err, ErrInvalidLength) {
			t.Fatalf("length %d: expected ErrInvalidLength, got %v", n, err)
		}
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	buf := binary.LittleEndian.AppendUint32(nil, 1024)
	_, err := ReadFrame(bytes.NewReader(buf), Limits{MaxFrameBytes: 64})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	full := Encode(message.Tagged{Type: 2, Payload: []byte{1, 2, 3, 4}})
	_, err := ReadFrame(bytes.NewReader(full[:len(full)-2]), DefaultLimits())
	if !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
	_, err = ReadFrame(bytes.NewReader(full[:2]), DefaultLimits())
	if !errors.Is(err, ErrShortPrefix) {
		t.Fatalf("expected ErrShortPrefix, got %v", err)
	}
}

func TestWriteFrameRespectsLimits(t *testing.T) {
	err := WriteFrame(io.Discard, message.Tagged{Type: 3, Payload: make([]byte, 128)}, Limits{MaxFrameBytes: 64})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
