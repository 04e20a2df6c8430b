package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/daqlink/internal/protocol/message"
)

const (
	// LengthPrefixLen is the size of the little-endian total length field.
	LengthPrefixLen = 4
	// TypeLen is the size of the message type field that opens every body.
	TypeLen = 4
)

var (
	ErrShortPrefix     = errors.New("frame: short length prefix")
	ErrInvalidLength   = errors.New("frame: invalid length")
	ErrFrameTooLarge   = errors.New("frame: frame too large")
	ErrTruncatedFrame  = errors.New("frame: truncated body")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 8 * 1024 * 1024,
	}
}

// ReadLength reads the length prefix and validates it against limits.
// The returned value counts the type field plus payload.
func ReadLength(r io.Reader, limits Limits) (int, error) {
	var prefix [LengthPrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, ErrShortPrefix
		}
		return 0, err
	}
	n := int32(binary.LittleEndian.Uint32(prefix[:]))
	if n < TypeLen {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLength, n)
	}
	if limits.MaxFrameBytes > 0 && uint32(n) > limits.MaxFrameBytes {
		return 0, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limits.MaxFrameBytes)
	}
	return int(n), nil
}

// ReadBody reads exactly length bytes and splits them into type and payload.
func ReadBody(r io.Reader, length int) (message.Tagged, error) {
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return message.Tagged{}, ErrTruncatedFrame
		}
		return message.Tagged{}, err
	}
	return message.Tagged{
		Type:    message.Type(int32(binary.LittleEndian.Uint32(body[0:TypeLen]))),
		Payload: body[TypeLen:],
	}, nil
}

// ReadFrame reads one complete frame.
func ReadFrame(r io.Reader, limits Limits) (message.Tagged, error) {
	n, err := ReadLength(r, limits)
	if err != nil {
		return message.Tagged{}, err
	}
	return ReadBody(r, n)
}

// WriteFrame writes one frame: int32 total length, int32 type, payload.
func WriteFrame(w io.Writer, m message.Tagged, limits Limits) error {
	total := uint64(TypeLen) + uint64(len(m.Payload))
	if total > uint64(^uint32(0)>>1) {
		return ErrPayloadTooLarge
	}
	if limits.MaxFrameBytes > 0 && total > uint64(limits.MaxFrameBytes) {
		return ErrPayloadTooLarge
	}
	buf := Encode(m)
	_, err := w.Write(buf)
	return err
}

// Encode returns the wire bytes of one frame.
func Encode(m message.Tagged) []byte {
	buf := make([]byte, 0, LengthPrefixLen+TypeLen+len(m.Payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(TypeLen+len(m.Payload)))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.Type))
	return append(buf, m.Payload...)
}
