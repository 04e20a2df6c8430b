package message

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// StringArrayEncoding selects the StringArray payload layout.
type StringArrayEncoding int

const (
	// LengthPrefixed writes a u32 count, then a u32 length and the bytes of each element.
	LengthPrefixed StringArrayEncoding = iota
	// Separator joins elements with LegacySeparator. Kept for peers that speak the older layout.
	// It cannot carry an element containing the separator or a lone empty element.
	Separator
)

// LegacySeparator joins StringArray elements in Separator mode.
const LegacySeparator = "\U0001F601"

func (e StringArrayEncoding) String() string {
	switch e {
	case LengthPrefixed:
		return "length-prefixed"
	case Separator:
		return "separator"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseStringArrayEncoding maps a configuration value to an encoding.
func ParseStringArrayEncoding(raw string) (StringArrayEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "length-prefixed", "length_prefixed":
		return LengthPrefixed, nil
	case "separator", "legacy":
		return Separator, nil
	default:
		return LengthPrefixed, fmt.Errorf("%w: %q", ErrUnknownStringFormat, raw)
	}
}

// Codec converts between message variants and Tagged payloads.
// All multi-byte values are little-endian.
type Codec struct {
	StringArrays StringArrayEncoding
}

// Encode serializes m under type tag typ.
func (c Codec) Encode(typ Type, m Message) (Tagged, error) {
	var payload []byte
	switch v := m.(type) {
	case Empty:
		payload = []byte{}
	case String:
		payload = []byte(v.Value)
	case StringArray:
		p, err := c.encodeStrings(v.Values)
		if err != nil {
			return Tagged{}, err
		}
		payload = p
	case Int:
		payload = binary.LittleEndian.AppendUint32(make([]byte, 0, 4), uint32(v.Value))
	case IntArray:
		payload = make([]byte, 0, 4*len(v.Values))
		for _, n := range v.Values {
			payload = binary.LittleEndian.AppendUint32(payload, uint32(n))
		}
	case DataBuffer:
		payload = make([]byte, 0, 4+4*len(v.Samples))
		payload = binary.LittleEndian.AppendUint32(payload, uint32(v.Index))
		for _, s := range v.Samples {
			payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(s))
		}
	default:
		return Tagged{}, fmt.Errorf("%w: %T", ErrUnknownKind, m)
	}
	return Tagged{Type: typ, Payload: payload}, nil
}

// Decode interprets t as kind. The returned value is one of the variant structs.
func (c Codec) Decode(t Tagged, kind Kind) (Message, error) {
	switch kind {
	case KindEmpty:
		if len(t.Payload) != 0 {
			return nil, malformed(t, kind, "expected 0 bytes, got %d", len(t.Payload))
		}
		return Empty{}, nil
	case KindString:
		s, err := c.DecodeString(t)
		return String{Value: s}, err
	case KindStringArray:
		values, err := c.DecodeStringArray(t)
		return StringArray{Values: values}, err
	case KindInt:
		n, err := c.DecodeInt(t)
		return Int{Value: n}, err
	case KindIntArray:
		values, err := c.DecodeIntArray(t)
		return IntArray{Values: values}, err
	case KindDataBuffer:
		return c.DecodeDataBuffer(t)
	default:
		return nil, &DecodeError{Kind: kind, Type: t.Type, Err: ErrUnknownKind}
	}
}

func (c Codec) DecodeString(t Tagged) (string, error) {
	if !utf8.Valid(t.Payload) {
		return "", malformed(t, KindString, "invalid utf-8")
	}
	return string(t.Payload), nil
}

func (c Codec) DecodeInt(t Tagged) (int32, error) {
	if len(t.Payload) != 4 {
		return 0, malformed(t, KindInt, "expected 4 bytes, got %d", len(t.Payload))
	}
	return int32(binary.LittleEndian.Uint32(t.Payload)), nil
}

func (c Codec) DecodeIntArray(t Tagged) ([]int32, error) {
	if len(t.Payload)%4 != 0 {
		return nil, malformed(t, KindIntArray, "length %d not a multiple of 4", len(t.Payload))
	}
	out := make([]int32, len(t.Payload)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(t.Payload[i*4:]))
	}
	return out, nil
}

func (c Codec) DecodeDataBuffer(t Tagged) (DataBuffer, error) {
	if len(t.Payload) < 4 {
		return DataBuffer{}, malformed(t, KindDataBuffer, "missing index, got %d bytes", len(t.Payload))
	}
	if (len(t.Payload)-4)%4 != 0 {
		return DataBuffer{}, malformed(t, KindDataBuffer, "sample bytes %d not a multiple of 4", len(t.Payload)-4)
	}
	samples := make([]float32, (len(t.Payload)-4)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Payload[4+i*4:]))
	}
	return DataBuffer{
		Index:   int32(binary.LittleEndian.Uint32(t.Payload[0:4])),
		Samples: samples,
	}, nil
}

func (c Codec) DecodeStringArray(t Tagged) ([]string, error) {
	switch c.StringArrays {
	case Separator:
		if !utf8.Valid(t.Payload) {
			return nil, malformed(t, KindStringArray, "invalid utf-8")
		}
		if len(t.Payload) == 0 {
			return []string{}, nil
		}
		return strings.Split(string(t.Payload), LegacySeparator), nil
	case LengthPrefixed:
		return decodeLengthPrefixed(t)
	default:
		return nil, &DecodeError{Kind: KindStringArray, Type: t.Type, Err: ErrUnknownStringFormat}
	}
}

func (c Codec) encodeStrings(values []string) ([]byte, error) {
	switch c.StringArrays {
	case Separator:
		if len(values) == 1 && values[0] == "" {
			return nil, ErrLoneEmptyElement
		}
		for i, v := range values {
			if strings.Contains(v, LegacySeparator) {
				return nil, fmt.Errorf("%w: element %d", ErrSeparatorInElement, i)
			}
		}
		return []byte(strings.Join(values, LegacySeparator)), nil
	case LengthPrefixed:
		size := 4
		for _, v := range values {
			size += 4 + len(v)
		}
		out := make([]byte, 0, size)
		out = binary.LittleEndian.AppendUint32(out, uint32(len(values)))
		for _, v := range values {
			out = binary.LittleEndian.AppendUint32(out, uint32(len(v)))
			out = append(out, v...)
		}
		return out, nil
	default:
		return nil, ErrUnknownStringFormat
	}
}

func decodeLengthPrefixed(t Tagged) ([]string, error) {
	p := t.Payload
	if len(p) < 4 {
		return nil, malformed(t, KindStringArray, "missing count, got %d bytes", len(p))
	}
	count := binary.LittleEndian.Uint32(p[0:4])
	p = p[4:]
	if uint64(count)*4 > uint64(len(p)) {
		return nil, malformed(t, KindStringArray, "count %d exceeds payload", count)
	}
	out := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(p) < 4 {
			return nil, malformed(t, KindStringArray, "element %d: short length", i)
		}
		l := binary.LittleEndian.Uint32(p[0:4])
		p = p[4:]
		if uint64(l) > uint64(len(p)) {
			return nil, malformed(t, KindStringArray, "element %d: length %d exceeds payload", i, l)
		}
		if !utf8.Valid(p[:l]) {
			return nil, malformed(t, KindStringArray, "element %d: invalid utf-8", i)
		}
		out = append(out, string(p[:l]))
		p = p[l:]
	}
	if len(p) != 0 {
		return nil, malformed(t, KindStringArray, "%d trailing bytes", len(p))
	}
	return out, nil
}

// Default is the codec used by package-level helpers.
var Default = Codec{}

// Encode serializes m with the default codec.
func Encode(typ Type, m Message) (Tagged, error) {
	return Default.Encode(typ, m)
}

// Decode interprets t as kind with the default codec.
func Decode(t Tagged, kind Kind) (Message, error) {
	return Default.Decode(t, kind)
}
