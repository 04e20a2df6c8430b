package message

import "fmt"

// Type selects the concrete message kind carried by a Tagged payload.
type Type int32

// TypeNoOp marks transport heartbeats. It is never dispatched to handlers.
const TypeNoOp Type = -1

// Tagged is the unit exchanged after framing: a type tag plus opaque payload.
type Tagged struct {
	Type    Type
	Payload []byte
}

// IsNoOp reports whether t is a transport heartbeat.
func (t Tagged) IsNoOp() bool {
	return t.Type < 0
}

// NoOp returns a heartbeat message.
func NoOp() Tagged {
	return Tagged{Type: TypeNoOp}
}

// Kind names the payload layout of a message.
type Kind uint8

const (
	KindEmpty Kind = iota + 1
	KindString
	KindStringArray
	KindInt
	KindIntArray
	KindDataBuffer
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindStringArray:
		return "string_array"
	case KindInt:
		return "int"
	case KindIntArray:
		return "int_array"
	case KindDataBuffer:
		return "data_buffer"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is implemented by every payload variant.
type Message interface {
	Kind() Kind
}

// Empty is a signal-only message.
type Empty struct{}

// String carries UTF-8 text.
type String struct {
	Value string
}

// StringArray carries a list of UTF-8 strings.
type StringArray struct {
	Values []string
}

// Int carries one 32-bit integer.
type Int struct {
	Value int32
}

// IntArray carries a list of 32-bit integers.
type IntArray struct {
	Values []int32
}

// DataBuffer carries one block of samples and the global index of its first sample.
type DataBuffer struct {
	Index   int32
	Samples []float32
}

func (Empty) Kind() Kind       { return KindEmpty }
func (String) Kind() Kind      { return KindString }
func (StringArray) Kind() Kind { return KindStringArray }
func (Int) Kind() Kind         { return KindInt }
func (IntArray) Kind() Kind    { return KindIntArray }
func (DataBuffer) Kind() Kind  { return KindDataBuffer }
