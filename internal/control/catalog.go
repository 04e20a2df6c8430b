package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/danmuck/daqlink/internal/protocol/message"
)

// Message type tags. Info and Set tags are requests toward the producer and
// answers toward the consumer.
const (
	MsgStart            message.Type = 1
	MsgStop             message.Type = 2
	MsgDataPacket       message.Type = 3
	MsgChannelInfo      message.Type = 4
	MsgChannelSet       message.Type = 5
	MsgBufferSizeInfo   message.Type = 6
	MsgBufferSizeSet    message.Type = 7
	MsgSamplingRateInfo message.Type = 8
	MsgSamplingRateSet  message.Type = 9
	MsgMinMaxValueInfo  message.Type = 10
)

var names = map[message.Type]string{
	MsgStart:            "start",
	MsgStop:             "stop",
	MsgDataPacket:       "data_packet",
	MsgChannelInfo:      "channel_info",
	MsgChannelSet:       "channel_set",
	MsgBufferSizeInfo:   "buffer_size_info",
	MsgBufferSizeSet:    "buffer_size_set",
	MsgSamplingRateInfo: "sampling_rate_info",
	MsgSamplingRateSet:  "sampling_rate_set",
	MsgMinMaxValueInfo:  "min_max_value_info",
}

// TypeName names a catalog tag for logs.
func TypeName(t message.Type) string {
	if t == message.TypeNoOp {
		return "noop"
	}
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("unknown(%d)", int32(t))
}

// Known reports whether t is in the catalog.
func Known(t message.Type) bool {
	_, ok := names[t]
	return ok
}

var ErrMinMaxShape = errors.New("control: min/max value info must carry two values")

// Observer receives protocol events for metrics. Implementations must not block.
type Observer interface {
	MessageHandled(side, kind string)
	UnknownMessage(side string)
	DecodeFailed(side string)
	SettingRejected(side, field string)
}

type nopObserver struct{}

func (nopObserver) MessageHandled(string, string)  {}
func (nopObserver) UnknownMessage(string)          {}
func (nopObserver) DecodeFailed(string)            {}
func (nopObserver) SettingRejected(string, string) {}

func toInts(values []int) []int32 {
	out := make([]int32, len(values))
	for i, v := range values {
		out[i] = int32(v)
	}
	return out
}

func fromInts(values []int32) []int {
	out := make([]int, len(values))
	for i, v := range values {
		out[i] = int(v)
	}
	return out
}

// minMaxValues widens the float range to whole numbers for the IntArray wire form.
func minMaxValues(lo, hi float32) []int32 {
	return []int32{int32(math.Floor(float64(lo))), int32(math.Ceil(float64(hi)))}
}
