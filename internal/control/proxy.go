package control

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/danmuck/daqlink/internal/provider"
	"github.com/rs/zerolog"
)

// Proxy serves a local provider to the consumer on the other end of a transport.
// It subscribes to the provider and turns stream callbacks into Start/Stop acks
// and DataPacket messages.
type Proxy struct {
	endpoint
	prov provider.Provider

	// set once a stream's sample index no longer fits the DataPacket field
	overflowed atomic.Bool
}

var _ provider.Consumer = (*Proxy)(nil)

// NewProxy wires p to t. The provider should be initialized before Start.
func NewProxy(t session.Transport, p provider.Provider, codec message.Codec, logger zerolog.Logger, obs Observer) *Proxy {
	x := &Proxy{
		endpoint: newEndpoint("producer", t, codec, logger, obs),
		prov:     p,
	}
	t.OnConnected(x.pushConfig)
	t.OnDisconnected(x.onDisconnected)
	t.OnMessage(x.handle)
	p.Subscribe(x)
	return x
}

func (x *Proxy) Start() error {
	return x.transport.Start()
}

// Stop ends acquisition, then the transport.
func (x *Proxy) Stop() {
	x.prov.Stop()
	x.transport.Stop()
}

func (x *Proxy) Provider() provider.Provider {
	return x.prov
}

func (x *Proxy) Status() session.Status {
	return x.transport.Status()
}

// pushConfig synchronizes a freshly connected consumer without requests.
func (x *Proxy) pushConfig() {
	state := x.prov.State()
	if state == provider.Uninitialized {
		x.log.Warn().Msg("provider not initialized, skipping configuration push")
		return
	}
	s := x.prov.Snapshot()
	x.send(MsgMinMaxValueInfo, message.IntArray{Values: minMaxValues(s.MinValue, s.MaxValue)})
	x.send(MsgChannelInfo, message.StringArray{Values: s.Channels})
	x.send(MsgBufferSizeInfo, message.IntArray{Values: toInts(s.BufferSizes)})
	x.send(MsgSamplingRateInfo, message.IntArray{Values: toInts(s.SamplingRates)})
	x.send(MsgChannelSet, message.String{Value: s.Channel})
	x.send(MsgBufferSizeSet, message.Int{Value: int32(s.BufferSize)})
	x.send(MsgSamplingRateSet, message.Int{Value: int32(s.SamplingRate)})
	if s.State == provider.Working {
		x.send(MsgStart, message.Empty{})
	}
	x.log.Info().
		Str("channel", s.Channel).
		Int("buffer_size", s.BufferSize).
		Int("sampling_rate", s.SamplingRate).
		Msg("configuration pushed")
}

// onDisconnected stops acquisition; nobody is left to receive it.
func (x *Proxy) onDisconnected() {
	if x.prov.State() == provider.Working {
		x.log.Info().Msg("consumer gone, stopping acquisition")
		x.prov.Stop()
	}
}

func (x *Proxy) handle(m message.Tagged) error {
	kind := TypeName(m.Type)
	switch m.Type {
	case MsgStart:
		if err := x.expectEmpty(m); err != nil {
			return err
		}
		if err := x.prov.Start(); err != nil {
			x.log.Warn().Err(err).Str("state", x.prov.State().String()).Msg("start refused")
			x.send(MsgStop, message.Empty{})
		}
	case MsgStop:
		if err := x.expectEmpty(m); err != nil {
			return err
		}
		if x.prov.State() != provider.Working {
			x.send(MsgStop, message.Empty{})
			break
		}
		x.prov.Stop()
	case MsgChannelInfo:
		if err := x.expectEmpty(m); err != nil {
			return err
		}
		x.send(MsgChannelInfo, message.StringArray{Values: x.prov.AvailableChannels()})
	case MsgBufferSizeInfo:
		if err := x.expectEmpty(m); err != nil {
			return err
		}
		x.send(MsgBufferSizeInfo, message.IntArray{Values: toInts(x.prov.AvailableBufferSizes())})
	case MsgSamplingRateInfo:
		if err := x.expectEmpty(m); err != nil {
			return err
		}
		x.send(MsgSamplingRateInfo, message.IntArray{Values: toInts(x.prov.AvailableSamplingRates())})
	case MsgMinMaxValueInfo:
		if err := x.expectEmpty(m); err != nil {
			return err
		}
		x.send(MsgMinMaxValueInfo, message.IntArray{Values: minMaxValues(x.prov.MinValue(), x.prov.MaxValue())})
	case MsgChannelSet:
		v, err := x.codec.DecodeString(m)
		if err != nil {
			return x.decodeFailed(m, err)
		}
		x.rejected("channel", x.prov.SetSelectedChannel(v))
		x.send(MsgChannelSet, message.String{Value: x.prov.SelectedChannel()})
	case MsgBufferSizeSet:
		v, err := x.codec.DecodeInt(m)
		if err != nil {
			return x.decodeFailed(m, err)
		}
		x.rejected("buffer_size", x.prov.SetSelectedBufferSize(int(v)))
		x.send(MsgBufferSizeSet, message.Int{Value: int32(x.prov.SelectedBufferSize())})
	case MsgSamplingRateSet:
		v, err := x.codec.DecodeInt(m)
		if err != nil {
			return x.decodeFailed(m, err)
		}
		x.rejected("sampling_rate", x.prov.SetSelectedSamplingRate(int(v)))
		x.send(MsgSamplingRateSet, message.Int{Value: int32(x.prov.SelectedSamplingRate())})
	case MsgDataPacket:
		x.log.Warn().Msg("ignoring data packet sent toward the producer")
		return nil
	default:
		x.unknown(m)
		return nil
	}
	x.obs.MessageHandled(x.side, kind)
	return nil
}

func (x *Proxy) rejected(field string, err error) {
	if err == nil {
		return
	}
	x.obs.SettingRejected(x.side, field)
	x.log.Warn().Err(err).Str("field", field).Msg("setting rejected, echoing current value")
}

// Provider callbacks. They run on the pacer goroutine or under a provider
// call made from handle; both only queue messages.

func (x *Proxy) OnSettingsChange(s provider.Snapshot) {
	x.log.Debug().Str("state", s.State.String()).Msg("provider settings changed")
}

// ReceiveData forwards one buffer. A stream whose index outgrows the int32
// wire field is ended instead of wrapping.
func (x *Proxy) ReceiveData(index uint64, samples []float32) {
	if index > math.MaxInt32 {
		if x.overflowed.CompareAndSwap(false, true) {
			x.log.Error().Uint64("index", index).Msg("sample index exceeds the wire field, ending stream")
			// Stop joins the pacer that is calling us
			go x.prov.Stop()
		}
		return
	}
	x.send(MsgDataPacket, message.DataBuffer{Index: int32(index), Samples: samples})
}

func (x *Proxy) DataStreamStarted(time.Time) {
	x.overflowed.Store(false)
	x.send(MsgStart, message.Empty{})
}

func (x *Proxy) DataStreamEnded() {
	x.send(MsgStop, message.Empty{})
}

func (x *Proxy) ResetIndex() {}
