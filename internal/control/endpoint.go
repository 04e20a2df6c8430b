package control

import (
	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/danmuck/daqlink/internal/protocol/session"
	"github.com/rs/zerolog"
)

// endpoint is the encode-and-push half shared by both sides.
type endpoint struct {
	side      string
	transport session.Transport
	codec     message.Codec
	log       zerolog.Logger
	obs       Observer
}

func newEndpoint(side string, t session.Transport, codec message.Codec, logger zerolog.Logger, obs Observer) endpoint {
	if obs == nil {
		obs = nopObserver{}
	}
	return endpoint{
		side:      side,
		transport: t,
		codec:     codec,
		log:       logger.With().Str("component", "control").Str("side", side).Logger(),
		obs:       obs,
	}
}

// send encodes and queues m; it reports whether the message was queued.
func (e *endpoint) send(typ message.Type, m message.Message) bool {
	tagged, err := e.codec.Encode(typ, m)
	if err != nil {
		e.log.Error().Err(err).Str("type", TypeName(typ)).Msg("encode failed")
		return false
	}
	return e.transport.Push(tagged)
}

func (e *endpoint) expectEmpty(m message.Tagged) error {
	_, err := e.codec.Decode(m, message.KindEmpty)
	return e.decodeFailed(m, err)
}

// decodeFailed counts and logs a decode error, passing it on so the transport resets.
func (e *endpoint) decodeFailed(m message.Tagged, err error) error {
	if err == nil {
		return nil
	}
	e.obs.DecodeFailed(e.side)
	e.log.Error().Err(err).Str("type", TypeName(m.Type)).Msg("decode failed")
	return err
}

func (e *endpoint) unknown(m message.Tagged) {
	e.obs.UnknownMessage(e.side)
	e.log.Warn().Int32("type", int32(m.Type)).Int("bytes", len(m.Payload)).Msg("ignoring unknown message")
}
