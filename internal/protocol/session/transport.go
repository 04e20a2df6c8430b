package session

import (
	"errors"
	"net"

	"github.com/danmuck/daqlink/internal/protocol/message"
)

var (
	ErrAddressRequired = errors.New("session: address required")
	ErrPeerTimeout     = errors.New("session: no message received from peer")
	ErrStopped         = errors.New("session: transport stopped")
	errNoPeer          = errors.New("session: no peer within accept window")
)

// Role says how a transport obtains its connection.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleListener  Role = "listener"
)

// MessageHandler consumes one received message on the transport worker.
// A non-nil error is treated as a protocol fault and resets the connection.
type MessageHandler func(message.Tagged) error

// Transport owns one logical connection and keeps it alive.
type Transport interface {
	// Start spawns the worker if it is not already running.
	Start() error
	// Stop closes the connection and blocks until the worker has exited.
	Stop()
	// Push queues m for sending. It reports false when m was dropped because
	// no connection is established.
	Push(m message.Tagged) bool
	Connected() bool
	Status() Status

	OnConnected(func())
	OnDisconnected(func())
	OnMessage(MessageHandler)
}

// Status is a point-in-time view of a transport.
type Status struct {
	Name       string `json:"name"`
	Role       Role   `json:"role"`
	Running    bool   `json:"running"`
	Connected  bool   `json:"connected"`
	SessionID  string `json:"session_id,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Resets     uint64 `json:"resets"`
}

// Observer receives transport events for metrics. Implementations must not block.
type Observer interface {
	Connected(side string)
	Reset(side, reason string)
	FrameSent(side string, bytes int)
	FrameReceived(side string, bytes int)
	HeartbeatSent(side string)
}

type nopObserver struct{}

func (nopObserver) Connected(string)          {}
func (nopObserver) Reset(string, string)      {}
func (nopObserver) FrameSent(string, int)     {}
func (nopObserver) FrameReceived(string, int) {}
func (nopObserver) HeartbeatSent(string)      {}

// ProtocolError wraps a handler failure so the worker resets the connection.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string { return "session: protocol fault: " + e.Err.Error() }
func (e *ProtocolError) Unwrap() error { return e.Err }

// Reset reasons reported to logs and observers.
const (
	ReasonClosed   = "closed"
	ReasonTimeout  = "timeout"
	ReasonProtocol = "protocol"
	ReasonIO       = "io"
)

func resetReason(err error) string {
	var pe *ProtocolError
	var ne net.Error
	switch {
	case err == nil, errors.Is(err, ErrStopped):
		return ReasonClosed
	case errors.As(err, &pe):
		return ReasonProtocol
	case errors.Is(err, ErrPeerTimeout):
		return ReasonTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return ReasonTimeout
	default:
		return ReasonIO
	}
}
