package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Listener is a Transport that owns a passive socket and serves one peer at a time.
type Listener struct {
	*link
	acceptor *acceptConnector
}

var _ Transport = (*Listener)(nil)

// NewListener builds an accepting transport bound to address (host:port) on Start.
func NewListener(name, address string, cfg Config, logger zerolog.Logger, obs Observer) (*Listener, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &acceptConnector{address: address, window: cfg.AcceptWindow}
	return &Listener{
		link:     newLink(name, RoleListener, cfg, a, logger, obs),
		acceptor: a,
	}, nil
}

// Addr returns the bound address, or nil before Start.
func (l *Listener) Addr() net.Addr {
	return l.acceptor.addr()
}

type acceptConnector struct {
	address string
	window  time.Duration

	mu sync.Mutex
	ln *net.TCPListener
}

func (a *acceptConnector) prepare() error {
	_, err := a.listener()
	return err
}

func (a *acceptConnector) listener() (*net.TCPListener, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln != nil {
		return a.ln, nil
	}
	ln, err := net.Listen("tcp", a.address)
	if err != nil {
		return nil, err
	}
	a.ln = ln.(*net.TCPListener)
	return a.ln, nil
}

func (a *acceptConnector) connect(ctx context.Context) (net.Conn, error) {
	ln, err := a.listener()
	if err != nil {
		return nil, err
	}
	if err := ln.SetDeadline(time.Now().Add(a.window)); err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = ln.SetDeadline(time.Now())
	})
	defer stop()

	conn, err := ln.Accept()
	if err == nil {
		return conn, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return nil, errNoPeer
	}
	// the passive socket is unusable; rebind on the next cycle
	a.release()
	return nil, err
}

func (a *acceptConnector) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln != nil {
		_ = a.ln.Close()
		a.ln = nil
	}
}

func (a *acceptConnector) addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

func (a *acceptConnector) target() string { return a.address }
