package session

import (
	"context"
	"net"
	"strings"

	"github.com/rs/zerolog"
)

// Initiator is a Transport that dials its peer and redials after every reset.
type Initiator struct {
	*link
}

var _ Transport = (*Initiator)(nil)

// NewInitiator builds a dialing transport for address (host:port).
func NewInitiator(name, address string, cfg Config, logger zerolog.Logger, obs Observer) (*Initiator, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrAddressRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &dialConnector{address: address, dialer: net.Dialer{Timeout: cfg.ConnectTimeout}}
	return &Initiator{link: newLink(name, RoleInitiator, cfg, d, logger, obs)}, nil
}

type dialConnector struct {
	address string
	dialer  net.Dialer
}

func (d *dialConnector) prepare() error { return nil }

func (d *dialConnector) connect(ctx context.Context) (net.Conn, error) {
	return d.dialer.DialContext(ctx, "tcp", d.address)
}

func (d *dialConnector) release() {}

func (d *dialConnector) target() string { return d.address }
