package session

import (
	"bufio"
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/daqlink/internal/protocol/frame"
	"github.com/danmuck/daqlink/internal/protocol/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// connector obtains one connection per call; it is the only role-specific part of a link.
type connector interface {
	// prepare runs synchronously from Start.
	prepare() error
	connect(ctx context.Context) (net.Conn, error)
	// release frees passive resources when the worker exits.
	release()
	target() string
}

// link runs the connection loop shared by Initiator and Listener.
type link struct {
	name string
	role Role
	cfg  Config
	conn connector
	log  zerolog.Logger
	obs  Observer

	outbox *Outbox
	rng    *rand.Rand
	// connect failures are expected while a peer is down; keep the log readable
	failLog *rate.Limiter

	mu             sync.Mutex
	onConnected    func()
	onDisconnected func()
	onMessage      MessageHandler
	cancel         context.CancelFunc
	done           chan struct{}
	sessionID      string
	remoteAddr     string

	connected    atomic.Bool
	resets       atomic.Uint64
	lastSent     time.Time
	lastReceived time.Time
}

func newLink(name string, role Role, cfg Config, c connector, logger zerolog.Logger, obs Observer) *link {
	if obs == nil {
		obs = nopObserver{}
	}
	return &link{
		name:    name,
		role:    role,
		cfg:     cfg.WithDefaults(),
		conn:    c,
		log:     logger.With().Str("component", "transport").Str("side", name).Str("role", string(role)).Logger(),
		obs:     obs,
		outbox:  NewOutbox(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		failLog: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

func (l *link) OnConnected(fn func()) {
	l.mu.Lock()
	l.onConnected = fn
	l.mu.Unlock()
}

func (l *link) OnDisconnected(fn func()) {
	l.mu.Lock()
	l.onDisconnected = fn
	l.mu.Unlock()
}

func (l *link) OnMessage(fn MessageHandler) {
	l.mu.Lock()
	l.onMessage = fn
	l.mu.Unlock()
}

func (l *link) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		select {
		case <-l.done:
		default:
			return nil
		}
	}
	if err := l.conn.prepare(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, l.done)
	return nil
}

func (l *link) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	l.log.Info().Msg("stopping")
	cancel()
	<-done
}

func (l *link) Push(m message.Tagged) bool {
	if !l.connected.Load() {
		return false
	}
	l.outbox.Push(m)
	return true
}

func (l *link) Connected() bool {
	return l.connected.Load()
}

func (l *link) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	running := false
	if l.done != nil {
		select {
		case <-l.done:
		default:
			running = true
		}
	}
	return Status{
		Name:       l.name,
		Role:       l.role,
		Running:    running,
		Connected:  l.connected.Load(),
		SessionID:  l.sessionID,
		RemoteAddr: l.remoteAddr,
		Resets:     l.resets.Load(),
	}
}

func (l *link) handlers() (func(), func(), MessageHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.onConnected, l.onDisconnected, l.onMessage
}

func (l *link) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer l.conn.release()
	l.log.Info().Str("target", l.conn.target()).Msg("worker starting")

	attempt := 0
	for ctx.Err() == nil {
		nc, err := l.conn.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, errNoPeer) {
				attempt = 0
				continue
			}
			attempt++
			if l.failLog.Allow() {
				l.log.Info().Err(err).Int("attempt", attempt).Msg("connect failed, retrying")
			}
			if !sleepCtx(ctx, l.cfg.Backoff.Delay(attempt, l.rng)) {
				break
			}
			continue
		}
		attempt = 0
		l.serve(ctx, nc)
	}
	l.log.Info().Msg("stopped")
}

// serve owns one established connection until it fails or the link stops.
func (l *link) serve(ctx context.Context, nc net.Conn) {
	live := startLiveConn(nc, l.cfg)
	id := uuid.NewString()

	now := time.Now()
	l.lastSent, l.lastReceived = now, now
	l.outbox.Clear()
	l.mu.Lock()
	l.sessionID = id
	l.remoteAddr = nc.RemoteAddr().String()
	l.mu.Unlock()
	l.connected.Store(true)

	log := l.log.With().Str("session", id).Str("remote", nc.RemoteAddr().String()).Logger()
	log.Info().Msg("connected")
	l.obs.Connected(l.name)

	onConnected, onDisconnected, _ := l.handlers()
	if onConnected != nil {
		onConnected()
	}

	err := l.pump(ctx, live)

	l.connected.Store(false)
	live.close()
	l.outbox.Clear()
	l.resets.Add(1)
	l.mu.Lock()
	l.remoteAddr = ""
	l.mu.Unlock()

	reason := resetReason(err)
	l.obs.Reset(l.name, reason)
	switch reason {
	case ReasonClosed:
		log.Info().Msg("connection closed")
	case ReasonProtocol:
		log.Error().Err(err).Msg("resetting after protocol fault")
	default:
		log.Warn().Err(err).Str("reason", reason).Msg("resetting")
	}
	if onDisconnected != nil {
		onDisconnected()
	}
}

func (l *link) pump(ctx context.Context, live *liveConn) error {
	w := bufio.NewWriter(live.conn)
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := l.flush(live.conn, w); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			// best effort: let already queued replies reach the peer
			_ = l.flush(live.conn, w)
			return ErrStopped
		case <-l.outbox.Ready():
		case m := <-live.frames:
			l.lastReceived = time.Now()
			l.obs.FrameReceived(l.name, frame.LengthPrefixLen+frame.TypeLen+len(m.Payload))
			if m.IsNoOp() {
				continue
			}
			_, _, onMessage := l.handlers()
			if onMessage == nil {
				continue
			}
			if err := onMessage(m); err != nil {
				return &ProtocolError{Err: err}
			}
		case err := <-live.errs:
			return err
		case now := <-ticker.C:
			if now.Sub(l.lastReceived) > l.cfg.SessionDeadAfter {
				return ErrPeerTimeout
			}
			if now.Sub(l.lastSent) >= l.cfg.HeartbeatInterval {
				l.outbox.Push(message.NoOp())
				l.obs.HeartbeatSent(l.name)
			}
		}
	}
}

// flush writes every queued message as one frame each.
func (l *link) flush(nc net.Conn, w *bufio.Writer) error {
	items := l.outbox.Drain()
	if len(items) == 0 {
		return nil
	}
	if err := nc.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout)); err != nil {
		return err
	}
	for _, m := range items {
		if err := frame.WriteFrame(w, m, l.cfg.Limits); err != nil {
			if errors.Is(err, frame.ErrPayloadTooLarge) {
				l.log.Error().Int32("type", int32(m.Type)).Int("bytes", len(m.Payload)).Msg("dropping oversized message")
				continue
			}
			return err
		}
		l.obs.FrameSent(l.name, frame.LengthPrefixLen+frame.TypeLen+len(m.Payload))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	l.lastSent = time.Now()
	return nil
}

// liveConn reads frames from one connection on its own goroutine.
type liveConn struct {
	conn   net.Conn
	frames chan message.Tagged
	errs   chan error
	done   chan struct{}
	wg     sync.WaitGroup
}

func startLiveConn(nc net.Conn, cfg Config) *liveConn {
	c := &liveConn{
		conn:   nc,
		frames: make(chan message.Tagged),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop(cfg)
	return c
}

func (c *liveConn) readLoop(cfg Config) {
	defer c.wg.Done()
	r := bufio.NewReader(c.conn)
	for {
		m, err := c.readOne(r, cfg)
		if err != nil {
			c.errs <- err
			return
		}
		select {
		case c.frames <- m:
		case <-c.done:
			return
		}
	}
}

func (c *liveConn) readOne(r *bufio.Reader, cfg Config) (message.Tagged, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.SessionDeadAfter)); err != nil {
		return message.Tagged{}, err
	}
	n, err := frame.ReadLength(r, cfg.Limits)
	if err != nil {
		return message.Tagged{}, err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.FrameReadTimeout)); err != nil {
		return message.Tagged{}, err
	}
	return frame.ReadBody(r, n)
}

func (c *liveConn) close() {
	close(c.done)
	_ = c.conn.Close()
	c.wg.Wait()
}
