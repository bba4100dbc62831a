// Package daemon implements the framed command channel to the privileged
// storage daemon, a typed command set on top of it and the daemon side of
// the protocol.
package daemon

import (
	"context"
	stdErrors "errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// DefaultTimeout is the hard per-call deadline.
const DefaultTimeout = 100 * time.Second

var (
	// ErrTimeout is returned when no reply arrives before the call deadline.
	ErrTimeout = errors.New("daemon call timed out")
	// ErrDisconnected is returned when the connection was lost before a reply arrived.
	ErrDisconnected = errors.New("daemon connection lost")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("connector closed")
)

// Dialer opens a new connection to the daemon.
type Dialer func(ctx context.Context) (net.Conn, error)

// UnixDialer dials the daemon's unix socket.
func UnixDialer(path string) Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}

type result struct {
	reply Reply
	err   error
}

// Option configures a Connector.
type Option func(*Connector)

// WithTimeout overrides the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *Connector) {
		c.timeout = d
	}
}

// WithReconnectLimit paces reconnect attempts.
func WithReconnectLimit(every time.Duration, burst int) Option {
	return func(c *Connector) {
		c.limiter = rate.NewLimiter(rate.Every(every), burst)
	}
}

// WithObserver reports call outcomes, used for metrics.
func WithObserver(o CallObserver) Option {
	return func(c *Connector) {
		c.observer = o
	}
}

// CallObserver is notified about transport events.
type CallObserver interface {
	ObserveCall(verb string, d time.Duration, err error)
	ObserveReconnect(err error)
}

// Connector is a persistent, multiplexed connection to the storage daemon.
// Concurrent callers share one connection; replies are matched to callers by
// transaction id.
type Connector struct {
	dial     Dialer
	timeout  time.Duration
	limiter  *rate.Limiter
	observer CallObserver

	// connMu guards conn and serializes frame writes.
	connMu sync.Mutex
	conn   net.Conn

	idMu   sync.Mutex
	nextID uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan result

	closed atomic.Bool
}

// NewConnector creates a connector. The connection is established lazily.
func NewConnector(dial Dialer, opts ...Option) *Connector {
	c := &Connector{
		dial:    dial,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
		pending: make(map[uint32]chan result),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute sends cmd and waits for its reply. A failure to connect or to write
// the command is retried once on a fresh connection; a reply lost after the
// command was written is not retried, the outcome is unknown and reported as
// a failure. On error the reply carries StatusFailed.
func (c *Connector) Execute(ctx context.Context, cmd string) (Reply, error) {
	if err := validateCommand(cmd); err != nil {
		return failedReply, err
	}

	start := time.Now()
	reply, err := c.transact(ctx, cmd)
	if errors.Is(err, errNotSent) {
		log.Warnf("daemon write failed, reconnecting: %v", err)
		reply, err = c.transact(ctx, cmd)
	}
	if errors.Is(err, errNotSent) {
		err = errors.Wrap(ErrDisconnected, err.Error())
	}

	if c.observer != nil {
		c.observer.ObserveCall(verbOf(cmd), time.Since(start), err)
	}
	return reply, err
}

var errNotSent = errors.New("command not sent")

func (c *Connector) transact(ctx context.Context, cmd string) (Reply, error) {
	if c.closed.Load() {
		return failedReply, ErrClosed
	}

	id := c.acquireID()
	ch, err := c.send(ctx, id, []byte(cmd))
	if err != nil {
		return failedReply, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.reply, res.err
	case <-timer.C:
		c.unregister(id)
		log.Warnf("daemon transaction %d timed out after %s: %s", id, c.timeout, verbOf(cmd))
		return failedReply, ErrTimeout
	case <-ctx.Done():
		c.unregister(id)
		return failedReply, ctx.Err()
	}
}

// acquireID hands out the next transaction id, skipping ids still outstanding
// after the counter wrapped.
func (c *Connector) acquireID() uint32 {
	c.idMu.Lock()
	defer c.idMu.Unlock()

	for {
		id := c.nextID
		c.nextID++
		if !c.isPending(id) {
			return id
		}
	}
}

func (c *Connector) isPending(id uint32) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// send registers id and writes the frame on the live connection, connecting
// first if needed.
func (c *Connector) send(ctx context.Context, id uint32, body []byte) (chan result, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			return nil, errors.Wrapf(errNotSent, "connect: %v", err)
		}
	}

	ch := make(chan result, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := writeFrame(c.conn, id, body); err != nil {
		c.unregister(id)
		c.teardownLocked(c.conn, err)
		return nil, errors.Wrapf(errNotSent, "write: %v", err)
	}

	return ch, nil
}

func (c *Connector) connectLocked(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	conn, err := c.dial(ctx)
	if c.observer != nil {
		c.observer.ObserveReconnect(err)
	}
	if err != nil {
		return err
	}

	log.Info("connected to storage daemon")
	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// readLoop drains replies for one connection until it fails.
func (c *Connector) readLoop(conn net.Conn) {
	for {
		f, err := readFrame(conn)
		if err != nil {
			if !c.closed.Load() && !stdErrors.Is(err, net.ErrClosed) {
				log.Warnf("daemon connection failed: %v", err)
			}
			c.teardown(conn, err)
			return
		}

		reply, err := parseReply(f.body)
		c.deliver(f.id, result{reply: reply, err: err})
	}
}

func (c *Connector) deliver(id uint32, res result) {
	c.pendingMu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.pendingMu.Unlock()

	if !ok {
		log.Warnf("dropping reply for unknown transaction %d", id)
		return
	}
	ch <- res
}

func (c *Connector) unregister(id uint32) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Connector) teardown(conn net.Conn, cause error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.teardownLocked(conn, cause)
}

// teardownLocked closes conn and fails every transaction written on it.
// Holding connMu guarantees no new transaction is registered meanwhile.
func (c *Connector) teardownLocked(conn net.Conn, cause error) {
	if c.conn != conn {
		return
	}
	c.conn = nil
	_ = conn.Close()

	c.pendingMu.Lock()
	failed := c.pending
	c.pending = make(map[uint32]chan result)
	c.pendingMu.Unlock()

	err := errors.Wrap(ErrDisconnected, cause.Error())
	for _, ch := range failed {
		ch <- result{reply: failedReply, err: err}
	}
	if len(failed) > 0 {
		log.Warnf("failed %d pending daemon transactions: %v", len(failed), cause)
	}
}

// Pending returns the number of outstanding transactions.
func (c *Connector) Pending() int {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return len(c.pending)
}

// Close tears down the connection and fails pending calls.
func (c *Connector) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.teardownLocked(c.conn, ErrClosed)
	}
	return nil
}

func verbOf(cmd string) string {
	for i := 0; i < len(cmd); i++ {
		if cmd[i] == ' ' {
			return cmd[:i]
		}
	}
	return cmd
}
