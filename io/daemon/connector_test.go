package daemon

import (
	"context"
	"fmt"
	"math"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeDaemon speaks the frame protocol and lets tests decide how to answer.
type fakeDaemon struct {
	t        *testing.T
	l        net.Listener
	accepted atomic.Int32
	handle   func(d *fakeDaemon, conn net.Conn, f frame)
	writeMu  sync.Mutex
}

func startFakeDaemon(t *testing.T, handle func(d *fakeDaemon, conn net.Conn, f frame)) (*fakeDaemon, string) {
	socket := filepath.Join(t.TempDir(), "d.sock")
	l, err := net.Listen("unix", socket)
	require.NoError(t, err)

	d := &fakeDaemon{t: t, l: l, handle: handle}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			d.accepted.Add(1)
			go func() {
				defer conn.Close()
				for {
					f, err := readFrame(conn)
					if err != nil {
						return
					}
					d.handle(d, conn, f)
				}
			}()
		}
	}()
	t.Cleanup(func() { l.Close() })
	return d, socket
}

func (d *fakeDaemon) reply(conn net.Conn, id uint32, body string) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_ = writeFrame(conn, id, []byte(body))
}

func echo(d *fakeDaemon, conn net.Conn, f frame) {
	d.reply(conn, f.id, "0 "+string(f.body))
}

func TestConnector_Execute(t *testing.T) {
	_, socket := startFakeDaemon(t, echo)
	c := NewConnector(UnixDialer(socket))
	defer c.Close()

	reply, err := c.Execute(context.Background(), "getsize com.example.app")
	require.NoError(t, err)
	require.Equal(t, 0, reply.Status)
	require.Equal(t, []string{"getsize", "com.example.app"}, reply.Fields)
	require.Zero(t, c.Pending())
}

func TestConnector_RejectsBadCommands(t *testing.T) {
	c := NewConnector(UnixDialer("/nonexistent"))
	defer c.Close()

	_, err := c.Execute(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidCommand)

	_, err = c.Execute(context.Background(), "ping\nremove x")
	require.ErrorIs(t, err, ErrInvalidCommand)

	reply, err := c.Execute(context.Background(), strings.Repeat("a", MaxBodySize+1))
	require.ErrorIs(t, err, ErrCommandTooLong)
	require.Equal(t, StatusFailed, reply.Status)
}

func TestConnector_ConcurrentCallsHaveDistinctIDs(t *testing.T) {
	var (
		mu          sync.Mutex
		outstanding = make(map[uint32]bool)
		duplicate   atomic.Bool
	)

	_, socket := startFakeDaemon(t, func(d *fakeDaemon, conn net.Conn, f frame) {
		mu.Lock()
		if outstanding[f.id] {
			duplicate.Store(true)
		}
		outstanding[f.id] = true
		mu.Unlock()

		// answer out of order
		go func() {
			time.Sleep(time.Duration(f.id%5) * time.Millisecond)
			mu.Lock()
			delete(outstanding, f.id)
			mu.Unlock()
			echo(d, conn, f)
		}()
	})

	c := NewConnector(UnixDialer(socket))
	defer c.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := fmt.Sprintf("remove pkg%d", i)
			reply, err := c.Execute(context.Background(), cmd)
			if err != nil {
				errs <- err
				return
			}
			if strings.Join(reply.Fields, " ") != cmd {
				errs <- fmt.Errorf("caller %d got reply %v", i, reply.Fields)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.False(t, duplicate.Load(), "transaction id reused while outstanding")
	require.Zero(t, c.Pending())
}

func TestConnector_ConnectionDropFailsCallAndReconnects(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []uint32
	)
	_, socket := startFakeDaemon(t, func(d *fakeDaemon, conn net.Conn, f frame) {
		mu.Lock()
		ids = append(ids, f.id)
		first := len(ids) == 1
		mu.Unlock()

		if first {
			conn.Close()
			return
		}
		echo(d, conn, f)
	})

	c := NewConnector(UnixDialer(socket))
	defer c.Close()
	c.nextID = 7

	reply, err := c.Execute(context.Background(), "movedex /a /b")
	require.ErrorIs(t, err, ErrDisconnected)
	require.Equal(t, StatusFailed, reply.Status)

	reply, err = c.Execute(context.Background(), "ping")
	require.NoError(t, err)
	require.Equal(t, 0, reply.Status)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	require.Equal(t, uint32(7), ids[0])
	require.Greater(t, ids[1], ids[0])
}

func TestConnector_Timeout(t *testing.T) {
	_, socket := startFakeDaemon(t, func(*fakeDaemon, net.Conn, frame) {})

	c := NewConnector(UnixDialer(socket), WithTimeout(100*time.Millisecond))
	defer c.Close()

	start := time.Now()
	reply, err := c.Execute(context.Background(), "ping")
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, StatusFailed, reply.Status)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	require.Zero(t, c.Pending())
}

func TestConnector_MalformedReplyForcesReconnect(t *testing.T) {
	var calls atomic.Int32
	d, socket := startFakeDaemon(t, func(d *fakeDaemon, conn net.Conn, f frame) {
		if calls.Add(1) == 1 {
			// zero-length body
			d.writeMu.Lock()
			_, _ = conn.Write([]byte{byte(f.id), 0, 0, 0, 0, 0})
			d.writeMu.Unlock()
			return
		}
		echo(d, conn, f)
	})

	c := NewConnector(UnixDialer(socket))
	defer c.Close()

	_, err := c.Execute(context.Background(), "ping")
	require.ErrorIs(t, err, ErrDisconnected)

	_, err = c.Execute(context.Background(), "ping")
	require.NoError(t, err)
	require.Equal(t, int32(2), d.accepted.Load())
}

func TestConnector_RetriesOnceWhenConnectFails(t *testing.T) {
	_, socket := startFakeDaemon(t, echo)

	var dials atomic.Int32
	dial := func(ctx context.Context) (net.Conn, error) {
		if dials.Add(1) == 1 {
			return nil, fmt.Errorf("daemon not ready")
		}
		return UnixDialer(socket)(ctx)
	}

	c := NewConnector(dial)
	defer c.Close()

	_, err := c.Execute(context.Background(), "ping")
	require.NoError(t, err)
	require.Equal(t, int32(2), dials.Load())
}

func TestConnector_GivesUpAfterSecondConnectFailure(t *testing.T) {
	c := NewConnector(UnixDialer(filepath.Join(t.TempDir(), "missing.sock")))
	defer c.Close()

	reply, err := c.Execute(context.Background(), "ping")
	require.ErrorIs(t, err, ErrDisconnected)
	require.Equal(t, StatusFailed, reply.Status)
}

func TestConnector_IDWrapSkipsOutstanding(t *testing.T) {
	c := NewConnector(UnixDialer("/nonexistent"))
	c.nextID = math.MaxUint32
	c.pending[0] = make(chan result, 1)

	require.Equal(t, uint32(math.MaxUint32), c.acquireID())
	require.Equal(t, uint32(1), c.acquireID())
}

func TestConnector_CloseFailsCalls(t *testing.T) {
	c := NewConnector(UnixDialer("/nonexistent"))
	require.NoError(t, c.Close())

	_, err := c.Execute(context.Background(), "ping")
	require.ErrorIs(t, err, ErrClosed)
}
