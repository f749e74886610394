package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"etherpush/protocol"
	"etherpush/transfer"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// DefaultPort is the port etherpush peers connect to.
const DefaultPort = protocol.DefaultPort

// timeout to avoid blocking forever in Accept and still notice a cancelled context
const acceptPollInterval = time.Second

// ErrNotStarted is returned by Serve when Start did not bind a socket.
var ErrNotStarted = errors.New("listener not started")

type Config struct {
	HostName string
	Port     int
}

// Stats counts sessions since the listener was created.
type Stats struct {
	Accepted int64
	Done     int64
	Aborted  int64
}

// Listener accepts etherpush connections and runs one transfer session per
// connection on its own goroutine. It holds no transfer state.
type Listener struct {
	cfg      Config
	prompter transfer.Prompter
	notifier transfer.Notifier
	opts     []transfer.Option

	mu     sync.Mutex
	ln     *net.TCPListener
	conns  map[net.Conn]struct{}
	closed bool

	sessions conc.WaitGroup

	accepted *atomic.Int64
	done     *atomic.Int64
	aborted  *atomic.Int64
}

func New(cfg Config, prompter transfer.Prompter, notifier transfer.Notifier, opts ...transfer.Option) *Listener {
	return &Listener{
		cfg:      cfg,
		prompter: prompter,
		notifier: notifier,
		opts:     opts,
		conns:    make(map[net.Conn]struct{}),
		accepted: atomic.NewInt64(0),
		done:     atomic.NewInt64(0),
		aborted:  atomic.NewInt64(0),
	}
}

// Start binds the IPv4 TCP endpoint. A failure is reported to the notifier
// and returned; the caller decides whether to keep running.
func (l *Listener) Start() error {
	addr := net.JoinHostPort(l.cfg.HostName, strconv.Itoa(l.cfg.Port))

	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		if l.notifier != nil {
			l.notifier.NotifyError(fmt.Sprintf("Failed to add listener: %v", err))
		}
		logrus.WithFields(logrus.Fields{
			"function": "Start",
			"address":  addr,
			"error":    err.Error(),
		}).Error("Failed to bind listener")
		return fmt.Errorf("[Start] - error starting listener on %s: %w", addr, err)
	}

	l.mu.Lock()
	l.ln = ln.(*net.TCPListener)
	l.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"address":  ln.Addr().String(),
	}).Info("Listening for incoming transfers")

	return nil
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Sessions still running when Serve returns are left alone; use Close and
// Wait to end them.
func (l *Listener) Serve(ctx context.Context) error {
	l.mu.Lock()
	ln := l.ln
	l.mu.Unlock()
	if ln == nil {
		return ErrNotStarted
	}
	defer ln.Close()

	for {
		select {
		case <-ctx.Done():
			logrus.WithField("function", "Serve").Info("Listener is shutting down and no longer accepting connections")
			return nil
		default:
		}

		if err := ln.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("[Serve] - error setting accept deadline: %w", err)
		}

		conn, err := ln.Accept()
		if err != nil {
			var opErr *net.OpError
			if errors.As(err, &opErr) && opErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logrus.WithFields(logrus.Fields{
				"function": "Serve",
				"error":    err.Error(),
			}).Warn("Error accepting connection")
			time.Sleep(5 * time.Millisecond)
			continue
		}

		l.dispatch(ctx, conn)
	}
}

func (l *Listener) dispatch(ctx context.Context, conn net.Conn) {
	if !l.track(conn) {
		conn.Close()
		return
	}
	l.accepted.Inc()

	l.sessions.Go(func() {
		defer l.untrack(conn)
		l.serveConn(ctx, conn)
	})
}

func (l *Listener) serveConn(ctx context.Context, conn net.Conn) {
	session := transfer.NewSession(conn, l.prompter, l.notifier, l.opts...)

	var pc panics.Catcher
	pc.Try(func() {
		_ = session.Run(ctx)
	})

	if recovered := pc.Recovered(); recovered != nil {
		logrus.WithFields(logrus.Fields{
			"function":    "serveConn",
			"session_id":  session.ID().String(),
			"remote_addr": conn.RemoteAddr().String(),
			"error":       recovered.AsError().Error(),
		}).Error("Session panicked")
		conn.Close()
		l.aborted.Inc()
		return
	}

	if session.State() == transfer.StateDone {
		l.done.Inc()
	} else {
		l.aborted.Inc()
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}

// Close stops accepting and closes every connection still owned by a
// session, which makes their pending reads fail. A session blocked in its
// Prompter stays blocked until the prompter returns.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var err error
	if l.ln != nil {
		err = ignoreClosed(l.ln.Close())
	}
	for conn := range l.conns {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
	}
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Wait blocks until every dispatched session has returned.
func (l *Listener) Wait() {
	l.sessions.Wait()
}

// Addr returns the bound address, nil before Start.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

func (l *Listener) Stats() Stats {
	return Stats{
		Accepted: l.accepted.Load(),
		Done:     l.done.Load(),
		Aborted:  l.aborted.Load(),
	}
}
