// Package connio drives the TCP accept loop and the per-connection
// handler loop of §4.5: a growing read buffer, a codec-driven token
// accumulator, and a retry-on-InsufficientTokens fold into commands
// dispatched against the shared storage engine.
package connio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
	"golang.org/x/time/rate"

	"kvnode/pkg/command"
	"kvnode/pkg/dispatch"
	"kvnode/pkg/kvstore"
	"kvnode/pkg/metrics"
	"kvnode/pkg/wire"
)

// ConnID identifies one accepted connection for the lifetime of the
// process.
type ConnID uint64

// Server owns the listener, the connection tracker, and admission
// control. It is stateless with respect to the keyspace: every command
// it decodes is handed off to engine.
type Server struct {
	Engine  *kvstore.Engine
	Log     *slog.Logger
	Limiter *rate.Limiter     // nil disables admission control
	Metrics *metrics.Registry // nil disables counters
	tracker *Tracker
	nextID  uint64
}

// NewServer constructs a Server. limiter and reg may be nil to accept
// connections unconditionally and skip metrics, respectively.
func NewServer(engine *kvstore.Engine, log *slog.Logger, limiter *rate.Limiter, reg *metrics.Registry) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{Engine: engine, Log: log, Limiter: limiter, Metrics: reg, tracker: NewTracker()}
}

// Serve accepts connections on ln until ctx is canceled or ln.Accept
// fails permanently.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				continue
			}
			return err
		}
		if s.Limiter != nil && !s.Limiter.Allow() {
			s.Log.Warn("connio: rejecting connection, rate limit exceeded", "remote", conn.RemoteAddr())
			conn.Close()
			continue
		}
		id := ConnID(atomic.AddUint64(&s.nextID, 1))
		s.tracker.Add(id)
		go func() {
			defer s.tracker.Remove(id)
			s.handle(ctx, id, conn)
		}()
	}
}

// Tracker returns the connection tracker, exposed so callers (metrics,
// shutdown) can observe active connection counts.
func (s *Server) Tracker() *Tracker { return s.tracker }

const initialBufferCapacity = 4 * 1024

// handle runs the read/decode/dispatch loop for a single connection
// until end-of-stream, a protocol violation, or ctx cancellation.
func (s *Server) handle(ctx context.Context, id ConnID, conn net.Conn) {
	defer conn.Close()
	s.Log.Info("connio: accepted connection", "id", id, "remote", conn.RemoteAddr())

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	var tokens []wire.Token
	readChunk := make([]byte, initialBufferCapacity)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := conn.Read(readChunk)
		if n > 0 {
			buf.Write(readChunk[:n])
		}
		if err != nil {
			if err != io.EOF {
				s.Log.Debug("connio: read error, closing connection", "id", id, "err", err)
			}
			return
		}

		consumed := 0
		for {
			tok, n, err := wire.Decode(buf.B[consumed:])
			if err != nil {
				if !wire.IsIncomplete(err) {
					s.Log.Debug("connio: malformed token, closing connection", "id", id, "err", err)
					return
				}
				break
			}
			consumed += n
			tokens = append(tokens, tok)
		}
		trimBuffer(buf, consumed)

		if buf.Len() == 0 && len(tokens) > 0 {
			for {
				cmd, n, err := command.FromTokens(tokens)
				if err != nil {
					if command.IsInsufficientTokens(err) {
						break
					}
					s.Log.Debug("connio: malformed command, closing connection", "id", id, "err", err)
					return
				}
				tokens = tokens[n:]

				respTokens := dispatch.Dispatch(s.Engine, cmd, s.Metrics)
				if err := writeTokens(conn, respTokens); err != nil {
					s.Log.Debug("connio: write error, closing connection", "id", id, "err", err)
					return
				}
				if len(tokens) == 0 {
					break
				}
			}
		}
	}
}

// trimBuffer drops the first n consumed bytes from buf, keeping the
// pooled buffer for the remainder rather than reallocating.
func trimBuffer(buf *bytebufferpool.ByteBuffer, n int) {
	if n == 0 {
		return
	}
	remaining := buf.B[n:]
	buf.Reset()
	buf.Write(remaining)
}

func writeTokens(w io.Writer, toks []wire.Token) error {
	scratch := bytebufferpool.Get()
	defer bytebufferpool.Put(scratch)
	for _, t := range toks {
		if err := wire.Encode(scratch, t); err != nil {
			return err
		}
	}
	_, err := w.Write(scratch.B)
	return err
}

// Tracker is a mutex-guarded set of active connection IDs, taken only on
// connect/disconnect.
type Tracker struct {
	mu    sync.Mutex
	conns map[ConnID]struct{}
}

func NewTracker() *Tracker { return &Tracker{conns: make(map[ConnID]struct{})} }

func (t *Tracker) Add(id ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[id] = struct{}{}
}

func (t *Tracker) Remove(id ConnID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}
