// Package supervisor owns the single live ByteBlaster TCP connection: it
// dials, authenticates, drives the decoder, enforces the ingress watchdog,
// and reconnects with backoff and server failover (spec.md §4.5, §5).
package supervisor

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bradsjm/byte-blaster/internal/auth"
	"github.com/bradsjm/byte-blaster/internal/decoder"
	"github.com/bradsjm/byte-blaster/internal/metrics"
	"github.com/bradsjm/byte-blaster/internal/obfuscate"
	"github.com/bradsjm/byte-blaster/internal/serverlist"
	"github.com/bradsjm/byte-blaster/internal/worker"
)

// Config bundles the supervisor's tunables. Durations are taken as-is, with
// defaults applied by the caller (byteblaster.Config), per spec.md §6.
type Config struct {
	WatchdogTimeout time.Duration
	MaxExceptions   int
	ReconnectDelay  time.Duration
	ReconnectMax    time.Duration
	ConnectTimeout  time.Duration
	KeepaliveEvery  time.Duration
	HaltTimeout     time.Duration
}

// SegmentHandler mirrors the decoder's own handler type so callers (the
// public byteblaster package) don't need to import internal/decoder
// directly.
type SegmentHandler = decoder.SegmentHandler

// Supervisor runs the S/R/K/W task set described in spec.md §5. One
// Supervisor owns at most one live session at a time.
type Supervisor struct {
	worker.Worker

	cfg     Config
	log     *log.Logger
	store   *serverlist.Store
	authn   *auth.Authenticator
	metrics *metrics.Metrics

	onSegment       SegmentHandler
	onProtocolLimit func(source string, exceptions int)

	started       atomic.Bool
	connected     int32 // atomic bool
	currentServer atomic.Value // string
}

// New constructs a Supervisor. onSegment is invoked for every validated
// segment the decoder emits, in decode order, from the reader goroutine.
// onProtocolLimit, if non-nil, is invoked from the same goroutine whenever a
// session is torn down because the decoder's consecutive-resync budget
// (MaxExceptions) was exceeded — it mirrors client2/connection.go's
// ProtocolError reporting hook. The supervisor cannot depend on the root
// byteblaster package (which depends on it), so the caller is responsible
// for turning this callback into a *byteblaster.ProtocolLimitError.
func New(cfg Config, logger *log.Logger, store *serverlist.Store, authn *auth.Authenticator, m *metrics.Metrics, onSegment SegmentHandler, onProtocolLimit func(source string, exceptions int)) *Supervisor {
	s := &Supervisor{
		cfg:     cfg,
		log:     logger,
		store:   store,
		authn:   authn,
		metrics: m,
	}
	s.onSegment = func(seg decoder.Segment) {
		m.IncSegmentsDecoded()
		onSegment(seg)
	}
	s.onProtocolLimit = onProtocolLimit
	s.currentServer.Store("")
	return s
}

// Start launches the connect loop (S) as a managed goroutine.
func (s *Supervisor) Start() {
	s.started.Store(true)
	s.Go(s.connectLoop)
}

// Stop requests cooperative shutdown and waits up to HaltTimeout for the
// connect loop and any live session to exit (spec.md §5: cancellation is
// cooperative with a default 5 s timeout, after which the caller treats the
// supervisor as stopped regardless).
func (s *Supervisor) Stop() {
	done := make(chan struct{})
	go func() {
		s.Halt()
		close(done)
	}()
	timeout := s.cfg.HaltTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		s.log.Warn("halt did not complete within timeout, abandoning in-flight tasks", "timeout", timeout)
	}
}

// IsRunning reports whether the connect loop has been started and not yet
// halted.
func (s *Supervisor) IsRunning() bool {
	if !s.started.Load() {
		return false
	}
	select {
	case <-s.HaltCh():
		return false
	default:
		return true
	}
}

// IsConnected reports whether a session currently has a live socket.
func (s *Supervisor) IsConnected() bool {
	return atomic.LoadInt32(&s.connected) == 1
}

// CurrentServer returns the "host:port" of the currently (or most recently)
// connected server, or "" if never connected.
func (s *Supervisor) CurrentServer() string {
	return s.currentServer.Load().(string)
}

// ServerCount returns the number of known primary servers.
func (s *Supervisor) ServerCount() int {
	return s.store.Size()
}

func (s *Supervisor) setConnected(v bool) {
	if v {
		atomic.StoreInt32(&s.connected, 1)
		s.metrics.SetConnected(1)
	} else {
		atomic.StoreInt32(&s.connected, 0)
		s.metrics.SetConnected(0)
	}
}

// connectLoop is task S: round-robins the server list, dials with a bounded
// timeout, and runs one session to completion before looping. It never
// returns except on Halt (spec.md §4.5 step 5).
func (s *Supervisor) connectLoop() {
	defer s.log.Debug("connect loop terminating")

	bo := newBackoff(s.cfg.ReconnectDelay, s.cfg.ReconnectDelay, s.cfg.ReconnectMax)

	for {
		select {
		case <-s.HaltCh():
			return
		case <-time.After(bo.Next()):
		}

		ep := s.store.NextPrimary()
		s.log.Debug("dialing", "server", ep.String())

		dialCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		d := net.Dialer{}
		conn, err := d.DialContext(dialCtx, "tcp", ep.String())
		cancel()
		if err != nil {
			s.log.Warn("dial failed", "server", ep.String(), "err", err)
			s.metrics.IncDialFailure()
			continue
		}

		s.metrics.IncConnect()
		s.currentServer.Store(ep.String())
		s.runSession(conn, bo)

		select {
		case <-s.HaltCh():
			return
		default:
			s.metrics.IncReconnect()
		}
	}
}

// runSession drives one TCP connection's reader (R), keepalive (K), and
// watchdog (W) goroutines until any of them decides the session is over,
// then closes the socket and returns (spec.md §5).
func (s *Supervisor) runSession(conn net.Conn, bo *backoff) {
	s.setConnected(true)
	defer func() {
		conn.Close()
		s.setConnected(false)
	}()

	sessionHalt := make(chan struct{})
	var closeOnce sync.Once
	closeSession := func() { closeOnce.Do(func() { close(sessionHalt) }) }

	var lastRead int64 // atomic unix-nanos
	atomic.StoreInt64(&lastRead, time.Now().UnixNano())

	dec := decoder.New(conn.RemoteAddr().String())

	// K: authentication keepalive, fires immediately then every
	// KeepaliveEvery (spec.md §4.4/§4.5 step 2/3, invariant 9: 110s-120s
	// cadence barring reconnects).
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepaliveLoop(conn, sessionHalt, closeSession)
	}()

	// W: watchdog, tears the session down if lastRead goes stale.
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchdogLoop(&lastRead, sessionHalt, closeSession)
	}()

	// R: reader + decoder driver, runs on this goroutine so runSession
	// blocks until the session ends.
	s.readerLoop(conn, dec, &lastRead, sessionHalt, closeSession, bo)

	closeSession()
	wg.Wait()
}

func (s *Supervisor) keepaliveLoop(conn net.Conn, sessionHalt <-chan struct{}, closeSession func()) {
	interval := s.cfg.KeepaliveEvery
	if interval <= 0 {
		interval = 115 * time.Second
	}
	send := func() bool {
		payload := s.authn.Logon()
		if _, err := conn.Write(payload); err != nil {
			s.log.Warn("logon write failed", "err", err)
			closeSession()
			return false
		}
		return true
	}
	if !send() {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-sessionHalt:
			return
		case <-s.HaltCh():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

func (s *Supervisor) watchdogLoop(lastRead *int64, sessionHalt <-chan struct{}, closeSession func()) {
	timeout := s.cfg.WatchdogTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-sessionHalt:
			return
		case <-s.HaltCh():
			return
		case <-ticker.C:
			last := time.Unix(0, atomic.LoadInt64(lastRead))
			if time.Since(last) > timeout {
				s.log.Warn("watchdog expired, closing session", "silent_for", time.Since(last))
				s.metrics.IncWatchdogExpiry()
				closeSession()
				return
			}
		}
	}
}

func (s *Supervisor) readerLoop(conn net.Conn, dec *decoder.Decoder, lastRead *int64, sessionHalt <-chan struct{}, closeSession func(), bo *backoff) {
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-sessionHalt:
			return
		case <-s.HaltCh():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, err := conn.Read(buf)
		if n > 0 {
			atomic.StoreInt64(lastRead, time.Now().UnixNano())
			bo.Reset()
			chunk := append([]byte(nil), buf[:n]...)
			obfuscate.Mask(chunk)
			dec.Feed(chunk)
			dec.Drain(s.onSegment, s.onServerListUpdate)
			if dec.Exceptions() >= s.cfg.MaxExceptions {
				exceptions := dec.Exceptions()
				s.log.Warn("decoder exception budget exceeded, forcing reconnect", "exceptions", exceptions)
				s.metrics.IncResync()
				if s.onProtocolLimit != nil {
					s.onProtocolLimit(conn.RemoteAddr().String(), exceptions)
				}
				closeSession()
				return
			}
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue // read deadline is just a polling tick, not a real error
			}
			s.log.Debug("read error, tearing down session", "err", err)
			return
		}
	}
}

// onServerListUpdate replaces the server-list store's contents. Per
// spec.md §4.5, this takes effect only on the next reconnect's
// NextPrimary() call, never pre-empting the in-progress session.
func (s *Supervisor) onServerListUpdate(upd decoder.ServerListUpdate) {
	primary := serverlist.ParseEndpoints(upd.Primary)
	satellite := serverlist.ParseEndpoints(upd.Satellite)
	if len(primary) == 0 {
		return
	}
	if err := s.store.Replace(primary, satellite); err != nil {
		s.log.Error("failed to persist updated server list", "err", err)
	}
}
