// Package byteblaster is a receive-only client for EMWIN's ByteBlaster
// Quick Block Transfer satellite re-broadcast: a TCP feed of an
// XOR-obfuscated, interleaved stream of small files. See SPEC_FULL.md for
// the full component design.
package byteblaster

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bradsjm/byte-blaster/internal/assembler"
	"github.com/bradsjm/byte-blaster/internal/auth"
	"github.com/bradsjm/byte-blaster/internal/bus"
	"github.com/bradsjm/byte-blaster/internal/metrics"
	"github.com/bradsjm/byte-blaster/internal/serverlist"
	"github.com/bradsjm/byte-blaster/internal/supervisor"
)

// Client is the public entry point: configure it, Start it, subscribe to
// segments or completed files, Stop it when done.
type Client struct {
	cfg        Config
	log        *log.Logger
	metrics    *metrics.Metrics
	store      *serverlist.Store
	assembler  *assembler.Assembler
	supervisor *supervisor.Supervisor

	segments *bus.Bus[Segment]
	files    *bus.Bus[CompletedFile]

	stopped         atomic.Bool
	lastProtocolErr atomic.Value // *ProtocolLimitError
}

// Option customizes a Client at construction, e.g. to inject a logger.
type Option func(*Client)

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New validates cfg and returns a ready-to-Start Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		segments: bus.New[Segment](),
		files:    bus.New[CompletedFile](),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = log.NewWithOptions(os.Stderr, log.Options{
			ReportTimestamp: true,
			Prefix:          "byteblaster",
		})
	}

	c.metrics = metrics.New()
	c.store = serverlist.Open(cfg.ServerListPath, c.log.WithPrefix("serverlist"))
	c.assembler = assembler.New(
		assembler.WithIdleTimeout(cfg.AssemblerIdleTimeout),
		assembler.WithCapacity(cfg.AssemblerCapacity),
	)

	authn, err := auth.New(cfg.Email)
	if err != nil {
		return nil, err
	}

	c.supervisor = supervisor.New(
		supervisor.Config{
			WatchdogTimeout: cfg.WatchdogTimeout,
			MaxExceptions:   cfg.MaxExceptions,
			ReconnectDelay:  cfg.ReconnectDelay,
			ReconnectMax:    cfg.ReconnectMax,
			ConnectTimeout:  cfg.ConnectTimeout,
			KeepaliveEvery:  115 * time.Second,
			HaltTimeout:     cfg.HaltTimeout,
		},
		c.log.WithPrefix("supervisor"),
		c.store,
		authn,
		c.metrics,
		c.onSegment,
		c.onProtocolLimit,
	)
	c.lastProtocolErr.Store((*ProtocolLimitError)(nil))

	return c, nil
}

// onSegment is the decoder's emission sink: it publishes the raw segment,
// feeds the assembler, and publishes any resulting completed file — in that
// order, matching spec.md §5's decoder-then-assembler ordering guarantee.
func (c *Client) onSegment(seg Segment) {
	c.segments.Publish(seg)
	if cf, done := c.assembler.Insert(seg); done {
		c.metrics.IncCompletedFile()
		c.files.Publish(cf)
	}
}

// onProtocolLimit records the decoder exception-budget teardown as a
// ProtocolLimitError, retrievable via LastProtocolError. The supervisor
// already logged and counted it; this just gives callers programmatic
// access to the same event.
func (c *Client) onProtocolLimit(source string, exceptions int) {
	c.lastProtocolErr.Store(&ProtocolLimitError{Exceptions: exceptions, Source: source})
}

// LastProtocolError returns the most recent ProtocolLimitError recorded
// since Start, or nil if the decoder's exception budget has never been
// exceeded.
func (c *Client) LastProtocolError() *ProtocolLimitError {
	return c.lastProtocolErr.Load().(*ProtocolLimitError)
}

// Start begins dialing and streaming. It returns immediately; connection
// and decoding happen on managed background goroutines. It returns
// ErrShutdown if Stop has already been called — a stopped Client cannot be
// restarted.
func (c *Client) Start() error {
	if c.stopped.Load() {
		return ErrShutdown
	}
	c.assembler.Start()
	c.supervisor.Start()
	return nil
}

// Stop requests cooperative shutdown, waiting up to the configured halt
// timeout before abandoning any still-running task (spec.md §5). After
// Stop, Start returns ErrShutdown; Stop itself is safe to call more than
// once.
func (c *Client) Stop() {
	c.stopped.Store(true)
	c.supervisor.Stop()
	c.assembler.Stop()
}

// IsRunning reports whether Start has been called and Stop has not
// completed.
func (c *Client) IsRunning() bool { return c.supervisor.IsRunning() }

// IsConnected reports whether a session currently has a live socket.
func (c *Client) IsConnected() bool { return c.supervisor.IsConnected() }

// CurrentServer returns the "host:port" of the currently (or most recently)
// connected server.
func (c *Client) CurrentServer() string { return c.supervisor.CurrentServer() }

// ServerCount returns the number of known primary servers.
func (c *Client) ServerCount() int { return c.supervisor.ServerCount() }

// Metrics exposes the Prometheus registry backing the client's
// instrumentation, for callers that want to serve /metrics themselves.
func (c *Client) Metrics() *metrics.Metrics { return c.metrics }
