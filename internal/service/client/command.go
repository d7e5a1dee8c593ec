package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/oshokin/alarm-push/internal/config"
	"github.com/oshokin/alarm-push/internal/logger"
	"github.com/oshokin/alarm-push/internal/protocol"
	"github.com/oshokin/alarm-push/internal/service/common"
	"github.com/oshokin/alarm-push/internal/version"
)

// Options configures the alarm client.
// Non-zero fields override the settings file.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress is the host:port of the alarm server.
	ServerAddress string
	// Identity is announced in HELLO; defaults to the OS user name.
	Identity string
	// Interval is the heartbeat and reconnect delay.
	Interval time.Duration
	// LogLevel overrides the configured log level.
	LogLevel string
	// Out receives alerts, one per line; defaults to stdout.
	Out io.Writer
}

// dialFunc opens a connection to the server.
type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

var (
	// errServerClosed is returned when the server closes the connection.
	errServerClosed = errors.New("connection closed by server")
	// errInvalidLogLevel is returned for an unrecognized log level.
	errInvalidLogLevel = errors.New("invalid log level")
)

// client holds the state of one alarm-client process.
type client struct {
	// address is the server host:port.
	address string
	// identity is announced after every connect.
	identity string
	// interval is the silence before a heartbeat and the reconnect delay.
	interval time.Duration
	// out receives alerts.
	out io.Writer
	// dial opens connections.
	dial dialFunc
}

// Run connects to the server and keeps the connection alive until ctx is canceled.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "alarm-client")

	settings, err := resolveSettings(opts)
	if err != nil {
		return err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	dialer := &net.Dialer{Timeout: settings.Interval}

	c := &client{
		address:  settings.ServerAddress,
		identity: settings.Identity,
		interval: settings.Interval,
		out:      out,
		dial:     dialer.DialContext,
	}

	logger.InfoKV(
		ctx,
		"Alarm client started",
		append([]any{
			"server_address", c.address,
			"identity", c.identity,
			"interval", c.interval,
		}, version.Fields()...)...,
	)

	c.run(ctx)

	logger.Info(ctx, "Alarm client stopped")

	return nil
}

// resolveSettings loads the settings file and applies the overrides in opts.
func resolveSettings(opts *Options) (*config.Config, error) {
	settings, err := config.LoadOptional(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if opts.ServerAddress != "" {
		settings.ServerAddress = opts.ServerAddress
	}

	if opts.Identity != "" {
		settings.Identity = opts.Identity
	}

	if opts.Interval != 0 {
		settings.Interval = opts.Interval
	}

	if opts.LogLevel != "" {
		settings.LogLevel = opts.LogLevel
	}

	if settings.Identity == "" {
		identity, detectErr := common.DetectIdentity()
		if detectErr != nil {
			return nil, fmt.Errorf("detect identity: %w", detectErr)
		}

		settings.Identity = identity
	}

	if err = config.ValidateClient(settings); err != nil {
		return nil, fmt.Errorf("validate settings: %w", err)
	}

	if settings.LogLevel != "" {
		level, ok := logger.ParseLogLevel(settings.LogLevel)
		if !ok {
			return nil, fmt.Errorf("%w %q", errInvalidLogLevel, settings.LogLevel)
		}

		logger.SetLevel(level)
	}

	return settings, nil
}

// run reconnects after every failed connection until ctx is canceled.
func (c *client) run(ctx context.Context) {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return
		}

		logger.WarnKV(ctx, "Connection lost, reconnecting", "error", err, "delay", c.interval)

		timer := time.NewTimer(c.interval)

		select {
		case <-ctx.Done():
			timer.Stop()

			return
		case <-timer.C:
		}
	}
}

// session connects, identifies and serves one connection until it fails.
func (c *client) session(ctx context.Context) error {
	conn, err := c.dial(ctx, "tcp", c.address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.address, err)
	}

	defer func() {
		_ = conn.Close()
	}()

	// Closing the connection unblocks a pending read on shutdown.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	logger.InfoKV(ctx, "Connected, sending HELLO", "server_address", c.address)

	if err = c.write(conn, protocol.EncodeHello(c.identity)); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	var (
		decoder protocol.Decoder
		buf     = make([]byte, protocol.ReadBufferSize)
	)

	defer func() {
		if partial, ok := decoder.Flush(); ok {
			logger.WarnKV(ctx, "Incomplete alert discarded", "partial", partial)
		}
	}()

	for {
		if err = conn.SetReadDeadline(time.Now().Add(c.interval)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, readErr := conn.Read(buf)
		for _, message := range decoder.Feed(buf[:n]) {
			c.handle(ctx, message)
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, os.ErrDeadlineExceeded):
			logger.Debug(ctx, "Connection idle, sending HEARTBEAT")

			if err = c.write(conn, protocol.EncodeHeartbeat()); err != nil {
				return fmt.Errorf("send heartbeat: %w", err)
			}
		case errors.Is(readErr, io.EOF):
			return errServerClosed
		default:
			return fmt.Errorf("read: %w", readErr)
		}
	}
}

// handle prints an alert, or logs the acknowledgment of HELLO.
func (c *client) handle(ctx context.Context, message string) {
	if message == protocol.HelloPrefix+c.identity {
		logger.InfoKV(ctx, "Identity acknowledged", "identity", c.identity)

		return
	}

	logger.DebugKV(ctx, "Alert received", "message", message)

	_, _ = fmt.Fprintln(c.out, message)
}

func (c *client) write(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(c.interval)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}
