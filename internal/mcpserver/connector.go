package mcpserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"metamcp/internal/logstore"
	"metamcp/pkg/logging"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultConnectRetries is how many connection attempts Connect makes
	// before giving up.
	DefaultConnectRetries = 3
	// DefaultConnectRetryDelay is the fixed pause between attempts.
	DefaultConnectRetryDelay = 5 * time.Second
)

// ConnectedClient bundles a live MCP client with the config it was built
// from. Cleanup is idempotent; concurrent callers share one close.
type ConnectedClient struct {
	Client MCPClient
	Config ServerConfig

	closeOnce sync.Once
	closeErr  error
}

// Cleanup closes the underlying client. Safe to call multiple times; only
// the first call performs the close.
func (c *ConnectedClient) Cleanup() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Client.Close()
	})
	return c.closeErr
}

// Connector builds connected clients from server configs, retrying transient
// failures and reporting per-server activity into the log store.
type Connector struct {
	retries    int
	retryDelay time.Duration
	opts       FactoryOptions
	logStore   *logstore.Store

	// newClient is swapped out in tests.
	newClient func(ServerConfig, FactoryOptions) (MCPClient, error)
}

// NewConnector creates a connector. logStore may be nil when no per-server
// log capture is wanted. retries<=0 and retryDelay<=0 fall back to defaults.
func NewConnector(retries int, retryDelay time.Duration, opts FactoryOptions, logStore *logstore.Store) *Connector {
	if retries <= 0 {
		retries = DefaultConnectRetries
	}
	if retryDelay <= 0 {
		retryDelay = DefaultConnectRetryDelay
	}
	return &Connector{
		retries:    retries,
		retryDelay: retryDelay,
		opts:       opts,
		logStore:   logStore,
		newClient:  NewClientFromConfig,
	}
}

// Connect establishes a live connection to the configured server. Each
// attempt builds a fresh client; a half-initialized client from a failed
// attempt is never reused. Only transport-level failures are retried; config
// validation failures, unsupported kinds, and rejected handshakes are not.
func (c *Connector) Connect(ctx context.Context, cfg ServerConfig) (*ConnectedClient, error) {
	if err := cfg.Validate(); err != nil {
		c.log(cfg.Name, logstore.LevelError, "Invalid server configuration", err)
		return nil, err
	}

	attempt := 0
	operation := func() (MCPClient, error) {
		attempt++

		mcpClient, err := c.newClient(cfg, c.opts)
		if err != nil {
			// Factory errors are config problems, not transient ones.
			return nil, backoff.Permanent(err)
		}

		if err := mcpClient.Initialize(ctx); err != nil {
			c.log(cfg.Name, logstore.LevelWarn,
				fmt.Sprintf("Connection attempt %d/%d failed", attempt, c.retries), err)
			logging.Warn("Connector", "Attempt %d/%d for server %s (%s) failed: %v",
				attempt, c.retries, cfg.Name, cfg.UUID, err)
			if errors.Is(err, ErrHandshakeFailed) {
				// The server answered and rejected the handshake; retrying
				// the same config cannot change the outcome.
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return mcpClient, nil
	}

	mcpClient, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.retries)),
	)
	if err != nil {
		c.log(cfg.Name, logstore.LevelError,
			fmt.Sprintf("Giving up on server after %d attempts", attempt), err)
		return nil, fmt.Errorf("failed to connect to server %s (%s): %w", cfg.Name, cfg.UUID, err)
	}

	connected := &ConnectedClient{
		Client: mcpClient,
		Config: cfg,
	}
	c.log(cfg.Name, logstore.LevelInfo, "Connected", nil)
	c.startStderrPump(cfg, mcpClient)
	return connected, nil
}

// startStderrPump streams a stdio subprocess's stderr into the log store,
// one line per entry. The goroutine exits when the subprocess closes its
// stderr, which happens on process exit.
func (c *Connector) startStderrPump(cfg ServerConfig, mcpClient MCPClient) {
	if c.logStore == nil {
		return
	}
	stdioClient, ok := mcpClient.(*StdioClient)
	if !ok {
		return
	}
	stderr, ok := stdioClient.Stderr()
	if !ok {
		return
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			c.logStore.AddLog(cfg.Name, logstore.LevelError, line, nil)
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
			logging.Debug("Connector", "Stderr stream for %s ended: %v", cfg.Name, err)
		}
	}()
}

func (c *Connector) log(serverName string, level logstore.Level, message string, err error) {
	if c.logStore == nil {
		return
	}
	c.logStore.AddLog(serverName, level, message, err)
}
