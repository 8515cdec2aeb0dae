package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stone-age-io/autoregister/internal/config"
	"go.uber.org/zap"
)

// Client publishes registration events over core NATS
type Client struct {
	conn   *nats.Conn
	logger *zap.Logger
	config *config.NATSConfig
}

// NewClient creates a new NATS client with the specified configuration
func NewClient(cfg *config.NATSConfig, logger *zap.Logger) (*Client, error) {
	opts, err := buildOptions(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Pass all URLs for automatic failover
	serverURLs := strings.Join(cfg.URLs, ",")
	logger.Info("Connecting to NATS", zap.Strings("urls", cfg.URLs))
	conn, err := nats.Connect(serverURLs, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS",
		zap.String("url", conn.ConnectedUrl()),
		zap.String("server_id", conn.ConnectedServerId()),
		zap.Bool("tls", conn.TLSRequired()))

	return &Client{
		conn:   conn,
		logger: logger,
		config: cfg,
	}, nil
}

// buildOptions translates the config into connection options
func buildOptions(cfg *config.NATSConfig, logger *zap.Logger) ([]nats.Option, error) {
	opts := []nats.Option{
		nats.Name("autoregister"),
		nats.MaxReconnects(0),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}

	if cfg.Timeout > 0 {
		opts = append(opts, nats.Timeout(cfg.Timeout))
	}

	// Configure TLS if enabled
	if cfg.TLS.Enabled {
		tlsConfig, err := createTLSConfig(&cfg.TLS, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}

		opts = append(opts, nats.Secure(tlsConfig))
		logger.Info("TLS enabled for NATS connection",
			zap.Bool("client_cert", cfg.TLS.CertFile != ""),
			zap.Bool("ca_cert", cfg.TLS.CAFile != ""),
			zap.Bool("skip_verify", cfg.TLS.InsecureSkipVerify))

		if cfg.TLS.InsecureSkipVerify {
			logger.Warn("TLS certificate verification is DISABLED - this is insecure and should only be used in development")
		}
	}

	// Add authentication based on config type
	switch cfg.Auth.Type {
	case "creds":
		logger.Info("Using credentials file authentication", zap.String("file", cfg.Auth.CredsFile))
		opts = append(opts, nats.UserCredentials(cfg.Auth.CredsFile))
	case "token":
		logger.Info("Using token authentication")
		opts = append(opts, nats.Token(cfg.Auth.Token))
	case "userpass":
		logger.Info("Using username/password authentication", zap.String("username", cfg.Auth.Username))
		opts = append(opts, nats.UserInfo(cfg.Auth.Username, cfg.Auth.Password))
	case "none", "":
		logger.Debug("Using no authentication")
	default:
		return nil, fmt.Errorf("invalid auth type: %s", cfg.Auth.Type)
	}

	return opts, nil
}

// createTLSConfig creates a TLS configuration based on the provided settings
func createTLSConfig(cfg *config.TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	// CA used to verify the server certificate
	if cfg.CAFile != "" {
		logger.Info("Loading CA certificate", zap.String("file", cfg.CAFile))

		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}

		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}

		tlsConfig.RootCAs = caCertPool
	}

	// Client certificate for mutual TLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		logger.Info("Loading client certificate",
			zap.String("cert", cfg.CertFile),
			zap.String("key", cfg.KeyFile))

		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}

		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// PublishEvent publishes the event and waits for the server to acknowledge
// the flush, bounded by the configured timeout
func (c *Client) PublishEvent(ctx context.Context, event RegistrationEvent) error {
	subject := Subject(c.config.SubjectPrefix, event.Hostname)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	flushCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	if err := c.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush publish to %s: %w", subject, err)
	}

	c.logger.Debug("Published registration event",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
		zap.Int("bytes", len(data)))
	return nil
}

// Drain flushes pending messages and closes the connection
func (c *Client) Drain(timeout time.Duration) error {
	if c.conn.IsClosed() {
		return nil
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- c.conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil {
			c.logger.Error("Error during NATS drain", zap.Error(err))
			return err
		}
		return nil
	case <-time.After(timeout):
		c.logger.Warn("NATS drain timeout, forcing close")
		c.conn.Close()
		return fmt.Errorf("drain timeout after %v", timeout)
	}
}
