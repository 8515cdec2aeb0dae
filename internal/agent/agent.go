package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stone-age-io/autoregister/internal/bootstrap"
	"github.com/stone-age-io/autoregister/internal/config"
	"github.com/stone-age-io/autoregister/internal/hostinfo"
	"github.com/stone-age-io/autoregister/internal/metrics"
	natsclient "github.com/stone-age-io/autoregister/internal/nats"
	"github.com/stone-age-io/autoregister/internal/netbox"
	"github.com/stone-age-io/autoregister/internal/reconcile"
	"github.com/stone-age-io/autoregister/internal/scheduler"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Notifier publishes the outcome of a run
type Notifier interface {
	Notify(ctx context.Context, event natsclient.RegistrationEvent) error
}

// Report is the outcome of one run
type Report struct {
	Host   hostinfo.HostInfo
	Result reconcile.Result
}

// Agent represents the main agent
type Agent struct {
	config     *config.Config
	logger     *zap.Logger
	prober     *hostinfo.Prober
	netbox     *netbox.Client
	reconciler *reconcile.Reconciler
	notifier   Notifier
	metrics    *metrics.TextfileWriter
	version    string
	tokenReady bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// New loads the configuration at configPath and creates an agent
func New(configPath string, version string) (*Agent, error) {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return NewWithConfig(cfg, logger, version)
}

// NewWithConfig creates an agent from an already loaded configuration
func NewWithConfig(cfg *config.Config, logger *zap.Logger, version string) (*Agent, error) {
	logger.Info("Starting autoregister",
		zap.String("version", version),
		zap.String("netbox_url", cfg.NetBox.URL),
		zap.Int("site_id", cfg.Site.ID))

	ctx, cancel := context.WithCancel(context.Background())

	client := netbox.NewClient(netbox.Options{
		URL:                cfg.NetBox.URL,
		Token:              cfg.NetBox.Token,
		Scheme:             cfg.NetBox.Auth.Scheme,
		Timeout:            cfg.NetBox.Timeout,
		InsecureSkipVerify: cfg.NetBox.InsecureSkipVerify,
		UserAgent:          "autoregister/" + version,
	}, logger.Named("netbox"))

	var routes hostinfo.RouteResolver
	switch cfg.Probe.RouteSource {
	case "proc":
		routes = hostinfo.NewProcRouteResolver()
	default:
		routes = hostinfo.NewCommandRouteResolver(hostinfo.NewCommandExecutor(cfg.Probe.CommandTimeout))
	}

	prober := hostinfo.NewProber(logger.Named("hostinfo"), routes, hostinfo.SystemAddressLookup{}, cfg.Probe.PrefixLength)
	if cfg.Hostname != "" {
		prober.WithHostname(hostinfo.StaticHostname(cfg.Hostname))
	}

	a := &Agent{
		config:     cfg,
		logger:     logger,
		prober:     prober,
		netbox:     client,
		reconciler: reconcile.New(client, logger.Named("reconcile")),
		version:    version,
		ctx:        ctx,
		cancel:     cancel,
	}

	if cfg.NATS.Enabled {
		a.notifier = natsclient.NewNotifier(&cfg.NATS, logger.Named("nats"))
	}
	if cfg.Metrics.Textfile != "" {
		a.metrics = metrics.NewTextfileWriter(cfg.Metrics.Textfile, logger)
	}

	return a, nil
}

// SiteConfig converts the site section of the configuration
func SiteConfig(cfg config.SiteConfig) reconcile.SiteConfig {
	site := reconcile.SiteConfig{
		SiteID:        cfg.ID,
		TagName:       cfg.Tag,
		InterfaceType: cfg.InterfaceType,
		RoleColor:     cfg.RoleColor,
		DeviceStatus:  cfg.DeviceStatus,
	}
	if cfg.UsesIDs() {
		site.IDs = &reconcile.IDTargets{RoleID: cfg.RoleID, DeviceTypeID: cfg.DeviceTypeID}
	} else {
		site.Names = &reconcile.NameTargets{
			Role:         cfg.Role,
			DeviceType:   cfg.DeviceType,
			Manufacturer: cfg.Manufacturer,
		}
	}
	return site
}

// RunOnce probes the host and registers it. Publishing the event and writing
// metrics are best effort; their failures are logged, not returned.
func (a *Agent) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	var report Report

	host, err := a.prober.Probe(ctx)
	if err != nil {
		a.record(ctx, report, start, err)
		return report, fmt.Errorf("failed to detect host network identity: %w", err)
	}
	report.Host = host

	a.logger.Info("Detected host",
		zap.String("hostname", host.Hostname),
		zap.String("interface", host.InterfaceName),
		zap.String("mac", host.MACAddress),
		zap.String("address", host.IPv4CIDR))

	if err := a.ensureToken(ctx); err != nil {
		a.record(ctx, report, start, err)
		return report, err
	}

	result, err := a.reconciler.Reconcile(ctx, host, SiteConfig(a.config.Site))
	report.Result = result
	a.record(ctx, report, start, err)
	if err != nil {
		return report, fmt.Errorf("failed to register device: %w", err)
	}

	a.logger.Info("Registration run complete",
		zap.String("status", string(result.Status)),
		zap.Int("device_id", result.DeviceID),
		zap.Int("created", len(result.Created)),
		zap.Duration("duration", time.Since(start)))

	return report, nil
}

// ensureToken resolves the NetBox token on first use, provisioning one if
// configured to. It runs only after a successful probe.
func (a *Agent) ensureToken(ctx context.Context) error {
	if a.tokenReady {
		return nil
	}
	token, err := bootstrap.ResolveToken(ctx, &a.config.NetBox, a.netbox, a.logger)
	if err != nil {
		return fmt.Errorf("failed to resolve NetBox token: %w", err)
	}
	a.netbox.SetToken(token)
	a.tokenReady = true
	return nil
}

// record writes metrics for every run and publishes an event for successful ones
func (a *Agent) record(ctx context.Context, report Report, start time.Time, runErr error) {
	if a.metrics != nil {
		summary := metrics.RunSummary{
			Timestamp:  start,
			Success:    runErr == nil,
			Created:    len(report.Result.Created),
			Hostname:   report.Host.Hostname,
			SiteID:     a.config.Site.ID,
			Registered: report.Result.DeviceID != 0,
		}
		if err := a.metrics.Write(summary); err != nil {
			a.logger.Warn("Failed to write metrics textfile", zap.Error(err))
		}
	}

	if a.notifier == nil || runErr != nil {
		return
	}

	osRelease, err := hostinfo.OSRelease()
	if err != nil {
		a.logger.Debug("OS release unavailable", zap.Error(err))
	}
	event := natsclient.NewRegistrationEvent(report.Host, report.Result, osRelease)
	if err := a.notifier.Notify(ctx, event); err != nil {
		a.logger.Warn("Failed to publish registration event",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// Run registers the host now and then on the configured interval until
// a shutdown signal arrives or Shutdown is called
func (a *Agent) Run() error {
	a.checkBackend()

	sched, err := scheduler.New(a.logger, "registration", a.config.Schedule.Interval, func(ctx context.Context) {
		if _, err := a.RunOnce(ctx); err != nil {
			a.logger.Error("Registration run failed", zap.Error(err))
		}
	}, a.ctx)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	sched.Start()

	a.logger.Info("Agent running",
		zap.Duration("interval", a.config.Schedule.Interval),
		zap.String("version", a.version))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		a.logger.Info("Received shutdown signal")
	case <-a.ctx.Done():
		a.logger.Info("Context cancelled")
	}

	if err := sched.Shutdown(); err != nil {
		a.logger.Error("Error shutting down scheduler", zap.Error(err))
	}
	return a.Shutdown()
}

// checkBackend logs the NetBox version, or a warning if it is unreachable
func (a *Agent) checkBackend() {
	ctx, cancel := context.WithTimeout(a.ctx, a.config.NetBox.Timeout)
	defer cancel()

	info, err := a.netbox.Status(ctx)
	if err != nil {
		a.logger.Warn("NetBox status check failed", zap.Error(err))
		return
	}
	a.logger.Info("Connected to NetBox", zap.String("netbox_version", info.NetBoxVersion))
}

// Shutdown cancels in-flight work and flushes the logger
func (a *Agent) Shutdown() error {
	a.logger.Info("Shutting down agent")
	a.cancel()
	a.logger.Sync()
	return nil
}

// initLogger creates and configures the logger with log rotation.
// An empty file name logs to the console only.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	// Parse log level
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// stdout carries the CLI's own output
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), level),
	}

	if cfg.File != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB, // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     28, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(fileWriter), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return logger, nil
}
