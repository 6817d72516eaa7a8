// Package lifecycle owns the service's shared state: it starts the driver,
// builds the session registry and dispatcher on top of it, and tears all
// of it down in order on shutdown.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/hammer/pkg/config"
	"github.com/entrhq/hammer/pkg/dispatch"
	"github.com/entrhq/hammer/pkg/driver"
	"github.com/entrhq/hammer/pkg/logging"
	"github.com/entrhq/hammer/pkg/session"
)

// Manager holds the driver, registry and dispatcher for one service lifetime.
type Manager struct {
	driver     driver.Driver
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	logger     *logging.Logger
	startedAt  time.Time

	stopReaper context.CancelFunc
	reaperDone chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
	stopping     chan struct{}
}

// Health is a snapshot of service state.
type Health struct {
	Status         string    `json:"status"`
	Emoji          string    `json:"emoji"`
	BrowserRunning bool      `json:"browser_running"`
	ActiveSessions int       `json:"active_sessions"`
	Driver         string    `json:"driver"`
	Uptime         string    `json:"uptime"`
	Timestamp      time.Time `json:"timestamp"`
	Message        string    `json:"message"`
}

// StartDriver launches the backend selected in cfg.
func StartDriver(cfg config.DriverConfig) (driver.Driver, error) {
	opts := driver.LaunchOptions{
		Headless:        cfg.Headless,
		ExtraArgs:       cfg.ExtraArgs,
		ExecutablePath:  cfg.ExecutablePath,
		InstallBrowsers: cfg.InstallBrowsers,
	}

	switch cfg.Backend {
	case config.BackendPlaywright, "":
		return driver.StartPlaywright(opts)
	case config.BackendChromedp:
		return driver.StartChromedp(opts)
	default:
		return nil, fmt.Errorf("unsupported driver backend: %s", cfg.Backend)
	}
}

// Start launches the configured driver and builds a Manager around it.
// A driver that cannot start is fatal to the service.
func Start(cfg *config.Config) (*Manager, error) {
	logger := logging.NewLogger("lifecycle")
	logger.Infof("Starting %s driver (headless=%t)", cfg.Driver.Backend, cfg.Driver.Headless)

	d, err := StartDriver(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to start driver: %w", err)
	}

	m, err := New(cfg, d)
	if err != nil {
		if serr := d.Shutdown(); serr != nil {
			logger.Warnf("Failed to stop driver after setup error: %v", serr)
		}
		return nil, err
	}
	return m, nil
}

// New builds a Manager around an already running driver and starts the idle reaper.
func New(cfg *config.Config, d driver.Driver) (*Manager, error) {
	policy, err := dispatch.NewURLPolicy(cfg.Security.AllowedURLs, cfg.Security.DeniedURLs)
	if err != nil {
		return nil, fmt.Errorf("invalid url policy: %w", err)
	}

	registry := session.NewRegistry(d, session.Options{
		Profile: driver.Profile{
			UserAgent: cfg.Driver.UserAgent,
			Viewport: driver.Viewport{
				Width:  cfg.Driver.ViewportWidth,
				Height: cfg.Driver.ViewportHeight,
			},
		},
		Stealth:     cfg.Driver.Stealth,
		MaxSessions: cfg.Sessions.MaxSessions,
		IdleTimeout: cfg.Sessions.IdleTimeout,
		// A command gets one action timeout to finish before close pulls the page
		CloseTimeout: cfg.Actions.ActionTimeout,
	})

	dispatcher := dispatch.New(registry, dispatch.Options{
		NavigateTimeout:    cfg.Actions.NavigateTimeout,
		ActionTimeout:      cfg.Actions.ActionTimeout,
		DefaultSettleDelay: cfg.Actions.DefaultSettleDelay,
		MaxSettleDelay:     cfg.Actions.MaxSettleDelay,
		MaxExtractLength:   cfg.Actions.MaxExtractLength,
		Policy:             policy,
	})

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	m := &Manager{
		driver:     d,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logging.NewLogger("lifecycle"),
		startedAt:  time.Now(),
		stopReaper: stopReaper,
		reaperDone: make(chan struct{}),
		stopping:   make(chan struct{}),
	}

	go func() {
		defer close(m.reaperDone)
		registry.RunReaper(reaperCtx, cfg.Sessions.ReapInterval)
	}()

	m.logger.Infof("Driver %s ready", d.Name())
	return m, nil
}

// Dispatcher returns the command dispatcher.
func (m *Manager) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Registry returns the session registry.
func (m *Manager) Registry() *session.Registry {
	return m.registry
}

// Stopping is closed once Shutdown has begun.
func (m *Manager) Stopping() <-chan struct{} {
	return m.stopping
}

// Health reports driver liveness and the number of open sessions.
func (m *Manager) Health() Health {
	h := Health{
		Status:         "healthy",
		Emoji:          "💚",
		BrowserRunning: m.driver.Running(),
		ActiveSessions: m.registry.Len(),
		Driver:         m.driver.Name(),
		Uptime:         time.Since(m.startedAt).Round(time.Second).String(),
		Timestamp:      time.Now(),
		Message:        "✅ Service is running smoothly",
	}
	if !h.BrowserRunning {
		h.Status = "degraded"
		h.Emoji = "💔"
		h.Message = "❌ Browser is not running"
	}
	return h
}

// Shutdown stops the reaper, closes every session, then stops the driver.
// Sessions still busy when ctx ends are closed underneath their commands and
// the driver is stopped regardless. Only the first call does any work; later
// calls return its result.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownOnce.Do(func() {
		close(m.stopping)
		m.shutdownErr = m.shutdown(ctx)
	})
	return m.shutdownErr
}

func (m *Manager) shutdown(ctx context.Context) error {
	m.stopReaper()
	select {
	case <-m.reaperDone:
	case <-ctx.Done():
		m.logger.Warnf("Reaper did not stop before shutdown deadline")
	}

	closed := m.registry.CloseAll(ctx)
	m.logger.Infof("Closed %d sessions", closed)

	var errs []error
	if err := m.driver.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop driver: %w", err))
	}
	if err := ctx.Err(); err != nil {
		errs = append(errs, fmt.Errorf("shutdown deadline exceeded: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	m.logger.Infof("Driver %s stopped", m.driver.Name())
	return nil
}
