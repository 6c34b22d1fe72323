// internal/browser/manager.go
package browser

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"go.uber.org/zap"

	"github.com/brit/playwrightium/internal/browser/session"
	"github.com/brit/playwrightium/internal/config"
	"github.com/brit/playwrightium/internal/transport"
	"github.com/brit/playwrightium/internal/transport/cdp"
	"github.com/brit/playwrightium/internal/transport/htmldoc"
	"github.com/brit/playwrightium/pkg/webdriver"
)

// ErrShutdown is returned by NewSession once Shutdown has begun.
var ErrShutdown = errors.New("browser manager is shut down")

// Manager creates webdriver sessions on the configured transport and
// tracks them so they can all be closed together.
type Manager struct {
	cfg    *config.Config
	logger *zap.Logger

	htmldocOpts []htmldoc.Option

	mu       sync.Mutex
	sessions map[string]*webdriver.Driver
	closing  bool
	wg       sync.WaitGroup
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithHTMLDocOptions passes extra options to every htmldoc transport, such
// as behaviors standing in for page script.
func WithHTMLDocOptions(opts ...htmldoc.Option) ManagerOption {
	return func(m *Manager) { m.htmldocOpts = append(m.htmldocOpts, opts...) }
}

// NewManager creates a manager. No browser is started until NewSession.
func NewManager(cfg *config.Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		sessions: make(map[string]*webdriver.Driver),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger.Debug("Browser manager created.", zap.String("transport", cfg.Browser.Transport))
	return m
}

// Timeouts maps the configured timeouts onto a session's.
func (m *Manager) Timeouts() webdriver.Timeouts {
	t := m.cfg.Timeouts
	return webdriver.Timeouts{Alert: t.Alert, Script: t.Script, Settle: t.Settle, Quit: t.Quit}
}

func (m *Manager) newTransport() (transport.Transport, error) {
	bc := m.cfg.Browser
	switch bc.Transport {
	case config.TransportCDP:
		args := append([]string{}, bc.Args...)
		if bc.IgnoreTLSErrors {
			args = append(args, "--ignore-certificate-errors")
		}
		return cdp.New(cdp.Config{
			Headless:          bc.Headless,
			ExecPath:          bc.ExecPath,
			Args:              args,
			WindowWidth:       bc.WindowWidth,
			WindowHeight:      bc.WindowHeight,
			UserAgent:         bc.UserAgent,
			NavigationTimeout: m.cfg.Timeouts.Navigation,
		}, m.logger), nil

	case config.TransportHTMLDoc:
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		client := &http.Client{Jar: jar, Timeout: m.cfg.Timeouts.Navigation}
		if bc.IgnoreTLSErrors {
			client.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
		}
		opts := []htmldoc.Option{
			htmldoc.WithLogger(m.logger),
			htmldoc.WithHTTPClient(client),
			htmldoc.WithMaxFrameDepth(bc.MaxFrameDepth),
		}
		return htmldoc.New(append(opts, m.htmldocOpts...)...), nil
	}
	return nil, fmt.Errorf("unknown transport %q", bc.Transport)
}

// NewSession starts a browser and a session on it. Release the session
// with Release, or leave it to Shutdown.
func (m *Manager) NewSession(ctx context.Context) (*webdriver.Driver, error) {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	m.wg.Add(1)
	m.mu.Unlock()

	tr, err := m.newTransport()
	if err != nil {
		m.wg.Done()
		return nil, err
	}
	d, err := webdriver.New(ctx, tr, webdriver.WithLogger(m.logger), webdriver.WithTimeouts(m.Timeouts()))
	if err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := m.register(ctx, d); err != nil {
		return nil, err
	}
	m.logger.Info("New session created.", zap.String("session_id", d.ID()))
	return d, nil
}

// register tracks d, or quits it when Shutdown started while it was being
// created. The caller holds one count on wg for d.
func (m *Manager) register(ctx context.Context, d *webdriver.Driver) error {
	m.mu.Lock()
	if !m.closing {
		m.sessions[d.ID()] = d
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	defer m.wg.Done()
	if err := d.Quit(session.Detach(ctx)); err != nil {
		m.logger.Warn("Failed to quit session created during shutdown.", zap.String("session_id", d.ID()), zap.Error(err))
	}
	return ErrShutdown
}

// Release quits a session created by this manager.
func (m *Manager) Release(ctx context.Context, d *webdriver.Driver) error {
	m.mu.Lock()
	_, ok := m.sessions[d.ID()]
	delete(m.sessions, d.ID())
	m.mu.Unlock()
	if !ok {
		return nil
	}
	defer m.wg.Done()
	err := d.Quit(ctx)
	m.logger.Debug("Session removed from manager.", zap.String("session_id", d.ID()))
	return err
}

// Active reports how many sessions are open.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown quits every open session and refuses new ones. It returns when
// all sessions are closed or ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	open := make([]*webdriver.Driver, 0, len(m.sessions))
	for _, d := range m.sessions {
		open = append(open, d)
	}
	m.mu.Unlock()
	m.logger.Info("Shutting down browser manager.", zap.Int("sessions", len(open)))

	errs := make(chan error, len(open))
	for _, d := range open {
		go func(d *webdriver.Driver) {
			errs <- m.Release(session.Detach(ctx), d)
		}(d)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close.", zap.Error(ctx.Err()))
		return ctx.Err()
	}

	var joined error
	for range open {
		joined = errors.Join(joined, <-errs)
	}
	m.logger.Info("Browser manager shutdown complete.")
	return joined
}
