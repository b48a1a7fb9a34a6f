// File: internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	cdpruntime "github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/signupflow/internal/config"
)

const (
	launchTimeout         = 30 * time.Second
	defaultElementTimeout = 15 * time.Second
	browserCloseTimeout   = 10 * time.Second
)

// Manager owns the browser process, its root context and every tab opened
// from it.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	tracer *Tracer

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	mu    sync.Mutex
	pages map[*Page]struct{}
}

// NewManager launches the browser and verifies it is responsive.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		pages:  make(map[*Page]struct{}),
	}
	if cfg.Trace.Enabled {
		m.tracer = NewTracer(cfg.Trace.Path)
	}

	if err := m.launch(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launch(ctx context.Context) error {
	m.logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless))

	// The browser must outlive any single operation on ctx; only Shutdown ends it.
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(Detach(ctx), BuildAllocatorOptions(m.cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Debugf),
	)

	// The first Run starts the process. It must use the context returned by
	// NewContext: the browser lives exactly as long as that first context.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched and responsive.")
	return nil
}

// BuildAllocatorOptions assembles the exec allocator flags for cfg on top of
// chromedp's defaults.
func BuildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	return append(opts,
		chromedp.WindowSize(1366, 900),
		chromedp.WSURLReadTimeout(launchTimeout),
	)
}

// allocatorFlags maps command line flag names to values. A false value
// removes a flag set by the defaults.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":           cfg.Headless,
		"disable-gpu":        cfg.Headless,
		"disable-extensions": true,
		// Sites gate signups on navigator.webdriver.
		"enable-automation":      false,
		"disable-blink-features": "AutomationControlled",
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}

	// Needed inside containers.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
		flags["disable-setuid-sandbox"] = true
	}
	return flags
}

// Tracer returns the session tracer, or nil when tracing is disabled.
func (m *Manager) Tracer() *Tracer {
	return m.tracer
}

// NewPage opens a tab with network and runtime events enabled.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx)

	p := &Page{
		tabCtx:         tabCtx,
		cancel:         tabCancel,
		tracer:         m.tracer,
		elementTimeout: m.cfg.ElementTimeout,
		logger:         m.logger.Named("page"),
		onClose:        m.forget,
	}
	if p.elementTimeout <= 0 {
		p.elementTimeout = defaultElementTimeout
	}
	// Listen before the tab exists so no early event is lost.
	p.listener = newListener(tabCtx, m.tracer, p.logger)

	// Same rule as the browser: the first Run on a tab uses the tab context itself.
	if err := chromedp.Run(tabCtx, network.Enable(), cdpruntime.Enable()); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.mu.Lock()
	m.pages[p] = struct{}{}
	m.mu.Unlock()
	return p, nil
}

func (m *Manager) forget(p *Page) {
	m.mu.Lock()
	delete(m.pages, p)
	m.mu.Unlock()
}

// Shutdown stops tracing (writing the archive), closes every open page,
// then the browser context, then the browser process. It always runs every
// step and returns the collected errors for the caller to log.
func (m *Manager) Shutdown(ctx context.Context) error {
	ctx = Detach(ctx)
	var errs []error

	if m.tracer != nil {
		if err := m.tracer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop tracing: %w", err))
		} else {
			m.logger.Info("Trace archive written.", zap.String("path", m.tracer.Path()))
		}
	}

	m.mu.Lock()
	pages := make([]*Page, 0, len(m.pages))
	for p := range m.pages {
		pages = append(pages, p)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, p := range pages {
		p := p
		g.Go(func() error {
			return p.Close(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("close pages: %w", err))
	}

	if m.browserCancel != nil {
		closeCtx, cancel := context.WithTimeout(m.browserCtx, browserCloseTimeout)
		if err := chromedp.Cancel(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("close browser context: %w", err))
		}
		cancel()
		m.browserCancel()
	}

	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}

	m.logger.Info("Browser shut down.", zap.Int("pages_closed", len(pages)))
	return errors.Join(errs...)
}
