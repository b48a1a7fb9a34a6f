// File: cmd/services.go
package cmd

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/browser"
	"github.com/xkilldash9x/signupflow/internal/config"
	"github.com/xkilldash9x/signupflow/internal/confirm"
	"github.com/xkilldash9x/signupflow/internal/flow"
	"github.com/xkilldash9x/signupflow/internal/identity"
	"github.com/xkilldash9x/signupflow/internal/mailtm"
	"github.com/xkilldash9x/signupflow/internal/metrics"
	"github.com/xkilldash9x/signupflow/internal/network"
	"github.com/xkilldash9x/signupflow/internal/report"
)

// services are the long-lived clients every command builds from config.
type services struct {
	httpClient *http.Client
	mail       *mailtm.Client
	metrics    *metrics.Metrics
}

func newServices(cfg *config.Config, logger *zap.Logger) *services {
	httpClient := network.NewClient(network.ClientConfigFor(cfg.Mail, "signupflow/"+Version, logger.Named("httpclient")))

	return &services{
		httpClient: httpClient,
		mail:       mailtm.NewClient(cfg.Mail, httpClient, logger),
		metrics:    metrics.New(),
	}
}

func (s *services) close() {
	s.httpClient.CloseIdleConnections()
}

func (s *services) watcher(cfg *config.Config, logger *zap.Logger) (*confirm.Watcher, error) {
	return confirm.NewWatcher(s.mail, cfg.Watcher, cfg.Site.ConfirmationPattern, s.metrics, logger)
}

// newRunner assembles the full pipeline. launch is nil in production, where
// a local Chrome is started.
func (s *services) newRunner(cfg *config.Config, logger *zap.Logger, launch flow.Launcher) (*flow.Runner, error) {
	watcher, err := s.watcher(cfg, logger)
	if err != nil {
		return nil, err
	}
	strategy, err := identity.StrategyFromConfig(cfg.Identity)
	if err != nil {
		return nil, err
	}

	var observer browser.Observer
	if cfg.Browser.Instrument {
		observer = flow.NewLoggingObserver(logger)
	}
	driver, err := flow.NewDriver(cfg.Site, cfg.Session, observer, logger)
	if err != nil {
		return nil, err
	}

	if launch == nil {
		launch = flow.ChromeLauncher(cfg.Browser, logger)
	}

	return &flow.Runner{
		Provisioner: mailtm.NewProvisioner(s.mail, cfg.Mail.MaxCreateAttempts, s.metrics, logger),
		Watcher:     watcher,
		Reporter:    report.NewReporter(cfg.Report, s.httpClient, logger),
		Driver:      driver,
		Strategy:    strategy,
		Launch:      launch,
		Identity:    cfg.Identity,
		Metrics:     s.metrics,
		Logger:      logger,
	}, nil
}
