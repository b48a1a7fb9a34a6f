// File: cmd/run.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/signupflow/internal/flow"
	"github.com/xkilldash9x/signupflow/internal/observability"
)

// newRunCmd creates the `run` command, which executes the whole pipeline once.
// A nil launch starts a local Chrome.
func newRunCmd(a *app, launch flow.Launcher) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the signup and trial activation flow once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := a.cfg

			svc := newServices(cfg, logger)
			defer svc.close()

			runner, err := svc.newRunner(cfg, logger, launch)
			if err != nil {
				return fmt.Errorf("failed to assemble pipeline: %w", err)
			}

			res, runErr := runner.Run(ctx)

			// Metrics are exported on failure too.
			if err := svc.metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				logger.Warn("Could not export metrics.", zap.Error(err))
			}
			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:          %s\n", res.RunID)
			fmt.Fprintf(out, "email:        %s\n", res.Identity.Email)
			fmt.Fprintf(out, "password:     %s\n", res.Identity.Password)
			fmt.Fprintf(out, "login:        %s\n", res.DesiredLogin)
			fmt.Fprintf(out, "confirmation: %s\n", res.ConfirmationURL)
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.Bool("headless", true, "run the browser without a window")
	bindFlag(flags, "headless", "browser.headless")
	flags.Bool("trace", true, "record a trace archive of the browser session")
	bindFlag(flags, "trace", "browser.trace.enabled")
	flags.String("trace-path", "", "where to write the trace archive")
	bindFlag(flags, "trace-path", "browser.trace.path")
	flags.String("webhook", "", "result webhook URL")
	bindFlag(flags, "webhook", "report.endpoint")
	flags.String("job-id", "", "job identifier sent with the result")
	bindFlag(flags, "job-id", "report.job_id")
	flags.String("login-strategy", "", "how the trial login is chosen (random or fixed)")
	bindFlag(flags, "login-strategy", "identity.login_strategy")
	flags.String("login", "", "trial login for the fixed strategy")
	bindFlag(flags, "login", "identity.fixed_login")
	flags.String("metrics-textfile", "", "write Prometheus metrics to this file when the run ends")
	bindFlag(flags, "metrics-textfile", "metrics.textfile")
	return runCmd
}
