// File: cmd/watch.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/signupflow/internal/observability"
)

func newWatchCmd(a *app) *cobra.Command {
	var token string

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Wait for a confirmation link in an existing mailbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			logger := observability.GetLogger()
			svc := newServices(a.cfg, logger)
			defer svc.close()

			w, err := svc.watcher(a.cfg, logger)
			if err != nil {
				return err
			}
			link, err := w.WaitForConfirmationLink(cmd.Context(), token)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		},
	}

	flags := watchCmd.Flags()
	flags.StringVar(&token, "token", "", "bearer token of the mailbox to watch")
	flags.Duration("timeout", 0, "give up after this long")
	bindFlag(flags, "timeout", "watcher.timeout")
	flags.String("pattern", "", "regular expression the link must match")
	bindFlag(flags, "pattern", "site.confirmation_pattern")
	return watchCmd
}
