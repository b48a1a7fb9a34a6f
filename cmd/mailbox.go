// File: cmd/mailbox.go
package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/signupflow/internal/mailtm"
	"github.com/xkilldash9x/signupflow/internal/observability"
)

// mailboxOutput is printed by `mailbox`. Unlike mailtm.Mailbox it includes
// the secrets, since handing them out is the point of the command.
type mailboxOutput struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	Token     string `json:"token"`
	AccountID string `json:"accountId"`
}

func newMailboxCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mailbox",
		Short: "Provision a disposable mailbox and print its credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()
			svc := newServices(a.cfg, logger)
			defer svc.close()

			p := mailtm.NewProvisioner(svc.mail, a.cfg.Mail.MaxCreateAttempts, svc.metrics, logger)
			mb, err := p.CreateMailbox(cmd.Context())
			if err != nil {
				return err
			}

			data, err := json.MarshalIndent(mailboxOutput{
				Address:   mb.Address,
				Password:  mb.Password,
				Token:     mb.Token,
				AccountID: mb.AccountID,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode mailbox: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
