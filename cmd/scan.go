package cmd

import (
	"fmt"
	"time"

	sessionrender "github.com/neoxalle/nx/internal/adapters/render/session"
	"github.com/spf13/cobra"
)

func newScanCmd(app *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Ask the hub which pods are connected",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			session, err := app.openSession(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := session.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			slaves, err := runScanProgress(cmd.Context(), app.stderr, session.ctrl, timeout)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), sessionrender.Roster(slaves))
			return err
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultScanTimeout, "How long to wait for the hub to report pods")

	return cmd
}
