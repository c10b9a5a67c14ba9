package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nx",
		Short:         "NeoXalle controller (nx): run reaction games on the pods",
		Long:          "nx talks to a NeoXalle hub, tracks which pods are connected, runs reaction, 1 vs 1, free play and endurance sessions, and keeps a local history of every finished session.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&app.hub.url, "hub", app.hub.url, "Hub websocket URL (env NX_HUB_URL)")
	flags.BoolVar(&app.hub.base64, "base64", app.hub.base64, "Base64 encode frames on the hub link (env NX_HUB_BASE64)")
	flags.BoolVar(&app.hub.simulate, "simulate", app.hub.simulate, "Use a simulated hub instead of a real one (env NX_SIMULATE)")
	flags.IntVar(&app.hub.simPods, "sim-pods", app.hub.simPods, "Number of pods on the simulated hub (env NX_SIM_PODS)")
	flags.StringVar(&app.hub.logLevel, "log-level", app.hub.logLevel, "Log level: debug, info, warn or error (env NX_LOG_LEVEL)")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return app.initLogger(cmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newScanCmd(app),
		newPlayCmd(app),
		newHistoryCmd(app),
		newPresetCmd(app),
	)

	return rootCmd
}
