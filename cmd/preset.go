package cmd

import (
	"fmt"

	"github.com/neoxalle/nx/internal/domain"
	"github.com/spf13/cobra"
)

func newPresetCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preset",
		Short: "Manage custom free play presets",
	}

	cmd.AddCommand(
		newPresetListCmd(app),
		newPresetSaveCmd(app),
	)

	return cmd
}

func newPresetListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			presets, err := app.presets.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(presets) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No presets saved.")
				return err
			}
			for _, preset := range presets {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%ds\t%d pods\tplayed %d\n", preset.Name, preset.DurationSec, preset.Pods, preset.TimesPlayed)
			}
			return nil
		},
	}
}

func newPresetSaveCmd(app *app) *cobra.Command {
	var duration int
	var pods int

	cmd := &cobra.Command{
		Use:   "save <name>",
		Short: "Create or update a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preset, err := app.presets.Save(cmd.Context(), domain.Preset{Name: args[0], DurationSec: duration, Pods: pods})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved preset %s (%ds, %d pods)\n", preset.Name, preset.DurationSec, preset.Pods)
			return err
		},
	}

	cmd.Flags().IntVar(&duration, "duration", domain.DefaultDurationSec, "Session length in seconds")
	cmd.Flags().IntVar(&pods, "pods", domain.DefaultPresetPods, "Number of pods the player uses")

	return cmd
}
