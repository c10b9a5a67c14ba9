package cmd

import (
	"encoding/json"
	"fmt"

	sessionrender "github.com/neoxalle/nx/internal/adapters/render/session"
	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/domain"
	"github.com/spf13/cobra"
)

// recordJSON is the exported form of a session record. Map keys are pod ids.
type recordJSON struct {
	ID         string           `json:"id"`
	Timestamp  int64            `json:"timestamp"`
	GameType   string           `json:"gameType"`
	Duration   int              `json:"duration"`
	Players    int              `json:"players"`
	Scores     map[string]int   `json:"scores"`
	Winner     *int             `json:"winner"`
	ReactionMs map[string]int64 `json:"reactionMs,omitempty"`
}

func toRecordJSON(record domain.SessionRecord) recordJSON {
	out := recordJSON{
		ID:        record.ID,
		Timestamp: record.Timestamp.UnixMilli(),
		GameType:  string(record.GameType),
		Duration:  record.DurationSec,
		Players:   record.Players,
		Scores:    make(map[string]int, len(record.Scores)),
	}
	for id, score := range record.Scores {
		out.Scores[id.String()] = score
	}
	if record.HasWinner {
		winner := int(record.Winner)
		out.Winner = &winner
	}
	if len(record.ReactionMs) > 0 {
		out.ReactionMs = make(map[string]int64, len(record.ReactionMs))
		for id, ms := range record.ReactionMs {
			out.ReactionMs[id.String()] = ms
		}
	}
	return out
}

func newHistoryCmd(app *app) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			history := application.NewHistoryService(store)
			records, err := history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				out := make([]recordJSON, 0, len(records))
				for _, record := range records {
					out = append(out, toRecordJSON(record))
				}
				return writeJSON(cmd, out)
			}

			stats, err := history.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rendered, err := app.historyRenderer(records, stats, sessionrender.RenderOptions{Now: app.now()})
			if err != nil {
				return fmt.Errorf("render history: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of sessions to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	cmd.AddCommand(
		newHistoryShowCmd(app),
		newHistoryClearCmd(app),
	)

	return cmd
}

func newHistoryShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			record, err := application.NewHistoryService(store).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, toRecordJSON(record))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sessionrender.Result(record))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newHistoryClearCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil && err == nil {
					err = closeErr
				}
			}()

			if err := application.NewHistoryService(store).Clear(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return err
		},
	}
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
