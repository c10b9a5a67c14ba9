package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	sessionrender "github.com/neoxalle/nx/internal/adapters/render/session"
	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/domain"
	"github.com/spf13/cobra"
)

const stopGrace = 2 * time.Second

type playOptions struct {
	mode        string
	players     int
	duration    int
	pod         int
	preset      string
	scanTimeout time.Duration
}

func newPlayCmd(app *app) *cobra.Command {
	var opts playOptions

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Run one game session on the pods",
		Long:  "play scans the hub, starts a session in the chosen mode and prints the result. Ctrl-C stops the session early; the partial result is still recorded.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd, app, opts)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "mode", string(domain.ModeFreePlay), "Game mode: reaction, 1v1, free_play or endurance")
	cmd.Flags().IntVar(&opts.players, "players", 0, "Number of players, 1 or 2 (default: 2 for 1v1, otherwise 1)")
	cmd.Flags().IntVar(&opts.duration, "duration", 0, "Session length in seconds for timed modes (default: mode default)")
	cmd.Flags().IntVar(&opts.pod, "pod", 0, "Pod for a single player reaction test (default: lowest connected)")
	cmd.Flags().StringVar(&opts.preset, "preset", "", "Play a saved preset instead of --mode")
	cmd.Flags().DurationVar(&opts.scanTimeout, "scan-timeout", defaultScanTimeout, "How long to wait for the hub to report pods")

	return cmd
}

func runPlay(cmd *cobra.Command, app *app, opts playOptions) (err error) {
	selection, err := resolveSelection(cmd.Context(), app, opts)
	if err != nil {
		return err
	}

	players := opts.players
	if players == 0 {
		players = 1
		if selection.Mode == domain.ModeOneVOne {
			players = 2
		}
	}

	session, err := app.openSession(cmd)
	if err != nil {
		return err
	}
	var boardDone chan struct{}
	defer func() {
		if closeErr := session.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if boardDone != nil {
			<-boardDone
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	slaves, err := scanRoster(ctx, session.ctrl, opts.scanTimeout)
	if err != nil {
		return err
	}
	if !hasConnected(slaves) {
		return errNoPods
	}

	updates := session.ctrl.Updates()
	if err := startSession(ctx, session.ctrl, selection, players, domain.SlaveID(opts.pod), slaves); err != nil {
		return err
	}

	boardDone = make(chan struct{})
	go func() {
		defer close(boardDone)
		renderBoard(app.stderr, updates)
	}()

	record, err := session.ctrl.WaitFinished(ctx)
	if err != nil {
		if ctx.Err() == nil {
			return err
		}
		record, err = stopSession(cmd.Context(), session.ctrl)
		if err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nsaved as %s\n", sessionrender.Result(record), record.ID)
	return err
}

func resolveSelection(ctx context.Context, app *app, opts playOptions) (application.SelectMode, error) {
	if opts.preset != "" {
		return app.presets.Use(ctx, opts.preset)
	}

	mode, err := domain.ParseGameMode(opts.mode)
	if err != nil {
		return application.SelectMode{}, err
	}
	duration := opts.duration
	if duration <= 0 {
		duration = mode.DefaultDuration()
	}
	return application.SelectMode{Mode: mode, DurationSec: duration}, nil
}

func startSession(ctx context.Context, ctrl *application.Controller, selection application.SelectMode, players int, pod domain.SlaveID, slaves []domain.SlaveInfo) error {
	if err := ctrl.Submit(ctx, selection); err != nil {
		return fmt.Errorf("select mode: %w", err)
	}
	if err := ctrl.Submit(ctx, application.SelectPlayers{NumPlayers: players}); err != nil {
		return fmt.Errorf("select players: %w", err)
	}
	if selection.Mode != domain.ModeReaction {
		return nil
	}

	if players == 1 {
		if pod == 0 {
			pod = firstConnected(slaves)
		}
		if err := ctrl.Submit(ctx, application.SelectPod{Slave: pod}); err != nil {
			return fmt.Errorf("select pod %d: %w", pod, err)
		}
	}
	if err := ctrl.Submit(ctx, application.StartTest{}); err != nil {
		return fmt.Errorf("start reaction test: %w", err)
	}
	return nil
}

// stopSession ends a running session after an interrupt and returns the
// partial record.
func stopSession(parent context.Context, ctrl *application.Controller) (domain.SessionRecord, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), stopGrace)
	defer cancel()

	if err := ctrl.Submit(ctx, application.Stop{}); err != nil {
		if errors.Is(err, application.ErrInvalidInput) {
			return domain.SessionRecord{}, context.Canceled
		}
		return domain.SessionRecord{}, fmt.Errorf("stop session: %w", err)
	}
	return ctrl.WaitFinished(ctx)
}

func renderBoard(w io.Writer, updates <-chan application.View) {
	last := ""
	for view := range updates {
		if !view.Phase.Active() {
			continue
		}
		line := sessionrender.Board(view)
		if line == last {
			continue
		}
		last = line
		_, _ = fmt.Fprintln(w, line)
	}
}

func firstConnected(slaves []domain.SlaveInfo) domain.SlaveID {
	for _, slave := range slaves {
		if slave.Connected {
			return slave.ID
		}
	}
	return 0
}
