package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/domain"
	"github.com/spf13/cobra"
)

const defaultScanTimeout = 3 * time.Second

var errNoPods = errors.New("no pods answered the scan")

func (a *app) openSession(cmd *cobra.Command) (*hubSession, error) {
	transport, err := a.newTransport()
	if err != nil {
		return nil, err
	}

	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}

	ctrl := application.NewController(application.ControllerDeps{
		Transport: transport,
		Recorder:  application.NewRecorder(store, nil, a.logger.Named("recorder")),
		Logger:    a.logger.Named("controller"),
	})
	if err := ctrl.Open(cmd.Context()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("connect to hub: %w", err)
	}

	return &hubSession{ctrl: ctrl, store: store}, nil
}

// scanRoster asks the hub for its pods and waits until at least one pod is
// connected or the timeout passes. The roster is returned either way.
func scanRoster(ctx context.Context, ctrl *application.Controller, timeout time.Duration) ([]domain.SlaveInfo, error) {
	updates := ctrl.Updates()
	if err := ctrl.Scan(ctx); err != nil {
		return nil, fmt.Errorf("scan pods: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case view, ok := <-updates:
			if !ok {
				return nil, application.ErrControllerClosed
			}
			if hasConnected(view.Slaves) {
				return view.Slaves, nil
			}
		case <-waitCtx.Done():
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return ctrl.Roster(ctx)
		}
	}
}

func hasConnected(slaves []domain.SlaveInfo) bool {
	for _, slave := range slaves {
		if slave.Connected {
			return true
		}
	}
	return false
}
