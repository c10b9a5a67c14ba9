package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	sessionrender "github.com/neoxalle/nx/internal/adapters/render/session"
	sqliterepo "github.com/neoxalle/nx/internal/adapters/repo/sqlite"
	tomlrepo "github.com/neoxalle/nx/internal/adapters/repo/toml"
	"github.com/neoxalle/nx/internal/adapters/transport/simhub"
	wstransport "github.com/neoxalle/nx/internal/adapters/transport/websocket"
	"github.com/neoxalle/nx/internal/application"
	"github.com/neoxalle/nx/internal/config"
	"github.com/neoxalle/nx/internal/domain"
	"github.com/neoxalle/nx/internal/logging"
	"github.com/neoxalle/nx/internal/ports"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var errNoHub = errors.New("no hub configured: set --hub or NX_HUB_URL, or pass --simulate")

type app struct {
	env             config.Env
	presets         *application.PresetService
	historyPath     string
	historyRenderer func([]domain.SessionRecord, application.HistoryStats, sessionrender.RenderOptions) (string, error)
	hub             hubOptions
	logger          *zap.Logger
	stderr          io.Writer
	now             func() time.Time
}

type hubOptions struct {
	url      string
	base64   bool
	simulate bool
	simPods  int
	logLevel string
}

func wireApp() (*app, error) {
	env, err := config.ParseEnv()
	if err != nil {
		return nil, fmt.Errorf("wire environment: %w", err)
	}

	cfg, err := config.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire config: %w", err)
	}

	presetRepo, err := tomlrepo.NewRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("wire preset repository: %w", err)
	}

	historyPath, err := config.Path(cfg, config.HistoryPathKey)
	if err != nil {
		return nil, fmt.Errorf("wire history path: %w", err)
	}

	logLevel := env.LogLevel
	if logLevel == "" {
		logLevel = cfg.GetString(config.LogLevelKey)
	}

	return &app{
		env:             env,
		presets:         application.NewPresetService(presetRepo),
		historyPath:     historyPath,
		historyRenderer: sessionrender.RenderHistory,
		hub: hubOptions{
			url:      env.HubURL,
			base64:   env.HubBase64,
			simulate: env.Simulate,
			simPods:  env.SimPods,
			logLevel: logLevel,
		},
		logger: zap.NewNop(),
		stderr: io.Discard,
		now:    time.Now,
	}, nil
}

// initLogger points the logger at w. Everything else the session draws on
// stderr goes through the same locked writer so lines never interleave.
func (a *app) initLogger(w io.Writer) error {
	sink := zapcore.Lock(zapcore.AddSync(w))
	logger, err := logging.New(a.hub.logLevel, sink)
	if err != nil {
		return err
	}
	a.logger = logger
	a.stderr = sink
	return nil
}

// openHistory opens the session history database. Callers close it.
func (a *app) openHistory() (*sqliterepo.Store, error) {
	store, err := sqliterepo.Open(a.historyPath)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return store, nil
}

func (a *app) newTransport() (ports.Transport, error) {
	if a.hub.simulate {
		return simhub.New(simhub.Config{
			Pods:   a.hub.simPods,
			Logger: a.logger.Named("simhub"),
		}), nil
	}
	if a.hub.url == "" {
		return nil, errNoHub
	}
	return wstransport.New(wstransport.Config{
		URL:         a.hub.url,
		Base64:      a.hub.base64,
		DialTimeout: a.env.ConnectTimeout,
		Logger:      a.logger.Named("websocket"),
	}), nil
}

// hubSession is a connected controller plus the history store that receives
// its finished sessions.
type hubSession struct {
	ctrl  *application.Controller
	store *sqliterepo.Store
}

func (s *hubSession) Close() error {
	return errors.Join(s.ctrl.Close(), s.store.Close())
}
