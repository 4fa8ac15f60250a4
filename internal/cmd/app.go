package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/rudransh-shrivastava/peershare/internal/config"
	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/rudransh-shrivastava/peershare/internal/logger"
	"github.com/rudransh-shrivastava/peershare/internal/peer"
	"github.com/rudransh-shrivastava/peershare/internal/server"
	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

// app holds what every command shares once the config is known.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	transport transport.Provider
	history   *history.Store
}

func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	level := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(logOut, level)

	serverTLS, err := transport.ServerTLSConfig(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	provider, err := transport.New(cfg.Transport, serverTLS, transport.ClientTLSConfig())
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		logger:    log,
		transport: provider,
	}

	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB, logger.NewLogrus(logOut, level))
		if err != nil {
			return nil, fmt.Errorf("opening history: %w", err)
		}
		a.history = store
	}
	return a, nil
}

// recorder keeps a nil store from turning into a non-nil interface.
func (a *app) recorder() history.Recorder {
	if a.history == nil {
		return nil
	}
	return a.history
}

func (a *app) newServer() (*server.Server, error) {
	return server.NewServer(server.Config{
		Addr:        a.cfg.ListenAddr(),
		SharedDir:   a.cfg.SharedDir,
		Transport:   a.transport,
		Logger:      a.logger,
		History:     a.recorder(),
		MaxSessions: a.cfg.MaxSessions,
	})
}

func (a *app) newClient(out io.Writer) *peer.Client {
	return peer.NewClient(peer.Config{
		SharedDir:   a.cfg.SharedDir,
		DownloadDir: a.cfg.DownloadDir,
		Transport:   a.transport,
		Logger:      a.logger,
		History:     a.recorder(),
		Out:         out,
		Progress:    a.cfg.Progress,
	})
}

func (a *app) Close() {
	if a.history != nil {
		_ = a.history.Close()
	}
}
