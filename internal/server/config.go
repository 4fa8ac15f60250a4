package server

import (
	"log/slog"

	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

type Config struct {
	Addr      string
	SharedDir string
	Transport transport.Provider
	Logger    *slog.Logger
	// History is optional; nil disables transfer records.
	History history.Recorder
	// MaxSessions caps concurrent sessions; 0 means unbounded.
	MaxSessions int
}
