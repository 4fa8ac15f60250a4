package peer

import (
	"io"
	"log/slog"

	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

type Config struct {
	// SharedDir is where uploads are read from.
	SharedDir string
	// DownloadDir is where downloads are written to.
	DownloadDir string
	Transport   transport.Provider
	Logger      *slog.Logger
	History     history.Recorder
	// Out receives operator-facing output from Do and progress bars.
	Out      io.Writer
	Progress bool
}
