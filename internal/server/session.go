package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rudransh-shrivastava/peershare/internal/files"
	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/rudransh-shrivastava/peershare/internal/metrics"
	"github.com/rudransh-shrivastava/peershare/internal/protocol"
	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

type State uint8

const (
	StateGreeting State = iota
	StateAwaitingCommand
	StateListing
	StateDownloading
	StateUploading
	StateReplying
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateGreeting:
		return "GREETING"
	case StateAwaitingCommand:
		return "AWAITING_COMMAND"
	case StateListing:
		return "LISTING"
	case StateDownloading:
		return "DOWNLOADING"
	case StateUploading:
		return "UPLOADING"
	case StateReplying:
		return "REPLYING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// session owns one peer stream from greeting to close. Commands are handled
// strictly one at a time; an upload always ends the session.
type session struct {
	ctx       context.Context
	id        uint64
	peer      string
	stream    transport.Stream
	r         *bufio.Reader
	sharedDir string
	history   history.Recorder
	logger    *slog.Logger

	state     State
	closeOnce sync.Once
}

func (s *Server) handleSession(ctx context.Context, stream transport.Stream) {
	sess := s.newSession(ctx, stream)
	s.logger.Info("Peer connected", "peer", sess.peer, "session", sess.id)
	metrics.SessionStarted()

	err := sess.run()
	metrics.SessionEnded(err != nil)
	if err != nil {
		s.logger.Error("Session failed", "peer", sess.peer, "session", sess.id, "error", err)
	}
	s.logger.Info("Peer disconnected", "peer", sess.peer, "session", sess.id)
}

func (s *Server) newSession(ctx context.Context, stream transport.Stream) *session {
	peer := "unknown"
	if addr := stream.RemoteAddr(); addr != nil {
		peer = addr.String()
	}

	return &session{
		ctx:       context.WithoutCancel(ctx),
		id:        s.nextID.Add(1),
		peer:      peer,
		stream:    stream,
		r:         bufio.NewReaderSize(stream, protocol.ChunkSize),
		sharedDir: s.config.SharedDir,
		history:   s.config.History,
		logger:    s.logger,
		state:     StateGreeting,
	}
}

func (s *session) run() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session panic: %v", r)
		}
		s.transition(StateTerminated)
		s.close()
	}()

	if err := protocol.WriteFrame(s.stream, protocol.Greeting); err != nil {
		return fmt.Errorf("sending greeting: %w", err)
	}

	for {
		s.transition(StateAwaitingCommand)

		cmd, err := protocol.ReadCommand(s.r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading command: %w", err)
		}
		metrics.CommandReceived(cmd.Kind().String())

		next, err := s.dispatch(cmd)
		if err != nil {
			return err
		}
		if next == StateTerminated {
			return nil
		}
	}
}

func (s *session) dispatch(cmd protocol.Command) (State, error) {
	switch c := cmd.(type) {
	case protocol.Empty:
		return StateTerminated, nil

	case protocol.List:
		s.transition(StateListing)
		return StateAwaitingCommand, s.list()

	case protocol.Download:
		s.transition(StateDownloading)
		return StateAwaitingCommand, s.download(c.Filename)

	case protocol.Upload:
		s.transition(StateUploading)
		return s.upload(c.Filename)

	default:
		s.transition(StateReplying)
		return StateAwaitingCommand, protocol.WriteFrame(s.stream, protocol.InvalidCommand)
	}
}

func (s *session) list() error {
	names, err := files.List(s.sharedDir)
	if err != nil {
		return fmt.Errorf("listing shared folder: %w", err)
	}

	reply := protocol.EmptyListing
	if len(names) > 0 {
		reply = strings.Join(names, "\n")
	}
	return protocol.WriteFrame(s.stream, reply)
}

func (s *session) download(name string) error {
	f, size, err := files.Open(s.sharedDir, name)
	if errors.Is(err, files.ErrNotFound) || errors.Is(err, files.ErrUnsafePath) {
		s.logger.Debug("Requested file not available", "peer", s.peer, "file", name, "error", err)
		return protocol.WriteFrame(s.stream, protocol.NotFound)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	if err := protocol.WriteFrame(s.stream, protocol.Found); err != nil {
		return err
	}

	n, err := protocol.SendBody(s.stream, f, size)
	s.record(history.DirectionDownload, name, n, err)
	if err != nil {
		return fmt.Errorf("sending %s: %w", name, err)
	}

	s.logger.Info("Sent file", "peer", s.peer, "file", name, "bytes", n)
	return nil
}

func (s *session) upload(name string) (State, error) {
	path, err := files.Resolve(s.sharedDir, name)
	if err != nil {
		s.logger.Warn("Rejected upload", "peer", s.peer, "file", name, "error", err)
		return StateAwaitingCommand, protocol.WriteFrame(s.stream, protocol.UploadRejected)
	}

	out, err := files.Create(path)
	if err != nil {
		s.logger.Warn("Cannot store upload", "peer", s.peer, "file", name, "error", err)
		return StateAwaitingCommand, protocol.WriteFrame(s.stream, protocol.UploadRejected)
	}
	defer out.Abort()

	if err := protocol.WriteFrame(s.stream, protocol.Ready); err != nil {
		return StateTerminated, err
	}

	n, err := protocol.ReceiveBody(out, s.r)
	if err == nil {
		err = out.Commit()
	}
	s.record(history.DirectionUpload, name, n, err)
	if err != nil {
		return StateTerminated, fmt.Errorf("receiving %s: %w", name, err)
	}

	s.logger.Info("Received upload", "peer", s.peer, "file", name, "bytes", n)
	return StateTerminated, protocol.WriteFrame(s.stream, protocol.UploadComplete)
}

func (s *session) record(direction, name string, n int64, err error) {
	status := history.StatusOK
	if err != nil {
		status = history.StatusFailed
	}
	metrics.TransferDone(history.RoleServer, direction, status, n)

	if s.history == nil {
		return
	}

	t := history.Transfer{
		Role:      history.RoleServer,
		Direction: direction,
		Peer:      s.peer,
		Filename:  name,
		Bytes:     n,
		Status:    status,
	}
	if err != nil {
		t.Error = err.Error()
	}
	if recErr := s.history.Record(s.ctx, t); recErr != nil {
		s.logger.Warn("Failed to record transfer", "file", name, "error", recErr)
	}
}

func (s *session) transition(next State) {
	if s.state == next {
		return
	}
	s.logger.Debug("Session state", "session", s.id, "from", s.state.String(), "to", next.String())
	s.state = next
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		_ = s.stream.Close()
	})
}
