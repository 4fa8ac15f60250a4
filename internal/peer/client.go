// Package peer drives the client side of a session against a remote node.
package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"

	"github.com/rudransh-shrivastava/peershare/internal/files"
	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/rudransh-shrivastava/peershare/internal/metrics"
	"github.com/rudransh-shrivastava/peershare/internal/protocol"
	"github.com/rudransh-shrivastava/peershare/internal/transport"
)

var (
	ErrNoTransport       = errors.New("peer: no transport provider configured")
	ErrNotFound          = errors.New("file not found on peer")
	ErrLocalFileNotFound = errors.New("file not found in shared folder")
	ErrUploadRejected    = errors.New("peer rejected upload")
	ErrSessionFinished   = errors.New("session finished")
	ErrUnexpectedReply   = errors.New("unexpected reply from peer")
	ErrEmptyCommand      = errors.New("empty command")
	ErrTransferCommand   = errors.New("transfer commands need Download or Upload")
)

type Client struct {
	config Config
	logger *slog.Logger
}

func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}

	return &Client{
		config: cfg,
		logger: logger,
	}
}

// Connect dials addr and waits for the peer's greeting.
func (c *Client) Connect(ctx context.Context, addr string) (*Conn, error) {
	if c.config.Transport == nil {
		return nil, ErrNoTransport
	}

	c.logger.Debug("Connecting to peer", "peer", addr)
	stream, err := c.config.Transport.Dial(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	conn := &Conn{
		client: c,
		addr:   addr,
		stream: stream,
		r:      bufio.NewReaderSize(stream, protocol.ChunkSize),
	}

	stop := conn.watch(ctx)
	greeting, err := protocol.ReadFrame(conn.r)
	stop()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("reading greeting from %s: %w", addr, err)
	}
	conn.greeting = greeting

	c.logger.Info("Connected to peer", "peer", addr)
	return conn, nil
}

// Conn is one session with a remote peer. It is not safe for concurrent use;
// commands are answered strictly in order.
type Conn struct {
	client   *Client
	addr     string
	stream   transport.Stream
	r        *bufio.Reader
	greeting string

	finished  bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func (c *Conn) Greeting() string {
	return c.greeting
}

func (c *Conn) Addr() string {
	return c.addr
}

// Finished reports whether the remote side has ended the session after an
// upload.
func (c *Conn) Finished() bool {
	return c.finished
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.stream.Close()
	})
	return err
}

func (c *Conn) List(ctx context.Context) ([]string, error) {
	text, err := c.roundTrip(ctx, protocol.Format(protocol.List{}))
	if err != nil {
		return nil, err
	}
	if text == protocol.EmptyListing {
		return []string{}, nil
	}
	return strings.Split(text, "\n"), nil
}

// Download fetches name from the peer into the download folder and returns
// the number of bytes received.
func (c *Conn) Download(ctx context.Context, name string) (int64, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}

	dest, err := files.Resolve(c.client.config.DownloadDir, name)
	if err != nil {
		return 0, err
	}
	// created before asking so a local failure never strands a body on the wire
	out, err := files.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("preparing %s: %w", name, err)
	}
	defer out.Abort()

	stop := c.watch(ctx)
	defer stop()

	status, err := c.exchange(protocol.Format(protocol.Download{Filename: name}))
	if err != nil {
		return 0, err
	}
	switch status {
	case protocol.Found:
	case protocol.NotFound:
		return 0, fmt.Errorf("%w: %s", ErrNotFound, name)
	default:
		return 0, c.unexpected(status)
	}

	size, err := protocol.ReadSize(c.r)
	if err != nil {
		_ = c.Close()
		return 0, fmt.Errorf("reading size of %s: %w", name, err)
	}

	var dst io.Writer = out
	bar := c.progress(size, "Downloading "+name)
	if bar != nil {
		dst = io.MultiWriter(out, bar)
	}

	n, err := protocol.CopyBody(dst, c.r, size)
	if err == nil {
		err = out.Commit()
	}
	c.finishProgress(bar)
	c.record(history.DirectionDownload, name, n, err)
	if err != nil {
		_ = c.Close()
		return n, fmt.Errorf("downloading %s: %w", name, err)
	}

	c.client.logger.Info("Downloaded file", "peer", c.addr, "file", name, "bytes", n)
	return n, nil
}

// Upload sends name from the shared folder to the peer. The peer ends the
// session once the upload completes, so the Conn is closed afterwards.
func (c *Conn) Upload(ctx context.Context, name string) (int64, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}

	f, size, err := files.Open(c.client.config.SharedDir, name)
	if errors.Is(err, files.ErrNotFound) || errors.Is(err, files.ErrUnsafePath) {
		return 0, fmt.Errorf("%w: %s", ErrLocalFileNotFound, name)
	}
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	stop := c.watch(ctx)
	defer stop()

	reply, err := c.exchange(protocol.Format(protocol.Upload{Filename: name}))
	if err != nil {
		return 0, err
	}
	switch reply {
	case protocol.Ready:
	case protocol.UploadRejected:
		return 0, fmt.Errorf("%w: %s", ErrUploadRejected, name)
	default:
		return 0, c.unexpected(reply)
	}

	var src io.Reader = f
	bar := c.progress(size, "Uploading "+name)
	if bar != nil {
		src = io.TeeReader(f, bar)
	}

	n, err := protocol.SendBody(c.stream, src, size)
	c.finishProgress(bar)
	if err == nil {
		reply, err = protocol.ReadFrame(c.r)
		if err == nil && reply != protocol.UploadComplete {
			err = fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
		}
	}

	c.finished = true
	_ = c.Close()
	c.record(history.DirectionUpload, name, n, err)
	if err != nil {
		return n, fmt.Errorf("uploading %s: %w", name, err)
	}

	c.client.logger.Info("Uploaded file", "peer", c.addr, "file", name, "bytes", n)
	return n, nil
}

// Send writes line verbatim and returns the peer's single text reply.
func (c *Conn) Send(ctx context.Context, line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ErrEmptyCommand
	}
	if k := protocol.Parse(line).Kind(); k == protocol.CmdDownload || k == protocol.CmdUpload {
		return "", fmt.Errorf("%w: %s", ErrTransferCommand, k)
	}
	return c.roundTrip(ctx, line)
}

// Do runs one operator command and prints its outcome. Outcomes the protocol
// answers normally (missing files, rejected uploads) and local failures that
// leave the connection open are printed, not returned.
func (c *Conn) Do(ctx context.Context, line string) error {
	out := c.client.config.Out

	switch cmd := protocol.Parse(line).(type) {
	case protocol.Empty:
		return nil

	case protocol.List:
		names, err := c.List(ctx)
		if err != nil {
			return err
		}
		listing := protocol.EmptyListing
		if len(names) > 0 {
			listing = strings.Join(names, "\n")
		}
		fmt.Fprintf(out, "Peer's shared files:\n%s\n", listing)

	case protocol.Download:
		fmt.Fprintf(out, "Downloading %s...\n", cmd.Filename)
		_, err := c.Download(ctx, cmd.Filename)
		switch {
		case errors.Is(err, ErrNotFound):
			fmt.Fprintln(out, "File not found on peer.")
		case err != nil && !c.Closed():
			fmt.Fprintf(out, "Cannot download %s: %v\n", cmd.Filename, err)
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "Downloaded %s successfully.\n", cmd.Filename)
		}

	case protocol.Upload:
		_, err := c.Upload(ctx, cmd.Filename)
		switch {
		case errors.Is(err, ErrLocalFileNotFound):
			fmt.Fprintln(out, "File not found in your shared folder.")
		case errors.Is(err, ErrUploadRejected):
			fmt.Fprintf(out, "Peer rejected upload of %s.\n", cmd.Filename)
		case err != nil && !c.Closed():
			fmt.Fprintf(out, "Cannot upload %s: %v\n", cmd.Filename, err)
		case err != nil:
			return err
		default:
			fmt.Fprintf(out, "Uploaded %s successfully.\n", cmd.Filename)
			fmt.Fprintln(out, "Upload confirmed by peer.")
		}

	default:
		reply, err := c.Send(ctx, line)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, reply)
	}
	return nil
}

func (c *Conn) roundTrip(ctx context.Context, line string) (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}

	stop := c.watch(ctx)
	defer stop()
	return c.exchange(line)
}

func (c *Conn) exchange(line string) (string, error) {
	if err := protocol.WriteCommand(c.stream, line); err != nil {
		_ = c.Close()
		return "", fmt.Errorf("sending command: %w", err)
	}

	reply, err := protocol.ReadFrame(c.r)
	if err != nil {
		_ = c.Close()
		return "", fmt.Errorf("reading reply: %w", err)
	}
	return reply, nil
}

func (c *Conn) usable() error {
	if c.finished || c.closed.Load() {
		return ErrSessionFinished
	}
	return nil
}

func (c *Conn) unexpected(reply string) error {
	_ = c.Close()
	return fmt.Errorf("%w: %q", ErrUnexpectedReply, reply)
}

// watch closes the stream if ctx ends before the returned stop is called,
// which unblocks any pending read or write.
func (c *Conn) watch(ctx context.Context) func() {
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	return func() { stop() }
}

func (c *Conn) progress(size int64, desc string) *progressbar.ProgressBar {
	if !c.client.config.Progress {
		return nil
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(c.client.config.Out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(0),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(c.client.config.Out) }),
	)
}

func (c *Conn) finishProgress(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}

func (c *Conn) record(direction, name string, n int64, err error) {
	status := history.StatusOK
	if err != nil {
		status = history.StatusFailed
	}
	metrics.TransferDone(history.RoleClient, direction, status, n)

	if c.client.config.History == nil {
		return
	}

	t := history.Transfer{
		Role:      history.RoleClient,
		Direction: direction,
		Peer:      c.addr,
		Filename:  name,
		Bytes:     n,
		Status:    status,
	}
	if err != nil {
		t.Error = err.Error()
	}
	if recErr := c.client.config.History.Record(context.Background(), t); recErr != nil {
		c.client.logger.Warn("Failed to record transfer", "file", name, "error", recErr)
	}
}
