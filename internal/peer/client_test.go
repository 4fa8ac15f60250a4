package peer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rudransh-shrivastava/peershare/internal/files"
	"github.com/rudransh-shrivastava/peershare/internal/history"
	"github.com/rudransh-shrivastava/peershare/internal/logger"
	"github.com/rudransh-shrivastava/peershare/internal/protocol"
	"github.com/rudransh-shrivastava/peershare/internal/server"
	"github.com/rudransh-shrivastava/peershare/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testNode is one full peer: a server over its shared folder plus a client
// that downloads into its own folder.
type testNode struct {
	addr      string
	shared    string
	downloads string
	client    *Client
	out       *bytes.Buffer
	history   *history.Store
}

func newProvider(t *testing.T, name string) transport.Provider {
	t.Helper()

	serverTLS, err := transport.ServerTLSConfig("", "")
	require.NoError(t, err)

	p, err := transport.New(name, serverTLS, transport.ClientTLSConfig())
	require.NoError(t, err)
	return p
}

func setupNode(t *testing.T, transportName string) *testNode {
	t.Helper()

	provider := newProvider(t, transportName)
	log := logger.New(os.Stderr, logger.ParseLevel("warn"))

	store, err := history.Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	node := &testNode{
		shared:    t.TempDir(),
		downloads: t.TempDir(),
		out:       &bytes.Buffer{},
		history:   store,
	}

	srv, err := server.NewServer(server.Config{
		Addr:      "127.0.0.1:0",
		SharedDir: node.shared,
		Transport: provider,
		Logger:    log,
	})
	require.NoError(t, err)
	node.addr = srv.Addr()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	node.client = NewClient(Config{
		SharedDir:   node.shared,
		DownloadDir: node.downloads,
		Transport:   provider,
		Logger:      log,
		History:     store,
		Out:         node.out,
	})
	return node
}

func (n *testNode) connect(t *testing.T, to *testNode) *Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := n.client.Connect(ctx, to.addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// scriptedProvider hands the client one end of an in-memory pipe and runs
// serve on the other, for replies a well-behaved node never sends.
type scriptedProvider struct {
	serve func(conn net.Conn, r *bufio.Reader)
}

func (p scriptedProvider) Listen(string) (transport.Listener, error) {
	return nil, errors.New("scripted provider cannot listen")
}

func (p scriptedProvider) Dial(context.Context, string) (transport.Stream, error) {
	local, remote := net.Pipe()
	go func() {
		defer func() { _ = remote.Close() }()
		if err := protocol.WriteFrame(remote, "hi"); err != nil {
			return
		}
		p.serve(remote, bufio.NewReader(remote))
	}()
	return local, nil
}

func connectScripted(t *testing.T, shared string, serve func(net.Conn, *bufio.Reader)) *Conn {
	t.Helper()

	client := NewClient(Config{
		SharedDir:   shared,
		DownloadDir: t.TempDir(),
		Transport:   scriptedProvider{serve: serve},
	})
	conn, err := client.Connect(context.Background(), "scripted")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestConnectRequiresTransport(t *testing.T) {
	_, err := NewClient(Config{}).Connect(context.Background(), "127.0.0.1:1")
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestConnectReadsGreeting(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)

	assert.Equal(t, protocol.Greeting, conn.Greeting())
	assert.Equal(t, b.addr, conn.Addr())
	assert.False(t, conn.Finished())
}

func TestListAndDownload(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)

	names, err := conn.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)

	content := randomBytes(t, 50_000)
	require.NoError(t, os.WriteFile(filepath.Join(b.shared, "report.pdf"), content, 0o644))

	names, err = conn.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"report.pdf"}, names)

	n, err := conn.Download(context.Background(), "report.pdf")
	require.NoError(t, err)
	assert.EqualValues(t, len(content), n)

	got, err := os.ReadFile(filepath.Join(a.downloads, "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// the connection stays usable after a download
	_, err = conn.List(context.Background())
	assert.NoError(t, err)

	records, err := a.history.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, history.RoleClient, records[0].Role)
	assert.Equal(t, history.DirectionDownload, records[0].Direction)
}

func TestDownloadNotFoundLeavesNothing(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)

	_, err := conn.Download(context.Background(), "ghost.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := os.ReadDir(a.downloads)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = conn.List(context.Background())
	assert.NoError(t, err)
}

func TestDownloadRefusesEscapingName(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)

	for _, name := range []string{"../../etc/passwd", ".", "sub/.."} {
		_, err := conn.Download(context.Background(), name)
		assert.ErrorIs(t, err, files.ErrUnsafePath, name)
	}
	assert.False(t, conn.Closed())
}

func TestUploadMissingLocalFile(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)

	_, err := conn.Upload(context.Background(), "nothing.txt")
	assert.ErrorIs(t, err, ErrLocalFileNotFound)

	// nothing was sent, so the session is intact
	names, err := conn.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUploadFinishesSession(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	content := []byte("hello from a")
	require.NoError(t, os.WriteFile(filepath.Join(a.shared, "hello.txt"), content, 0o644))

	conn := a.connect(t, b)
	n, err := conn.Upload(context.Background(), "hello.txt")
	require.NoError(t, err)
	assert.EqualValues(t, len(content), n)

	got, err := os.ReadFile(filepath.Join(b.shared, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.True(t, conn.Finished())
	assert.True(t, conn.Closed())
	_, err = conn.List(context.Background())
	assert.ErrorIs(t, err, ErrSessionFinished)
	_, err = conn.Send(context.Background(), "FOO")
	assert.ErrorIs(t, err, ErrSessionFinished)
}

func TestUploadRejected(t *testing.T) {
	shared := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(shared, "a.txt"), []byte("a"), 0o644))

	conn := connectScripted(t, shared, func(w net.Conn, r *bufio.Reader) {
		if _, err := protocol.ReadCommand(r); err != nil {
			return
		}
		_ = protocol.WriteFrame(w, protocol.UploadRejected)
		_, _ = protocol.ReadCommand(r)
	})

	_, err := conn.Upload(context.Background(), "a.txt")
	assert.ErrorIs(t, err, ErrUploadRejected)
	assert.False(t, conn.Finished())
}

func TestUnexpectedReplyClosesConn(t *testing.T) {
	conn := connectScripted(t, t.TempDir(), func(w net.Conn, r *bufio.Reader) {
		if _, err := protocol.ReadCommand(r); err != nil {
			return
		}
		_ = protocol.WriteFrame(w, "MAYBE")
	})

	_, err := conn.Download(context.Background(), "x.bin")
	assert.ErrorIs(t, err, ErrUnexpectedReply)
	assert.True(t, conn.Closed())
}

func TestShortBodyFailsDownload(t *testing.T) {
	conn := connectScripted(t, t.TempDir(), func(w net.Conn, r *bufio.Reader) {
		if _, err := protocol.ReadCommand(r); err != nil {
			return
		}
		_ = protocol.WriteFrame(w, protocol.Found)
		_ = protocol.WriteSize(w, 1000)
		_, _ = w.Write([]byte("too short"))
	})

	_, err := conn.Download(context.Background(), "x.bin")
	assert.ErrorIs(t, err, protocol.ErrSizeMismatch)
}

func TestContextCancelUnblocks(t *testing.T) {
	conn := connectScripted(t, t.TempDir(), func(_ net.Conn, r *bufio.Reader) {
		_, _ = protocol.ReadCommand(r)
		// never reply
		_, _ = r.ReadByte()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := conn.List(ctx)
	assert.Error(t, err)
	assert.True(t, conn.Closed())
}

func TestSend(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)

	reply, err := conn.Send(context.Background(), "FOO")
	require.NoError(t, err)
	assert.Equal(t, protocol.InvalidCommand, reply)

	_, err = conn.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)

	_, err = conn.Send(context.Background(), "DOWNLOAD x")
	assert.ErrorIs(t, err, ErrTransferCommand)

	reply, err = conn.Send(context.Background(), "LIST")
	require.NoError(t, err)
	assert.Equal(t, protocol.EmptyListing, reply)
}

func TestDoPrintsOutcomes(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	require.NoError(t, os.WriteFile(filepath.Join(b.shared, "song.mp3"), []byte("la la"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(a.shared, "mine.txt"), []byte("mine"), 0o644))
	conn := a.connect(t, b)
	ctx := context.Background()

	require.NoError(t, conn.Do(ctx, ""))
	require.NoError(t, conn.Do(ctx, "list"))
	require.NoError(t, conn.Do(ctx, "DOWNLOAD song.mp3"))
	require.NoError(t, conn.Do(ctx, "DOWNLOAD missing.mp3"))
	require.NoError(t, conn.Do(ctx, "UPLOAD nothing.txt"))
	require.NoError(t, conn.Do(ctx, "FOO"))
	require.NoError(t, conn.Do(ctx, "UPLOAD mine.txt"))

	out := a.out.String()
	for _, want := range []string{
		"Peer's shared files:\nsong.mp3\n",
		"Downloaded song.mp3 successfully.",
		"File not found on peer.",
		"File not found in your shared folder.",
		protocol.InvalidCommand,
		"Uploaded mine.txt successfully.",
		"Upload confirmed by peer.",
	} {
		assert.Contains(t, out, want)
	}
	assert.True(t, conn.Finished())
}

func TestProgressOutput(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	require.NoError(t, os.WriteFile(filepath.Join(b.shared, "big.bin"), randomBytes(t, 200_000), 0o644))

	var out bytes.Buffer
	client := NewClient(Config{
		DownloadDir: a.downloads,
		Transport:   newProvider(t, "tls"),
		Out:         &out,
		Progress:    true,
	})
	conn, err := client.Connect(context.Background(), b.addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Download(context.Background(), "big.bin")
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Downloading big.bin")
}

// A uploads a 10 MB movie.mp4 to B, whose shared folder starts empty; C then
// lists B and downloads the same bytes.
func TestMovieScenario(t *testing.T) {
	for _, name := range []string{"tls", "quic"} {
		t.Run(name, func(t *testing.T) {
			a, b, c := setupNode(t, name), setupNode(t, name), setupNode(t, name)
			movie := randomBytes(t, 10*1024*1024)
			require.NoError(t, os.WriteFile(filepath.Join(a.shared, "movie.mp4"), movie, 0o644))

			up := a.connect(t, b)
			n, err := up.Upload(context.Background(), "movie.mp4")
			require.NoError(t, err)
			assert.EqualValues(t, len(movie), n)

			down := c.connect(t, b)
			names, err := down.List(context.Background())
			require.NoError(t, err)
			assert.Contains(t, names, "movie.mp4")

			n, err = down.Download(context.Background(), "movie.mp4")
			require.NoError(t, err)
			assert.EqualValues(t, len(movie), n)

			got, err := os.ReadFile(filepath.Join(c.downloads, "movie.mp4"))
			require.NoError(t, err)
			assert.True(t, bytes.Equal(movie, got), "downloaded movie differs from the upload")
		})
	}
}

func TestDoKeepsSessionOnLocalFailure(t *testing.T) {
	a, b := setupNode(t, "tls"), setupNode(t, "tls")
	conn := a.connect(t, b)
	ctx := context.Background()

	require.NoError(t, conn.Do(ctx, "DOWNLOAD ../x"))
	require.NoError(t, conn.Do(ctx, "DOWNLOAD ."))
	require.NoError(t, conn.Do(ctx, "DOWNLOAD sub/x"))
	assert.False(t, conn.Closed())
	assert.Contains(t, a.out.String(), "Cannot download ../x")
	assert.Contains(t, a.out.String(), "Cannot download sub/x")

	names, err := conn.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	entries, err := os.ReadDir(filepath.Dir(a.downloads))
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "stray file %s next to the download folder", e.Name())
	}
}
