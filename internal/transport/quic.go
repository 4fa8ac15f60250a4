package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

const (
	// A QUIC stream is only announced to the remote side once data flows,
	// so the dialer opens every session with this byte.
	streamPreamble = 0x01

	closeLinger = 2 * time.Second
)

var ErrBadPreamble = errors.New("unexpected stream preamble")

// QUIC carries one bidirectional stream per session over a QUIC connection.
type QUIC struct {
	server *tls.Config
	client *tls.Config
	config *quic.Config
}

func NewQUIC(server, client *tls.Config, config *quic.Config) *QUIC {
	return &QUIC{server: server, client: client, config: config}
}

func (q *QUIC) Listen(addr string) (Listener, error) {
	ln, err := quic.ListenAddr(addr, q.server, q.config)
	if err != nil {
		return nil, err
	}
	return &quicListener{ln: ln}, nil
}

func (q *QUIC) Dial(ctx context.Context, addr string) (Stream, error) {
	conn, err := quic.DialAddr(ctx, addr, q.client, q.config)
	if err != nil {
		return nil, err
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}
	if _, err := stream.Write([]byte{streamPreamble}); err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, err
	}

	s := &quicStream{conn: conn, stream: stream}
	s.once.Do(func() {})
	return s, nil
}

type quicListener struct {
	ln *quic.Listener
}

func (l *quicListener) Accept(ctx context.Context) (Stream, error) {
	conn, err := l.ln.Accept(ctx)
	if errors.Is(err, quic.ErrServerClosed) {
		return nil, net.ErrClosed
	}
	if err != nil {
		return nil, err
	}
	return &quicStream{conn: conn, linger: closeLinger}, nil
}

func (l *quicListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *quicListener) Close() error {
	return l.ln.Close()
}

type quicStream struct {
	conn   *quic.Conn
	stream *quic.Stream
	linger time.Duration

	once    sync.Once
	initErr error
}

// establish accepts the dialer's stream on first use and checks the preamble.
func (s *quicStream) establish() error {
	s.once.Do(func() {
		stream, err := s.conn.AcceptStream(s.conn.Context())
		if err != nil {
			s.initErr = err
			return
		}

		var b [1]byte
		if _, err := stream.Read(b[:]); err != nil {
			s.initErr = err
			return
		}
		if b[0] != streamPreamble {
			s.initErr = fmt.Errorf("%w: 0x%02x", ErrBadPreamble, b[0])
			return
		}
		s.stream = stream
	})
	return s.initErr
}

func (s *quicStream) Read(p []byte) (int, error) {
	if err := s.establish(); err != nil {
		return 0, err
	}
	return s.stream.Read(p)
}

func (s *quicStream) Write(p []byte) (int, error) {
	if err := s.establish(); err != nil {
		return 0, err
	}
	return s.stream.Write(p)
}

func (s *quicStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

// Close finishes the stream and tears down the connection. The accepting
// side lingers until the peer hangs up so queued replies are delivered.
func (s *quicStream) Close() error {
	if s.stream != nil {
		_ = s.stream.Close()
		if s.linger > 0 {
			select {
			case <-s.conn.Context().Done():
			case <-time.After(s.linger):
			}
		}
	}
	return s.conn.CloseWithError(0, "")
}
