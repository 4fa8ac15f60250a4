package transport

import (
	"context"
	"crypto/tls"
	"net"
)

// TLS carries streams over TCP with crypto/tls. The handshake runs lazily on
// the first read or write of an accepted stream, so a slow peer never holds
// up the accept loop.
type TLS struct {
	server *tls.Config
	client *tls.Config
}

func NewTLS(server, client *tls.Config) *TLS {
	return &TLS{server: server, client: client}
}

func (t *TLS) Listen(addr string) (Listener, error) {
	ln, err := tls.Listen("tcp", addr, t.server)
	if err != nil {
		return nil, err
	}
	return &tlsListener{ln: ln}, nil
}

func (t *TLS) Dial(ctx context.Context, addr string) (Stream, error) {
	d := tls.Dialer{Config: t.client}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*tls.Conn), nil
}

type tlsListener struct {
	ln net.Listener
}

func (l *tlsListener) Accept(_ context.Context) (Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return conn.(*tls.Conn), nil
}

func (l *tlsListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *tlsListener) Close() error {
	return l.ln.Close()
}
