// Package transport supplies the encrypted byte streams peers talk over.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
)

var ErrUnknownTransport = errors.New("unknown transport")

// Stream is an ordered, reliable, already encrypted byte stream to one peer.
type Stream interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

type Listener interface {
	Accept(ctx context.Context) (Stream, error)
	Addr() net.Addr
	Close() error
}

type Provider interface {
	Listen(addr string) (Listener, error)
	Dial(ctx context.Context, addr string) (Stream, error)
}

// New returns the provider registered under name ("tls" or "quic").
func New(name string, server, client *tls.Config) (Provider, error) {
	switch name {
	case "", "tls":
		return NewTLS(server, client), nil
	case "quic":
		return NewQUIC(server, client, DefaultQUICConfig()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
}
