package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/rudransh-shrivastava/peershare/internal/peer"
)

const (
	addressPrompt = "Enter peer address to connect (or 'exit' to quit): "
	commandPrompt = "Enter command (LIST, DOWNLOAD <filename>, UPLOAD <filename>, EXIT): "
)

// console is the interactive operator loop: pick a peer, then run commands
// against it until EXIT, an upload, or a failure closes the connection.
type console struct {
	in          *bufio.Scanner
	out         io.Writer
	client      *peer.Client
	defaultPort int
}

func newConsole(in io.Reader, out io.Writer, client *peer.Client, defaultPort int) *console {
	return &console{
		in:          bufio.NewScanner(in),
		out:         out,
		client:      client,
		defaultPort: defaultPort,
	}
}

// Run prompts for peer addresses until exit or end of input.
func (c *console) Run(ctx context.Context) error {
	for {
		fmt.Fprint(c.out, "\n"+addressPrompt)
		addr, ok := c.readLine()
		if !ok {
			return c.in.Err()
		}
		if addr == "" {
			continue
		}
		if strings.EqualFold(addr, "exit") {
			return nil
		}

		if !c.session(ctx, withDefaultPort(addr, c.defaultPort)) {
			return c.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// session runs one connection. It returns false once input is exhausted.
func (c *console) session(ctx context.Context, addr string) bool {
	conn, err := c.client.Connect(ctx, addr)
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return true
	}
	defer func() { _ = conn.Close() }()

	fmt.Fprintf(c.out, "Connected securely to %s\n", addr)
	fmt.Fprintln(c.out, conn.Greeting())

	for {
		fmt.Fprint(c.out, commandPrompt)
		line, ok := c.readLine()
		if !ok {
			return false
		}
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "EXIT") {
			return true
		}

		if err := conn.Do(ctx, line); err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return true
		}
		if conn.Finished() {
			return true
		}
	}
}

func (c *console) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

// withDefaultPort appends port to addr when it does not carry one; peers
// listen on the same port by default.
func withDefaultPort(addr string, port int) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(strings.Trim(addr, "[]"), strconv.Itoa(port))
}
