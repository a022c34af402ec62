package transport

import (
	"bufio"
	"fmt"
	"net"
	"strings"
)

// Client is a thin client for a Server's line protocol, used by the
// kvault-cli REPL (the Go counterpart to original_source/engine.py's
// interactive shell()).
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
}

// Dial connects to a Server listening at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport.Dial: %w", err)
	}
	return &Client{conn: conn, reader: bufio.NewReader(conn)}, nil
}

// Send writes one command line and reads back its reply, stripping the
// blank-line terminator. Multi-line replies (e.g. ZRANGE) come back joined
// by "\n".
func (c *Client) Send(line string) (string, error) {
	if _, err := fmt.Fprintln(c.conn, line); err != nil {
		return "", fmt.Errorf("transport.Client.Send: %w", err)
	}

	var lines []string
	for {
		raw, err := c.reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("transport.Client.Send: %w", err)
		}
		text := strings.TrimRight(raw, "\n")
		if text == "" {
			break
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n"), nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
