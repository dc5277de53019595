// Package transmit sends assembled packets as fire-and-forget datagrams.
// There is no acknowledgment, retry, or ordering guarantee.
package transmit

import (
	"errors"
	"fmt"
	"io"
	"net"
)

// ErrTransmit is matched by every local send or socket setup failure.
var ErrTransmit = errors.New("transmit failed")

// Error carries the destination of a failed transmission.
type Error struct {
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transmit to %s: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTransmit }

// Sender delivers one packet per call.
type Sender interface {
	Send(p []byte) error
	io.Closer
}

// Dialer opens a Sender for a host:port endpoint.
type Dialer func(endpoint string) (Sender, error)

// UDP is a Sender bound to one destination through a connected UDP socket.
type UDP struct {
	endpoint string
	conn     net.Conn
}

// DialUDP resolves endpoint and binds a datagram socket to it. No packet is
// exchanged with the remote side.
func DialUDP(endpoint string) (*UDP, error) {
	if _, _, err := net.SplitHostPort(endpoint); err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	conn, err := net.Dial("udp", endpoint)
	if err != nil {
		return nil, &Error{Endpoint: endpoint, Err: err}
	}
	return &UDP{endpoint: endpoint, conn: conn}, nil
}

// Dial adapts DialUDP to the Dialer signature.
func Dial(endpoint string) (Sender, error) {
	u, err := DialUDP(endpoint)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Endpoint returns the configured destination.
func (u *UDP) Endpoint() string { return u.endpoint }

// Send writes p as a single datagram.
func (u *UDP) Send(p []byte) error {
	n, err := u.conn.Write(p)
	if err != nil {
		return &Error{Endpoint: u.endpoint, Err: err}
	}
	if n != len(p) {
		return &Error{Endpoint: u.endpoint, Err: io.ErrShortWrite}
	}
	return nil
}

func (u *UDP) Close() error {
	return u.conn.Close()
}
