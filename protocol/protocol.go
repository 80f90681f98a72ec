// Package protocol implements the per-transport network connection
// handlers (UDP, TCP, WS, WSS) that the connection manager multiplexes
// over.
package protocol

import (
	"context"
	"fmt"
	"net"
)

// Kind identifies a wire transport protocol.
type Kind string

const (
	UDP Kind = "udp"
	TCP Kind = "tcp"
	WS  Kind = "ws"
	WSS Kind = "wss"
)

// DialInfo fully describes how to contact a peer at one network address.
type DialInfo struct {
	Protocol Kind
	Address  string
	Port     uint16
	Path     string // used by WS/WSS only
}

// String renders a DialInfo in "protocol://address:port[/path]" form.
func (d DialInfo) String() string {
	s := fmt.Sprintf("%s://%s:%d", d.Protocol, d.Address, d.Port)
	if d.Path != "" {
		s += d.Path
	}
	return s
}

// HostPort renders the address:port pair dial/listen calls expect.
func (d DialInfo) HostPort() string {
	return net.JoinHostPort(d.Address, fmt.Sprintf("%d", d.Port))
}

// ConnectionDescriptor identifies one logical connection by its remote
// DialInfo and, for connection-oriented protocols, the local address it was
// established from.
type ConnectionDescriptor struct {
	Protocol  Kind
	Remote    DialInfo
	LocalAddr string // empty means "unspecified"
}

// RemoteKey returns the descriptor's protocol and remote host:port as one
// string, the key used for "same remote, same protocol" matching in the
// connection table.
func (d ConnectionDescriptor) RemoteKey() string {
	return string(d.Protocol) + "|" + d.Remote.HostPort()
}

// NetworkConnection is the uniform contract every protocol handler
// implements: a logical, possibly-multiplexed connection to one peer.
type NetworkConnection interface {
	// Send writes one already-framed message to the peer.
	Send(ctx context.Context, data []byte) error
	// Recv blocks for the next inbound message.
	Recv(ctx context.Context) ([]byte, error)
	// Close tears down the connection; it is safe to call more than once.
	Close() error
	// Descriptor reports the connection's identity within the table.
	Descriptor() ConnectionDescriptor
}

// Dialer opens an outbound NetworkConnection for one protocol Kind.
type Dialer interface {
	Dial(ctx context.Context, local string, remote DialInfo) (NetworkConnection, error)
}

// Listener accepts inbound NetworkConnections for one protocol Kind.
type Listener interface {
	Accept(ctx context.Context) (NetworkConnection, error)
	Close() error
	LocalDialInfo() DialInfo
}
