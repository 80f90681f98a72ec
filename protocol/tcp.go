package protocol

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

const maxTCPMessage = 1 << 20 // 1 MiB, generous bound against a misbehaving peer

// tcpConnection frames messages over a net.Conn with a 4-byte big-endian
// length prefix, since TCP has no inherent message boundary.
type tcpConnection struct {
	conn net.Conn
	desc ConnectionDescriptor

	writeMu sync.Mutex
}

func newTCPConnection(conn net.Conn, local string) *tcpConnection {
	remote := conn.RemoteAddr().(*net.TCPAddr)
	return &tcpConnection{
		conn: conn,
		desc: ConnectionDescriptor{
			Protocol:  TCP,
			Remote:    DialInfo{Protocol: TCP, Address: remote.IP.String(), Port: uint16(remote.Port)},
			LocalAddr: local,
		},
	}
}

func (c *tcpConnection) Send(ctx context.Context, data []byte) error {
	if len(data) > maxTCPMessage {
		return fmt.Errorf("protocol: tcp message too large: %d bytes", len(data))
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := c.conn.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: tcp write length prefix: %w", err)
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("protocol: tcp write payload: %w", err)
	}
	return nil
}

func (c *tcpConnection) Recv(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(c.conn, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("protocol: tcp read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxTCPMessage {
		return nil, fmt.Errorf("protocol: tcp peer declared oversized message: %d bytes", n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, fmt.Errorf("protocol: tcp read payload: %w", err)
	}
	return data, nil
}

func (c *tcpConnection) Close() error {
	return c.conn.Close()
}

func (c *tcpConnection) Descriptor() ConnectionDescriptor { return c.desc }

// TCPEndpoint is a TCP listener paired with outbound dialing for the same
// protocol Kind.
type TCPEndpoint struct {
	listener net.Listener
	local    DialInfo
	log      *logrus.Entry
}

// ListenTCP binds a TCP listener.
func ListenTCP(address string, port uint16) (*TCPEndpoint, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, fmt.Errorf("protocol: listen tcp %s:%d: %w", address, port, err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	return &TCPEndpoint{
		listener: listener,
		local:    DialInfo{Protocol: TCP, Address: address, Port: uint16(actualPort)},
		log:      logrus.WithFields(logrus.Fields{"component": "protocol", "transport": "tcp"}),
	}, nil
}

// Dial opens a new TCP connection to remote.
func (e *TCPEndpoint) Dial(ctx context.Context, local string, remote DialInfo) (NetworkConnection, error) {
	dialer := net.Dialer{}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}
	conn, err := dialer.DialContext(ctx, "tcp", remote.HostPort())
	if err != nil {
		return nil, fmt.Errorf("protocol: dial tcp %s: %w", remote.HostPort(), err)
	}
	return newTCPConnection(conn, local), nil
}

// Accept blocks for the next inbound TCP connection.
func (e *TCPEndpoint) Accept(ctx context.Context) (NetworkConnection, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := e.listener.Accept()
		ch <- result{conn, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("protocol: tcp accept: %w", r.err)
		}
		return newTCPConnection(r.conn, e.local.HostPort()), nil
	}
}

// Close stops accepting new connections.
func (e *TCPEndpoint) Close() error {
	return e.listener.Close()
}

// LocalDialInfo reports the bound address and port.
func (e *TCPEndpoint) LocalDialInfo() DialInfo { return e.local }
