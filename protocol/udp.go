package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

const maxUDPDatagram = 65535

// udpConnection is a logical peer binding over a shared UDP socket: Send
// writes to one remote, Recv reads from a per-peer channel fed by the
// listener's dispatch loop.
type udpConnection struct {
	socket *net.UDPConn
	remote *net.UDPAddr
	desc   ConnectionDescriptor
	inbox  chan []byte
	closed chan struct{}
}

func (c *udpConnection) Send(ctx context.Context, data []byte) error {
	if len(data) > maxUDPDatagram {
		return fmt.Errorf("protocol: udp datagram too large: %d bytes", len(data))
	}
	_, err := c.socket.WriteToUDP(data, c.remote)
	if err != nil {
		return fmt.Errorf("protocol: udp send to %s: %w", c.remote, err)
	}
	return nil
}

func (c *udpConnection) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errors.New("protocol: udp connection closed")
	case data := <-c.inbox:
		return data, nil
	}
}

func (c *udpConnection) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

func (c *udpConnection) Descriptor() ConnectionDescriptor { return c.desc }

func (c *udpConnection) deliver(data []byte) {
	select {
	case c.inbox <- data:
	case <-c.closed:
	default:
		// Drop on a full inbox rather than block the dispatch loop.
	}
}

// UDPEndpoint owns one bound UDP socket and multiplexes it across any
// number of logical udpConnections, one per remote address.
type UDPEndpoint struct {
	socket *net.UDPConn
	local  DialInfo
	log    *logrus.Entry

	connsMu sync.Mutex
	conns   map[string]*udpConnection
	accept  chan NetworkConnection
	done    chan struct{}
}

// ListenUDP binds a UDP socket and starts its dispatch loop.
func ListenUDP(address string, port uint16) (*UDPEndpoint, error) {
	socket, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(address), Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("protocol: listen udp %s:%d: %w", address, port, err)
	}

	actualPort := socket.LocalAddr().(*net.UDPAddr).Port
	e := &UDPEndpoint{
		socket: socket,
		local:  DialInfo{Protocol: UDP, Address: address, Port: uint16(actualPort)},
		log:    logrus.WithFields(logrus.Fields{"component": "protocol", "transport": "udp"}),
		conns:  make(map[string]*udpConnection),
		accept: make(chan NetworkConnection, 64),
		done:   make(chan struct{}),
	}
	go e.dispatchLoop()
	return e, nil
}

func (e *UDPEndpoint) dispatchLoop() {
	buf := make([]byte, maxUDPDatagram)
	for {
		n, remote, err := e.socket.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-e.done:
				return
			default:
				e.log.WithError(err).Warn("udp read failed")
				return
			}
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		conn, isNew := e.connectionFor(remote)
		conn.deliver(data)
		if isNew {
			select {
			case e.accept <- conn:
			default:
				e.log.Warn("udp accept queue full, dropping new peer")
			}
		}
	}
}

func (e *UDPEndpoint) connectionFor(remote *net.UDPAddr) (*udpConnection, bool) {
	key := remote.String()

	e.connsMu.Lock()
	defer e.connsMu.Unlock()

	if c, ok := e.conns[key]; ok {
		return c, false
	}

	c := &udpConnection{
		socket: e.socket,
		remote: remote,
		desc: ConnectionDescriptor{
			Protocol: UDP,
			Remote:   DialInfo{Protocol: UDP, Address: remote.IP.String(), Port: uint16(remote.Port)},
		},
		inbox:  make(chan []byte, 32),
		closed: make(chan struct{}),
	}
	e.conns[key] = c
	return c, true
}

// Dial returns a logical connection to remote, reusing the dispatch loop's
// socket.
func (e *UDPEndpoint) Dial(ctx context.Context, local string, remote DialInfo) (NetworkConnection, error) {
	addr, err := net.ResolveUDPAddr("udp", remote.HostPort())
	if err != nil {
		return nil, fmt.Errorf("protocol: resolve udp remote %s: %w", remote.HostPort(), err)
	}
	conn, _ := e.connectionFor(addr)
	return conn, nil
}

// Accept yields the next peer address first observed by the dispatch loop.
func (e *UDPEndpoint) Accept(ctx context.Context) (NetworkConnection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, errors.New("protocol: udp endpoint closed")
	case conn := <-e.accept:
		return conn, nil
	}
}

// Close shuts down the socket and every logical connection over it.
func (e *UDPEndpoint) Close() error {
	select {
	case <-e.done:
	default:
		close(e.done)
	}

	e.connsMu.Lock()
	for _, c := range e.conns {
		c.Close()
	}
	e.connsMu.Unlock()

	return e.socket.Close()
}

// LocalDialInfo reports the bound address and port.
func (e *UDPEndpoint) LocalDialInfo() DialInfo { return e.local }
