package protocol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// wsConnection wraps a gorilla websocket.Conn behind the NetworkConnection
// contract, always using binary frames for payloads.
type wsConnection struct {
	conn *websocket.Conn
	desc ConnectionDescriptor

	writeMu sync.Mutex
}

func (c *wsConnection) Send(ctx context.Context, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("protocol: ws write: %w", err)
	}
	return nil
}

func (c *wsConnection) Recv(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("protocol: ws read: %w", err)
	}
	return data, nil
}

func (c *wsConnection) Close() error {
	return c.conn.Close()
}

func (c *wsConnection) Descriptor() ConnectionDescriptor { return c.desc }

// WSEndpoint serves inbound WebSocket upgrades over an HTTP server and
// dials outbound WS/WSS connections.
type WSEndpoint struct {
	kind   Kind // WS or WSS
	local  DialInfo
	server *http.Server
	log    *logrus.Entry

	accept   chan NetworkConnection
	upgrader websocket.Upgrader
	done     chan struct{}
}

// ListenWS starts an HTTP server at address:port that upgrades every
// request on path to a WebSocket connection.
func ListenWS(kind Kind, address string, port uint16, path string) (*WSEndpoint, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, fmt.Errorf("protocol: listen %s %s:%d: %w", kind, address, port, err)
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port

	e := &WSEndpoint{
		kind:   kind,
		local:  DialInfo{Protocol: kind, Address: address, Port: uint16(actualPort), Path: path},
		log:    logrus.WithFields(logrus.Fields{"component": "protocol", "transport": string(kind)}),
		accept: make(chan NetworkConnection, 64),
		done:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, e.handleUpgrade)
	e.server = &http.Server{Handler: mux}

	go func() {
		if err := e.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			e.log.WithError(err).Warn("websocket server stopped")
		}
	}()

	return e, nil
}

func (e *WSEndpoint) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	remote := conn.RemoteAddr().(*net.TCPAddr)
	wc := &wsConnection{
		conn: conn,
		desc: ConnectionDescriptor{
			Protocol: e.kind,
			Remote:   DialInfo{Protocol: e.kind, Address: remote.IP.String(), Port: uint16(remote.Port), Path: e.local.Path},
		},
	}

	select {
	case e.accept <- wc:
	default:
		e.log.Warn("websocket accept queue full, closing new peer")
		wc.Close()
	}
}

// Dial opens an outbound WS or WSS connection to remote.
func (e *WSEndpoint) Dial(ctx context.Context, local string, remote DialInfo) (NetworkConnection, error) {
	scheme := "ws"
	if remote.Protocol == WSS {
		scheme = "wss"
	}
	url := fmt.Sprintf("%s://%s%s", scheme, remote.HostPort(), remote.Path)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("protocol: dial %s %s: %w", remote.Protocol, url, err)
	}

	return &wsConnection{
		conn: conn,
		desc: ConnectionDescriptor{Protocol: remote.Protocol, Remote: remote, LocalAddr: local},
	}, nil
}

// Accept blocks for the next inbound WebSocket upgrade.
func (e *WSEndpoint) Accept(ctx context.Context) (NetworkConnection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.done:
		return nil, fmt.Errorf("protocol: %s endpoint closed", e.kind)
	case conn := <-e.accept:
		return conn, nil
	}
}

// Close shuts down the HTTP server backing the endpoint.
func (e *WSEndpoint) Close() error {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	return e.server.Close()
}

// LocalDialInfo reports the bound address, port, and upgrade path.
func (e *WSEndpoint) LocalDialInfo() DialInfo { return e.local }
