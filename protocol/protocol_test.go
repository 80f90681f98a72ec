package protocol

import (
	"context"
	"testing"
	"time"
)

func TestDialInfoString(t *testing.T) {
	d := DialInfo{Protocol: TCP, Address: "127.0.0.1", Port: 4433}
	if got, want := d.String(), "tcp://127.0.0.1:4433"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestConnectionDescriptorRemoteKey(t *testing.T) {
	d := ConnectionDescriptor{Protocol: UDP, Remote: DialInfo{Protocol: UDP, Address: "10.0.0.1", Port: 1}}
	if got, want := d.RemoteKey(), "udp|10.0.0.1:1"; got != want {
		t.Errorf("RemoteKey() = %q, want %q", got, want)
	}
}

func TestUDPRoundTrip(t *testing.T) {
	server, err := ListenUDP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("ListenUDP() failed: %v", err)
	}
	defer server.Close()

	client, err := ListenUDP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("ListenUDP() failed: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	clientConn, err := client.Dial(ctx, "", server.LocalDialInfo())
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	if err := clientConn.Send(ctx, []byte("hello")); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	serverConn, err := server.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept() failed: %v", err)
	}
	data, err := serverConn.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv() failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Recv() = %q, want %q", data, "hello")
	}
}

func TestTCPRoundTrip(t *testing.T) {
	server, err := ListenTCP("127.0.0.1", 0)
	if err != nil {
		t.Fatalf("ListenTCP() failed: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	acceptCh := make(chan NetworkConnection, 1)
	errCh := make(chan error, 1)
	go func() {
		conn, err := server.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		acceptCh <- conn
	}()

	clientConn, err := (&TCPEndpoint{}).Dial(ctx, "", server.LocalDialInfo())
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer clientConn.Close()

	if err := clientConn.Send(ctx, []byte("ping")); err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	select {
	case err := <-errCh:
		t.Fatalf("Accept() failed: %v", err)
	case serverConn := <-acceptCh:
		defer serverConn.Close()
		data, err := serverConn.Recv(ctx)
		if err != nil {
			t.Fatalf("Recv() failed: %v", err)
		}
		if string(data) != "ping" {
			t.Errorf("Recv() = %q, want %q", data, "ping")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for TCP accept")
	}
}
