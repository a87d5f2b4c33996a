package transport_test

import (
	"bytes"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/internal/errs"
	"github.com/summitto/upsi/transport"
)

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := transport.New(client)
	sc := transport.New(server)

	want := []byte("hello from the client")
	done := make(chan error, 1)
	go func() { done <- cc.Send(want) }()

	got, err := sc.Recv()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Equal(t, want, got)
}

func TestSendRecvEmptyMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := transport.New(client)
	sc := transport.New(server)

	done := make(chan error, 1)
	go func() { done <- cc.Send(nil) }()

	got, err := sc.Recv()
	require.NoError(t, err)
	require.NoError(t, <-done)
	require.Empty(t, got)
}

func TestRequestRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := transport.New(client)
	sc := transport.New(server)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		req, err := sc.Recv()
		require.NoError(t, err)
		require.NoError(t, sc.Send(bytes.ToUpper(req)))
	}()

	resp, err := cc.Request([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("PING"), resp)
	wg.Wait()
}

func TestSendOverCeilingRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cc := transport.New(client).WithMaxMessageBytes(4)

	err := cc.Send([]byte("too long"))
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Transport))
}

func TestRecvOverCeilingRejected(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Client frames with a generous ceiling but the server enforces a small
	// one, so the server must reject the incoming length prefix before
	// reading the body.
	cc := transport.New(client)
	sc := transport.New(server).WithMaxMessageBytes(4)

	done := make(chan error, 1)
	go func() { done <- cc.Send([]byte("this message is too long for the server")) }()

	_, err := sc.Recv()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Transport))

	// sc.Recv rejected the length prefix without draining the message body,
	// so cc.Send is still blocked on the matching net.Pipe write; closing
	// both ends unblocks it rather than leaking the goroutine.
	client.Close()
	server.Close()
	<-done
}

func TestRecvOnClosedConnReturnsTransportError(t *testing.T) {
	client, server := net.Pipe()
	sc := transport.New(server)

	require.NoError(t, client.Close())

	_, err := sc.Recv()
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Transport))
}

func TestCloseClosesUnderlyingConn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	sc := transport.New(server)
	require.NoError(t, sc.Close())

	// Writing to the client side of a closed pipe should now fail.
	_, err := client.Write([]byte("x"))
	require.Error(t, err)
}
