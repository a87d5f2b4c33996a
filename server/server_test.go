package server_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/summitto/upsi/server"
	"github.com/summitto/upsi/transport"
)

func echoHandler(req []byte) ([]byte, error) { return bytes.ToUpper(req), nil }

func TestSessionDispatchRoutesKnownCommand(t *testing.T) {
	s := server.NewSession(map[string]server.Method{
		"messageI": echoHandler,
	})

	resp, err := s.Dispatch("messageI", []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("PING"), resp)
}

func TestSessionDispatchRejectsUnknownCommand(t *testing.T) {
	s := server.NewSession(map[string]server.Method{})
	_, err := s.Dispatch("bogus", []byte("x"))
	require.Error(t, err)
}

func TestSessionDispatchOnlyBindsListedCommands(t *testing.T) {
	s := server.NewSession(map[string]server.Method{
		"notACommand": echoHandler,
	})
	_, err := s.Dispatch("notACommand", []byte("x"))
	require.Error(t, err, "handlers for names outside CommandList must not be bound")
}

func TestSessionDayCounters(t *testing.T) {
	s := server.NewSession(nil)
	require.Equal(t, 0, s.CurrentDay())
	require.False(t, s.DayFinished())

	s.MarkDayFinished()
	require.True(t, s.DayFinished())

	s.AdvanceDay()
	require.Equal(t, 1, s.CurrentDay())
	require.False(t, s.DayFinished(), "AdvanceDay must clear day_finished")
}

func TestManagerAddGetRemove(t *testing.T) {
	m := server.NewManager(nil)
	s := server.NewSession(nil)

	_, ok := m.Get(s.ID)
	require.False(t, ok)

	m.Add(s)
	got, ok := m.Get(s.ID)
	require.True(t, ok)
	require.Equal(t, s, got)

	m.Remove(s.ID)
	_, ok = m.Get(s.ID)
	require.False(t, ok)
}

func TestEncodeDecodeEnvelopeRoundTrip(t *testing.T) {
	env := server.EncodeEnvelope("messageII", []byte("payload-bytes"))
	// decodeEnvelope's layout: 1-byte name length, name, payload.
	require.Equal(t, byte(len("messageII")), env[0])
	require.Equal(t, "messageII", string(env[1:1+len("messageII")]))

	s := server.NewSession(map[string]server.Method{
		"messageII": func(req []byte) ([]byte, error) { return req, nil },
	})
	resp, err := s.Dispatch("messageII", env[len("messageII")+1:])
	require.NoError(t, err)
	require.Equal(t, []byte("payload-bytes"), resp)
}

func TestServeConnDispatchesAndReplies(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()

	clientConn := transport.New(clientRaw)
	serverConn := transport.New(serverRaw)

	s := server.NewSession(map[string]server.Method{
		"messageI": echoHandler,
	})

	go server.ServeConn(serverConn, s, nil)

	req := server.EncodeEnvelope("messageI", []byte("hello"))
	resp, err := clientConn.Request(req)
	require.NoError(t, err)
	require.Equal(t, []byte("HELLO"), resp)
}

func TestServeConnStopsOnUnknownCommand(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()

	clientConn := transport.New(clientRaw)
	serverConn := transport.New(serverRaw)

	s := server.NewSession(map[string]server.Method{})

	done := make(chan struct{})
	go func() {
		server.ServeConn(serverConn, s, nil)
		close(done)
	}()

	req := server.EncodeEnvelope("bogus", []byte("x"))
	require.NoError(t, clientConn.Send(req))

	// ServeConn logs and returns rather than replying; the next read on the
	// client side must observe the connection closing.
	<-done
	_, err := clientConn.Recv()
	require.Error(t, err)
}

func TestDecodeEnvelopeRejectsTruncatedCommandName(t *testing.T) {
	clientRaw, serverRaw := net.Pipe()
	defer clientRaw.Close()

	clientConn := transport.New(clientRaw)
	serverConn := transport.New(serverRaw)

	s := server.NewSession(map[string]server.Method{})

	done := make(chan struct{})
	go func() {
		server.ServeConn(serverConn, s, nil)
		close(done)
	}()

	// Declares a 10-byte command name but supplies none.
	malformed := []byte{10}
	require.NoError(t, clientConn.Send(malformed))

	<-done
	_, err := clientConn.Recv()
	require.Error(t, err)
}
