package rcon

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough of the protocol to exercise the client:
// auth check, multi-packet responses, probe echo.
type fakeServer struct {
	listener net.Listener
	password string
	// respond maps a command to the body chunks returned for it, one chunk
	// per wire packet.
	respond map[string][]string
}

func startFakeServer(t *testing.T, password string, respond map[string][]string) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &fakeServer{listener: ln, password: password, respond: respond}
	go srv.serve()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()

	write := func(p packet) {
		data, _ := encode(p)
		conn.Write(data)
	}

	for {
		req, err := decode(conn)
		if err != nil {
			return
		}

		switch req.Type {
		case typeAuth:
			if req.Body != s.password {
				write(packet{ID: -1, Type: typeAuthResponse})
				return
			}
			// Real servers send an empty RESPONSE_VALUE first.
			write(packet{ID: req.ID, Type: typeResponse})
			write(packet{ID: req.ID, Type: typeAuthResponse})
		case typeExecCommand:
			chunks, ok := s.respond[req.Body]
			if !ok {
				chunks = []string{""}
			}
			for _, chunk := range chunks {
				write(packet{ID: req.ID, Type: typeResponse, Body: chunk})
			}
		case typeResponse:
			// end-of-response probe: echo it back
			write(packet{ID: req.ID, Type: typeResponse})
		}
	}
}

func TestExecuteSingleResponse(t *testing.T) {
	host, port := startFakeServer(t, "secret", map[string][]string{
		"SaveWorld": {"World Saved"},
	})

	client := NewClient(time.Second, time.Second)
	out, err := client.Execute(host, port, "secret", "SaveWorld")
	require.NoError(t, err)
	assert.Equal(t, "World Saved", out)
}

func TestExecuteReassemblesMultiPacketResponse(t *testing.T) {
	host, port := startFakeServer(t, "secret", map[string][]string{
		"GetGameLog": {"part one ", "part two ", "part three"},
	})

	client := NewClient(time.Second, time.Second)
	out, err := client.Execute(host, port, "secret", "GetGameLog")
	require.NoError(t, err)
	assert.Equal(t, "part one part two part three", out)
}

func TestExecuteWrongPassword(t *testing.T) {
	host, port := startFakeServer(t, "secret", nil)

	client := NewClient(time.Second, time.Second)
	_, err := client.Execute(host, port, "wrong", "ListPlayers")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestExecuteConnectionRefused(t *testing.T) {
	// Grab a port and close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	client := NewClient(500*time.Millisecond, 500*time.Millisecond)
	_, err = client.Execute("127.0.0.1", port, "secret", "ListPlayers")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthFailed)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestExecuteReadTimeout(t *testing.T) {
	// Listener that accepts and then stays silent.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	client := NewClient(time.Second, 200*time.Millisecond)
	_, err = client.Execute("127.0.0.1", port, "secret", "ListPlayers")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestParsePlayerCount(t *testing.T) {
	assert.Equal(t, 0, ParsePlayerCount("No Players Connected"))

	out := strings.Join([]string{
		"0. Alice, 000123abc",
		"1. Bob, 000456def",
		"2. Carol, 000789aaa",
	}, "\n")
	assert.Equal(t, 3, ParsePlayerCount(out))
}

func TestParseDay(t *testing.T) {
	assert.Equal(t, 128, ParseDay("Current ARK Time is Day: 128, 06:24"))
	assert.Equal(t, 0, ParseDay("garbage"))
}

func TestErrTimeoutDistinguishable(t *testing.T) {
	wrapped := wrapNetErr("read from %s", "1.2.3.4:27020", &net.OpError{
		Op:  "read",
		Err: timeoutErr{},
	})
	assert.ErrorIs(t, wrapped, ErrTimeout)
	assert.True(t, strings.Contains(wrapped.Error(), "1.2.3.4:"+strconv.Itoa(27020)))
	assert.False(t, errors.Is(wrapped, ErrAuthFailed))
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
