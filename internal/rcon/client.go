// Package rcon implements the Source remote-console protocol used by ARK
// dedicated servers. Each call opens a fresh connection, authenticates,
// executes, and disconnects: the game server's listener can restart between
// calls, so a pooled socket would only produce confusing failures.
package rcon

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"
)

var (
	// ErrAuthFailed means the server rejected the RCON password.
	ErrAuthFailed = errors.New("rcon: authentication failed")
	// ErrTimeout wraps connect and read deadline expiry so callers can tell
	// "server not up yet" apart from "wrong port/password".
	ErrTimeout = errors.New("rcon: timeout")
)

// Executor is the capability the supervisor, coordinator and auto-shutdown
// service share. Tests swap in fakes.
type Executor interface {
	Execute(host string, port int, password string, command string) (string, error)
}

type Client struct {
	DialTimeout time.Duration
	ReadTimeout time.Duration

	nextID atomic.Int32
}

func NewClient(dialTimeout, readTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	c := &Client{DialTimeout: dialTimeout, ReadTimeout: readTimeout}
	c.nextID.Store(1)
	return c
}

// Execute runs one command against a server's control port and returns the
// reassembled response body.
func (c *Client) Execute(host string, port int, password string, command string) (string, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := net.DialTimeout("tcp", addr, c.DialTimeout)
	if err != nil {
		return "", wrapNetErr("connect to %s", addr, err)
	}
	defer conn.Close()

	if err := c.authenticate(conn, password); err != nil {
		return "", err
	}

	return c.execCommand(conn, command)
}

func (c *Client) authenticate(conn net.Conn, password string) error {
	reqID := c.nextID.Add(2)

	if err := c.send(conn, packet{ID: reqID, Type: typeAuth, Body: password}); err != nil {
		return err
	}

	// Some servers precede the auth response with an empty RESPONSE_VALUE
	// packet; skip anything that is not the auth response itself.
	for {
		resp, err := c.read(conn)
		if err != nil {
			return err
		}
		if resp.Type != typeAuthResponse {
			continue
		}
		if resp.ID == -1 {
			return ErrAuthFailed
		}
		if resp.ID != reqID {
			return fmt.Errorf("rcon: auth response id %d does not match request id %d", resp.ID, reqID)
		}
		return nil
	}
}

// execCommand sends the command followed by an empty RESPONSE_VALUE probe.
// The server answers multi-packet output in order and echoes the probe last,
// which is the only reliable end-of-response marker the protocol offers.
func (c *Client) execCommand(conn net.Conn, command string) (string, error) {
	reqID := c.nextID.Add(2)
	probeID := reqID + 1

	if err := c.send(conn, packet{ID: reqID, Type: typeExecCommand, Body: command}); err != nil {
		return "", err
	}
	if err := c.send(conn, packet{ID: probeID, Type: typeResponse}); err != nil {
		return "", err
	}

	var out strings.Builder
	for {
		resp, err := c.read(conn)
		if err != nil {
			return "", err
		}

		switch resp.ID {
		case probeID:
			return out.String(), nil
		case reqID:
			out.WriteString(resp.Body)
		default:
			// Stale packet from an earlier exchange on a reused listener;
			// ignore and keep draining.
		}
	}
}

func (c *Client) send(conn net.Conn, p packet) error {
	data, err := encode(p)
	if err != nil {
		return err
	}

	conn.SetWriteDeadline(time.Now().Add(c.ReadTimeout))
	if _, err := conn.Write(data); err != nil {
		return wrapNetErr("write to %s", conn.RemoteAddr().String(), err)
	}
	return nil
}

func (c *Client) read(conn net.Conn) (packet, error) {
	conn.SetReadDeadline(time.Now().Add(c.ReadTimeout))
	p, err := decode(conn)
	if err != nil {
		return packet{}, wrapNetErr("read from %s", conn.RemoteAddr().String(), err)
	}
	return p, nil
}

func wrapNetErr(format, addr string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf(format+": %w", addr, ErrTimeout)
	}
	return fmt.Errorf(format+": %w", addr, err)
}
