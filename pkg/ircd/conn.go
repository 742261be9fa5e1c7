// Copyright 2024-2026 Aiku AI

package ircd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registration holds the raw registration commands collected from a client
// before the gateway takes over.
type Registration struct {
	Nick     string
	Username string
	Realname string
	Password string
}

// Conn wraps one accepted client connection. Reads happen from a single
// goroutine; writes may come from any goroutine and are serialized by an
// internal mutex since every joined room emits into the same stream.
type Conn struct {
	ID         string
	ServerName string

	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	closeOnce sync.Once
	log       zerolog.Logger
}

// NewConn wraps an accepted net.Conn. serverName is used as the prefix on
// server-originated numerics.
func NewConn(nc net.Conn, serverName string, log zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		ID:         id,
		ServerName: serverName,
		conn:       nc,
		reader:     bufio.NewReaderSize(nc, MaxLineLen),
		log:        log.With().Str("component", "irc_conn").Str("conn_id", id).Logger(),
	}
}

// RemoteAddr returns the client's network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// ReadMessage reads and parses the next line from the client. Malformed
// lines are logged and skipped.
func (c *Conn) ReadMessage() (*Message, error) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		msg, err := ParseMessage(line)
		if err != nil {
			c.log.Warn().Err(err).Str("line", line).Msg("Skipping malformed line")
			continue
		}
		c.log.Trace().Str("command", msg.Command).Msg("Read message")
		return msg, nil
	}
}

// WriteMessage sends one message to the client. Safe for concurrent use.
func (c *Conn) WriteMessage(msg *Message) error {
	line := msg.String()
	if len(line) > MaxLineLen-2 {
		// Cut on a rune boundary so the client never sees broken UTF-8.
		cut := MaxLineLen - 2
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut]
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("ircd: write: %w", err)
	}
	return nil
}

// WriteServer sends a message with the server name as its prefix.
func (c *Conn) WriteServer(command string, params ...string) error {
	return c.WriteMessage(&Message{
		Prefix:  Prefix{Nick: c.ServerName},
		Command: command,
		Params:  params,
	})
}

// WaitRegistration reads commands until PASS, NICK and USER registration is
// complete. PING is answered inline; QUIT aborts. A "|…" suffix on the
// presented nick is stripped: clients that were connected before resend the
// derived nick when they reconnect.
func (c *Conn) WaitRegistration(ctx context.Context) (*Registration, error) {
	reg := &Registration{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = c.conn.SetReadDeadline(deadline)
		}
		msg, err := c.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("ircd: registration: %w", err)
		}
		switch msg.Command {
		case CmdPass:
			reg.Password = msg.Param(0)
		case CmdNick:
			nick := msg.Param(0)
			if i := strings.Index(nick, "|"); i >= 0 {
				nick = nick[:i]
			}
			reg.Nick = nick
		case CmdUser:
			reg.Username = msg.Param(0)
			reg.Realname = msg.Trailing()
		case CmdPing:
			_ = c.WriteServer(CmdPong, c.ServerName, msg.Trailing())
		case CmdQuit:
			return nil, fmt.Errorf("ircd: client quit during registration")
		default:
			c.log.Debug().Str("command", msg.Command).Msg("Ignoring pre-registration command")
		}
		if reg.Nick != "" && reg.Username != "" {
			_ = c.conn.SetReadDeadline(time.Time{})
			return reg, nil
		}
	}
}

// Close tears down the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
