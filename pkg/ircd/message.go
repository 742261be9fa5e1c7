// Copyright 2024-2026 Aiku AI

// Package ircd implements the server side of the IRC line protocol: message
// parsing and formatting, the reply numerics the gateway emits, and a
// connection wrapper with serialized writes.
//
// It is intentionally small. The available Go IRC libraries are client
// oriented, so the wire layer lives in-tree and only covers what the gateway
// actually speaks.
package ircd

import (
	"fmt"
	"strings"
)

// MaxLineLen is the maximum length of one IRC line including CRLF.
const MaxLineLen = 512

// Commands consumed or produced by the gateway.
const (
	CmdPass    = "PASS"
	CmdNick    = "NICK"
	CmdUser    = "USER"
	CmdJoin    = "JOIN"
	CmdPart    = "PART"
	CmdPrivmsg = "PRIVMSG"
	CmdNotice  = "NOTICE"
	CmdMode    = "MODE"
	CmdTopic   = "TOPIC"
	CmdPing    = "PING"
	CmdPong    = "PONG"
	CmdQuit    = "QUIT"
	CmdWho     = "WHO"
	CmdWhois   = "WHOIS"
	CmdError   = "ERROR"
)

// Reply numerics.
const (
	RplWelcome       = "001"
	RplYourHost      = "002"
	RplCreated       = "003"
	RplMyInfo        = "004"
	RplWhoisUser     = "311"
	RplWhoisServer   = "312"
	RplEndOfWho      = "315"
	RplEndOfWhois    = "318"
	RplWhoisChannels = "319"
	RplWhoReply      = "352"
	ErrNoSuchNick    = "401"
	ErrNoSuchChannel = "403"
)

// Prefix is the source of a message: nick!user@host, or just a server name.
type Prefix struct {
	Nick string
	User string
	Host string
}

// ParsePrefix splits a raw prefix into its nick, user and host parts. A
// prefix without "!" is treated as a bare nick or server name.
func ParsePrefix(raw string) Prefix {
	var p Prefix
	rest := raw
	if i := strings.Index(rest, "!"); i >= 0 {
		p.Nick = rest[:i]
		rest = rest[i+1:]
	} else {
		if i := strings.Index(rest, "@"); i >= 0 {
			p.Nick = rest[:i]
			p.Host = rest[i+1:]
		} else {
			p.Nick = rest
		}
		return p
	}
	if i := strings.Index(rest, "@"); i >= 0 {
		p.User = rest[:i]
		p.Host = rest[i+1:]
	} else {
		p.User = rest
	}
	return p
}

// String renders the prefix in nick!user@host form, omitting empty parts.
func (p Prefix) String() string {
	var b strings.Builder
	b.WriteString(p.Nick)
	if p.User != "" {
		b.WriteByte('!')
		b.WriteString(p.User)
	}
	if p.Host != "" {
		b.WriteByte('@')
		b.WriteString(p.Host)
	}
	return b.String()
}

// IsZero reports whether the prefix is empty.
func (p Prefix) IsZero() bool {
	return p.Nick == "" && p.User == "" && p.Host == ""
}

// Message is one inbound or outbound IRC line.
type Message struct {
	Prefix  Prefix
	Command string
	Params  []string
}

// NewMessage builds a message without a prefix.
func NewMessage(command string, params ...string) *Message {
	return &Message{Command: command, Params: params}
}

// ParseMessage parses one line (without trailing CRLF) into a Message.
// It returns an error for empty lines or lines with no command.
func ParseMessage(line string) (*Message, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil, fmt.Errorf("ircd: empty message")
	}
	if strings.ContainsAny(line, "\r\n") {
		return nil, fmt.Errorf("ircd: embedded line break: %q", line)
	}

	msg := &Message{}
	rest := line

	if strings.HasPrefix(rest, ":") {
		i := strings.Index(rest, " ")
		if i < 0 {
			return nil, fmt.Errorf("ircd: prefix without command: %q", line)
		}
		msg.Prefix = ParsePrefix(rest[1:i])
		rest = strings.TrimLeft(rest[i+1:], " ")
	}

	var trailing string
	hasTrailing := false
	if i := strings.Index(rest, " :"); i >= 0 {
		trailing = rest[i+2:]
		hasTrailing = true
		rest = rest[:i]
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, fmt.Errorf("ircd: message without command: %q", line)
	}
	msg.Command = strings.ToUpper(fields[0])
	msg.Params = fields[1:]
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
	}
	return msg, nil
}

// String renders the message as a wire line without CRLF. The final
// parameter is sent as a trailing parameter when it contains a space, is
// empty, or starts with ":".
func (m *Message) String() string {
	var b strings.Builder
	if !m.Prefix.IsZero() {
		b.WriteByte(':')
		b.WriteString(m.Prefix.String())
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	for i, p := range m.Params {
		b.WriteByte(' ')
		if i == len(m.Params)-1 && (p == "" || strings.HasPrefix(p, ":") || strings.ContainsAny(p, " ")) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}
	return b.String()
}

// Param returns the i-th parameter or "" when absent.
func (m *Message) Param(i int) string {
	if i < 0 || i >= len(m.Params) {
		return ""
	}
	return m.Params[i]
}

// Trailing returns the last parameter or "" when there are none.
func (m *Message) Trailing() string {
	if len(m.Params) == 0 {
		return ""
	}
	return m.Params[len(m.Params)-1]
}
