// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/lingr-ircd/pkg/ircd"
	"github.com/aiku/lingr-ircd/pkg/lingr"
)

// exitTimeout bounds the best-effort room exit calls during teardown.
const exitTimeout = 5 * time.Second

// clientConn is the transport surface the session needs. *ircd.Conn
// implements it; tests inject a capture.
type clientConn interface {
	ReadMessage() (*ircd.Message, error)
	WriteMessage(*ircd.Message) error
	Close() error
}

// Session bridges one registered IRC client connection to the Lingr API.
// All inbound commands are dispatched from Run's single read loop; each
// joined room runs its own observer goroutine that emits into the shared
// connection.
type Session struct {
	cfg   *Config
	conn  clientConn
	lingr *lingr.Client
	log   zerolog.Logger

	reg *ircd.Registration
	// nick is the raw nick presented at registration; it doubles as the
	// nickname requested on every room enter.
	nick  string
	copts []string

	user *lingr.UserInfo
	// self is the account-level identity; each room carries its own
	// occupancy-scoped copy in Room.Self.
	self Identity

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]*Room

	closeOnce sync.Once
}

// NewSession wires a registered connection to a fresh Lingr client.
func NewSession(cfg *Config, conn clientConn, reg *ircd.Registration, log zerolog.Logger) *Session {
	return &Session{
		cfg:   cfg,
		conn:  conn,
		lingr: lingr.NewClient(cfg.APIKey, cfg.APIBaseURL, log),
		log:   log.With().Str("component", "gateway").Logger(),
		reg:   reg,
		nick:  reg.Nick,
		copts: registrationOptions(reg),
		rooms: make(map[string]*Room),
	}
}

// registrationOptions splits client options off the realname field. The
// first word is the account email; anything after it is a client option.
func registrationOptions(reg *ircd.Registration) []string {
	fields := strings.Fields(reg.Realname)
	if len(fields) <= 1 {
		return nil
	}
	return fields[1:]
}

// accountEmail returns the login email from the registration: the first
// word of the realname, falling back to the username field.
func accountEmail(reg *ircd.Registration) string {
	if fields := strings.Fields(reg.Realname); len(fields) > 0 {
		return fields[0]
	}
	return reg.Username
}

// Run registers against the Lingr API and then dispatches inbound
// commands until the client disconnects or the session is terminated.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.ctx = ctx
	s.cancel = cancel
	defer cancel()

	if err := s.register(ctx); err != nil {
		s.notice(fmt.Sprintf("Login failed: %v", err))
		s.send(ircd.NewMessage(ircd.CmdError, "login failed"))
		return fmt.Errorf("gateway: registration: %w", err)
	}
	defer s.teardown()

	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gateway: read: %w", err)
		}
		if quit := s.handleMessage(ctx, msg); quit {
			return nil
		}
	}
}

func (s *Session) register(ctx context.Context) error {
	s.sendWelcome()

	s.notice(fmt.Sprintf("Hello %s, this is the Lingr IRC gateway.", s.nick))
	if len(s.copts) > 0 {
		s.notice("Client options: " + strings.Join(s.copts, ", "))
	}
	s.log.Info().Strs("client_options", s.copts).Msg("Client initialization complete")

	if err := s.lingr.CreateSession(ctx, "human"); err != nil {
		return err
	}
	if err := s.lingr.Login(ctx, accountEmail(s.reg), s.reg.Password); err != nil {
		return err
	}
	user, err := s.lingr.GetUserInfo(ctx)
	if err != nil {
		return err
	}
	s.user = user
	s.self = Identity{UserID: user.UserID, BaseNick: stripSpace(user.DefaultNickname)}

	// Switch the client to the derived handle so its own messages line up
	// with the prefixes the observers emit.
	s.send(&ircd.Message{
		Prefix:  ircd.Prefix{Nick: s.nick},
		Command: ircd.CmdNick,
		Params:  []string{s.self.Handle()},
	})

	s.log.Info().Str("user_id", user.UserID).Msg("Authenticated")
	return nil
}

func (s *Session) sendWelcome() {
	s.send(
		s.serverMsg(ircd.RplWelcome, s.nick, fmt.Sprintf("Welcome to the Lingr IRC gateway %s", s.nick)),
		s.serverMsg(ircd.RplYourHost, s.nick, fmt.Sprintf("Your host is %s, running lingr-ircd", s.cfg.ServerName)),
		s.serverMsg(ircd.RplCreated, s.nick, "This server bridges Lingr rooms"),
		s.serverMsg(ircd.RplMyInfo, s.nick, s.cfg.ServerName, "lingr-ircd", "o", "o"),
	)
}

// myNick is the nick numerics are addressed to: the derived handle once
// login has completed, the raw nick before that.
func (s *Session) myNick() string {
	if s.self.BaseNick != "" {
		return s.self.Handle()
	}
	return s.nick
}

// notice reports gateway-level status to the user as a NOTICE to their
// own nick. Line breaks are flattened to keep the message one line.
func (s *Session) notice(text string) {
	text = strings.Join(strings.Fields(text), " ")
	s.send(ircd.NewMessage(ircd.CmdNotice, s.myNick(), text))
}

func (s *Session) serverMsg(command string, params ...string) *ircd.Message {
	return &ircd.Message{
		Prefix:  ircd.Prefix{Nick: s.cfg.ServerName},
		Command: command,
		Params:  params,
	}
}

// send writes messages to the client in order. Write failures are logged
// only; the read loop notices the dead connection soon enough.
func (s *Session) send(msgs ...*ircd.Message) {
	for _, msg := range msgs {
		if err := s.conn.WriteMessage(msg); err != nil {
			s.log.Warn().Err(err).Str("command", msg.Command).Msg("Failed to write to client")
			return
		}
	}
}

func (s *Session) room(name string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[strings.ToLower(name)]
	return room, ok
}

func (s *Session) roomNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.rooms))
	for name := range s.rooms {
		names = append(names, name)
	}
	return names
}

// detachRoom removes the room from the table and stops its observer. It
// reports whether the room was still tracked, so concurrent teardown
// paths settle on a single winner.
func (s *Session) detachRoom(room *Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.Name]; !ok {
		return false
	}
	delete(s.rooms, room.Name)
	if room.cancel != nil {
		room.cancel()
	}
	return true
}

// terminate tears down the whole session: upstream voided the API
// session, so every room subscription is dead with it. Rooms are
// abandoned, not individually parted.
func (s *Session) terminate(reason string) {
	s.closeOnce.Do(func() {
		s.log.Error().Str("reason", reason).Msg("Terminating session")
		s.cancel()
		_ = s.conn.Close()
	})
}

// teardown leaves all rooms best-effort and stops their observers.
func (s *Session) teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), exitTimeout)
	defer cancel()

	for _, name := range s.roomNames() {
		room, ok := s.room(name)
		if !ok {
			continue
		}
		if !s.detachRoom(room) {
			continue
		}
		if err := s.lingr.ExitRoom(ctx, room.Ticket); err != nil {
			s.log.Warn().Err(err).Str("room", room.Name).Msg("Failed to exit room during teardown")
		}
	}
}
