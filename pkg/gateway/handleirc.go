// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aiku/lingr-ircd/pkg/ircd"
	"github.com/aiku/lingr-ircd/pkg/lingr"
)

// apiTimeout bounds client-triggered API calls so a stalled upstream
// can't wedge the dispatch loop.
const apiTimeout = 15 * time.Second

// handleMessage dispatches one inbound client command. It returns true
// when the client asked to quit.
func (s *Session) handleMessage(ctx context.Context, msg *ircd.Message) bool {
	switch msg.Command {
	case ircd.CmdPing:
		s.send(s.serverMsg(ircd.CmdPong, msg.Params...))
	case ircd.CmdJoin:
		s.handleJoin(ctx, msg)
	case ircd.CmdPart:
		s.handlePart(ctx, msg)
	case ircd.CmdPrivmsg:
		s.handlePrivmsg(ctx, msg)
	case ircd.CmdWho:
		s.handleWho(ctx, msg)
	case ircd.CmdWhois:
		s.handleWhois(msg)
	case ircd.CmdQuit:
		return true
	case ircd.CmdNick, ircd.CmdUser, ircd.CmdPass:
		// Registration already happened; silently ignore.
	default:
		s.log.Debug().Str("command", msg.Command).Msg("Ignoring unsupported command")
	}
	return false
}

func (s *Session) handleJoin(ctx context.Context, msg *ircd.Message) {
	if len(msg.Params) == 0 {
		return
	}
	password := msg.Param(1)
	for _, name := range strings.Split(msg.Params[0], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if err := s.joinRoom(ctx, name, password); err != nil {
			var apiErr *lingr.APIError
			if errors.As(err, &apiErr) {
				s.notice(fmt.Sprintf("Error: %d: %s", apiErr.Code, apiErr.Message))
			}
			s.notice(fmt.Sprintf("Couldn't join %s", name))
			s.log.Warn().Err(err).Str("room", name).Msg("Join failed")
		}
	}
}

// joinRoom enters the remote room, announces the join to the client and
// starts the room's observer.
func (s *Session) joinRoom(ctx context.Context, name, password string) error {
	name = strings.ToLower(name)
	if _, ok := s.room(name); ok {
		return nil
	}
	roomID := strings.TrimPrefix(name, "#")

	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	res, err := s.lingr.EnterRoom(ctx, roomID, s.nick, password)
	if err != nil {
		return err
	}

	self := s.self
	self.OccupantID = res.OccupantID
	room := newRoom(name, res, password, self)

	s.mu.Lock()
	s.rooms[name] = room
	s.mu.Unlock()

	s.send(
		&ircd.Message{Prefix: self.Prefix(), Command: ircd.CmdJoin, Params: []string{name}},
		s.serverMsg(ircd.CmdTopic, name, room.Topic),
		s.serverMsg(ircd.CmdMode, name, "+o", self.Handle()),
	)
	s.startObserver(room)
	return nil
}

func (s *Session) handlePart(ctx context.Context, msg *ircd.Message) {
	if len(msg.Params) == 0 {
		return
	}
	for _, name := range strings.Split(msg.Params[0], ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		room, ok := s.room(name)
		if !ok {
			s.send(s.serverMsg(ircd.ErrNoSuchChannel, s.myNick(), name, "No such channel"))
			continue
		}
		s.partRoom(ctx, room)
	}
}

// partRoom leaves a room at the client's request: stop the observer,
// exit upstream and confirm the part.
func (s *Session) partRoom(ctx context.Context, room *Room) {
	if !s.detachRoom(room) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	if err := s.lingr.ExitRoom(ctx, room.Ticket); err != nil {
		s.log.Warn().Err(err).Str("room", room.Name).Msg("Failed to exit room")
	}
	s.send(&ircd.Message{
		Prefix:  room.Self.Prefix(),
		Command: ircd.CmdPart,
		Params:  []string{room.Name, "Parted"},
	})
}

// dropRoom is the upstream-initiated counterpart of partRoom: the
// occupancy is already gone, so no exit call is made.
func (s *Session) dropRoom(room *Room, reason string) {
	if !s.detachRoom(room) {
		return
	}
	s.send(&ircd.Message{
		Prefix:  room.Self.Prefix(),
		Command: ircd.CmdPart,
		Params:  []string{room.Name, reason},
	})
}

func (s *Session) handlePrivmsg(ctx context.Context, msg *ircd.Message) {
	if len(msg.Params) < 2 {
		return
	}
	target := strings.ToLower(msg.Params[0])
	room, ok := s.room(target)
	if !ok {
		s.send(s.serverMsg(ircd.ErrNoSuchChannel, s.myNick(), target, "No such channel"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	if err := s.lingr.Say(ctx, room.Ticket, msg.Params[1]); err != nil {
		var apiErr *lingr.APIError
		if errors.As(err, &apiErr) {
			s.notice(fmt.Sprintf("Error: %d: %s", apiErr.Code, apiErr.Message))
		}
		s.notice(fmt.Sprintf("Couldn't say to %s", room.Name))
		s.log.Warn().Err(err).Str("room", room.Name).Msg("Say failed")
	}
}

// handleWho answers WHO for a joined room from a fresh occupant
// snapshot, so the reply reflects upstream rather than the cached
// roster.
func (s *Session) handleWho(ctx context.Context, msg *ircd.Message) {
	if len(msg.Params) == 0 {
		return
	}
	target := strings.ToLower(msg.Params[0])
	room, ok := s.room(target)
	if !ok {
		s.send(s.serverMsg(ircd.RplEndOfWho, s.myNick(), target, "End of WHO list"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, apiTimeout)
	defer cancel()
	info, err := s.lingr.GetRoomInfo(ctx, room.ID, room.Password)
	if err != nil {
		s.notice(fmt.Sprintf("Couldn't get room info for %s", room.Name))
		s.log.Warn().Err(err).Str("room", room.Name).Msg("Room info failed")
		s.send(s.serverMsg(ircd.RplEndOfWho, s.myNick(), target, "End of WHO list"))
		return
	}

	for _, occ := range info.Occupants {
		if occ.Nickname == "" {
			continue
		}
		id := ResolveOccupant(occ)
		desc := strings.Join(strings.Fields(occ.Description), " ")
		s.send(s.serverMsg(ircd.RplWhoReply,
			s.myNick(), room.Name, id.OccupantID, remoteHost, remoteHost,
			id.Handle(), "H*@", "0 "+desc))
	}
	s.send(s.serverMsg(ircd.RplEndOfWho, s.myNick(), target, "End of WHO list"))
}

// handleWhois resolves a handle against the cached rosters, scanning
// rooms in name order so repeated queries answer consistently.
func (s *Session) handleWhois(msg *ircd.Message) {
	if len(msg.Params) == 0 {
		return
	}
	handle := msg.Params[0]

	names := s.roomNames()
	sort.Strings(names)
	for _, name := range names {
		room, ok := s.room(name)
		if !ok {
			continue
		}
		id, ok := room.Lookup(handle)
		if !ok {
			continue
		}
		s.send(
			s.serverMsg(ircd.RplWhoisUser, s.myNick(), handle, id.Prefix().User, remoteHost, "*", id.BaseNick),
			s.serverMsg(ircd.RplWhoisServer, s.myNick(), handle, s.cfg.ServerName, "Lingr IRC gateway"),
			s.serverMsg(ircd.RplWhoisChannels, s.myNick(), handle, "@"+room.Name),
			s.serverMsg(ircd.RplEndOfWhois, s.myNick(), handle, "End of WHOIS list"),
		)
		return
	}
	s.send(s.serverMsg(ircd.ErrNoSuchNick, s.myNick(), handle, "No such nick/channel"))
}
