// Copyright 2024-2026 Aiku AI

package gateway

import (
	"fmt"

	"github.com/aiku/lingr-ircd/pkg/ircd"
	"github.com/aiku/lingr-ircd/pkg/lingr"
)

// Remote message kinds delivered by observe.
const (
	msgTypeUser       = "user"
	msgTypePrivate    = "private"
	msgTypeEnter      = "system:enter"
	msgTypeLeave      = "system:leave"
	msgTypeNickChange = "system:nickname_change"
	msgTypeBroadcast  = "system:broadcast"
)

// translateMessage maps one observed room event to outbound IRC lines and
// applies the roster change the event implies. Self-originated chat is
// suppressed by occupant id: the client already saw its own typed text.
func (s *Session) translateMessage(room *Room, msg lingr.Message) []*ircd.Message {
	src := ResolveMessage(msg)
	fromSelf := src.OccupantID != "" && src.OccupantID == room.Self.OccupantID

	switch msg.Type {
	case msgTypeUser:
		if !room.replayed {
			// Historical backlog delivered on entry is marked as notices
			// so clients don't mistake it for live chat.
			return []*ircd.Message{{
				Prefix:  src.Prefix(),
				Command: ircd.CmdNotice,
				Params:  []string{room.Name, msg.Text},
			}}
		}
		if fromSelf {
			return nil
		}
		return []*ircd.Message{{
			Prefix:  src.Prefix(),
			Command: ircd.CmdPrivmsg,
			Params:  []string{room.Name, msg.Text},
		}}

	case msgTypePrivate:
		if fromSelf {
			return nil
		}
		return []*ircd.Message{{
			Prefix:  src.Prefix(),
			Command: ircd.CmdPrivmsg,
			Params:  []string{room.Name, fmt.Sprintf("\x01ACTION Sent private: %s\x01", msg.Text)},
		}}

	case msgTypeEnter:
		if fromSelf {
			return nil
		}
		room.addOccupant(src)
		return s.occupantJoined(room, src)

	case msgTypeLeave:
		if fromSelf {
			return nil
		}
		room.removeOccupant(src.Handle())
		return []*ircd.Message{{
			Prefix:  src.Prefix(),
			Command: ircd.CmdPart,
			Params:  []string{room.Name},
		}}

	case msgTypeNickChange:
		renamed := msg
		renamed.Nickname = msg.NewNickname
		dst := ResolveMessage(renamed)
		room.renameOccupant(src.Handle(), dst)
		return []*ircd.Message{{
			Prefix:  src.Prefix(),
			Command: ircd.CmdNick,
			Params:  []string{dst.Handle()},
		}}

	case msgTypeBroadcast:
		return []*ircd.Message{{
			Prefix:  ircd.Prefix{Nick: broadcastNick},
			Command: ircd.CmdNotice,
			Params:  []string{room.Name, msg.Text},
		}}

	default:
		s.log.Debug().Str("type", msg.Type).Str("room", room.Name).Msg("Unhandled message type")
		return nil
	}
}

// reconcileOccupants folds a point-in-time occupant snapshot into the
// roster. Snapshots only ever add: an occupant missing from one sample is
// not proof of absence, so departures come solely from explicit leave
// events.
func (s *Session) reconcileOccupants(room *Room, occupants []lingr.Occupant) []*ircd.Message {
	var out []*ircd.Message
	for _, o := range occupants {
		if o.Nickname == "" {
			continue
		}
		id := ResolveOccupant(o)
		if room.addOccupant(id) {
			out = append(out, s.occupantJoined(room, id)...)
		}
	}
	return out
}

// occupantJoined emits the join plus operator grant pair for a new
// participant. Every Lingr occupant is shown as an operator.
func (s *Session) occupantJoined(room *Room, id Identity) []*ircd.Message {
	return []*ircd.Message{
		{
			Prefix:  id.Prefix(),
			Command: ircd.CmdJoin,
			Params:  []string{room.Name},
		},
		s.serverMsg(ircd.CmdMode, room.Name, "+o", id.Handle()),
	}
}
