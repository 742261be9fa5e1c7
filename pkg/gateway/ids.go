// Copyright 2024-2026 Aiku AI

package gateway

import (
	"strings"

	"github.com/aiku/lingr-ircd/pkg/ircd"
	"github.com/aiku/lingr-ircd/pkg/lingr"
)

const (
	// remoteHost is the host part of every prefix the gateway emits for
	// remote participants.
	remoteHost = "lingr.com"
	// anonUser fills the user part of a prefix for occupants without an
	// account.
	anonUser = "anon"
	// broadcastNick is the sender of service-wide announcements.
	broadcastNick = "system.broadcast"
)

// Identity is the resolved identity of one room occupant. OccupantID is
// unique per room per session; UserID is empty for anonymous occupants.
type Identity struct {
	UserID     string
	OccupantID string
	BaseNick   string
}

// Anonymous reports whether the occupant has no account.
func (id Identity) Anonymous() bool {
	return id.UserID == ""
}

// Handle derives the locally unique nick for this occupant. Display names
// are not unique, so the handle is suffixed with the user id for accounts
// and with "_" plus the occupant id for anonymous occupants.
func (id Identity) Handle() string {
	if id.Anonymous() {
		return id.BaseNick + "|_" + id.OccupantID
	}
	return id.BaseNick + "|" + id.UserID
}

// Prefix renders the occupant as an IRC source prefix.
func (id Identity) Prefix() ircd.Prefix {
	user := id.UserID
	if user == "" {
		user = anonUser
	}
	return ircd.Prefix{Nick: id.Handle(), User: user, Host: remoteHost}
}

// stripSpace removes all whitespace from a display name. Handles must
// never contain whitespace.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// ResolveMessage resolves the sender of a room event.
func ResolveMessage(m lingr.Message) Identity {
	return Identity{
		UserID:     m.UserID,
		OccupantID: m.OccupantID,
		BaseNick:   stripSpace(m.Nickname),
	}
}

// ResolveOccupant resolves one entry of a room occupant snapshot.
func ResolveOccupant(o lingr.Occupant) Identity {
	return Identity{
		UserID:     o.UserID,
		OccupantID: o.ID,
		BaseNick:   stripSpace(o.Nickname),
	}
}
