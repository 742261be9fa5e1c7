// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"sync"

	"github.com/aiku/lingr-ircd/pkg/lingr"
)

// Room is the per-room bridge state. The plain fields are owned by the
// room's observer goroutine once it starts; the roster is additionally
// read from the dispatch path for WHO/WHOIS and is guarded by its own
// mutex.
type Room struct {
	// Name is the IRC channel name including "#", lowercased.
	Name string
	// ID is the remote room identifier.
	ID string
	// Ticket grants polling and posting rights for this occupancy.
	Ticket string
	// Password is re-supplied on snapshot calls.
	Password string
	// Topic is the room URL plus description.
	Topic string
	// Self is the gateway's own occupancy in this room.
	Self Identity

	// counter is the resume point for the next observe call.
	counter int64
	// watermark is the highest message sequence already translated.
	watermark int64
	// replayed is false until the first observe batch has been handled;
	// messages in that batch are historical backlog.
	replayed bool

	mu     sync.RWMutex
	roster map[string]Identity

	cancel context.CancelFunc
}

func newRoom(name string, res *lingr.EnterResult, password string, self Identity) *Room {
	r := &Room{
		Name:     name,
		ID:       res.Room.ID,
		Ticket:   res.Ticket,
		Password: password,
		Topic:    res.Room.URL + " " + res.Room.Description,
		Self:     self,
		counter:  res.Counter,
		roster:   map[string]Identity{self.Handle(): self},
	}
	return r
}

// addOccupant inserts the identity under its handle. It reports whether
// the handle was new.
func (r *Room) addOccupant(id Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roster[id.Handle()]; ok {
		return false
	}
	r.roster[id.Handle()] = id
	return true
}

// removeOccupant deletes the identity stored under handle.
func (r *Room) removeOccupant(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roster, handle)
}

// renameOccupant rekeys the roster entry from oldHandle to the new
// identity's handle.
func (r *Room) renameOccupant(oldHandle string, id Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.roster, oldHandle)
	r.roster[id.Handle()] = id
}

// Lookup returns the identity stored under handle.
func (r *Room) Lookup(handle string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.roster[handle]
	return id, ok
}

// RosterSize returns the number of known occupants, including self.
func (r *Room) RosterSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.roster)
}
