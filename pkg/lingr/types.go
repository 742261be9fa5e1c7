// Copyright 2024-2026 Aiku AI

package lingr

import (
	"fmt"
	"strconv"
)

// API error codes that the gateway's recovery policy keys on. All other
// codes are treated as opaque transient failures.
const (
	CodeInvalidSession = 102
	CodeInvalidTicket  = 109
)

// APIError is a structured error returned by the Lingr API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lingr: api error %d: %s", e.Code, e.Message)
}

// response is the common envelope of every API reply.
type response struct {
	Status string    `json:"status"`
	Err    *APIError `json:"error"`
}

func (r *response) apiError() error {
	if r.Status == "ok" {
		return nil
	}
	if r.Err != nil {
		return r.Err
	}
	return fmt.Errorf("lingr: unexpected status %q", r.Status)
}

type sessionResult struct {
	response
	Session string `json:"session"`
}

// UserInfo describes the authenticated account.
type UserInfo struct {
	response
	UserID          string `json:"user_id"`
	DefaultNickname string `json:"default_nickname"`
	Description     string `json:"description"`
}

// RoomDesc describes a room as returned by enter.
type RoomDesc struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// EnterResult is the reply to a room enter call. Ticket and Counter seed
// the observe loop for this occupancy.
type EnterResult struct {
	response
	Ticket     string   `json:"ticket"`
	Counter    int64    `json:"counter"`
	OccupantID string   `json:"occupant_id"`
	Room       RoomDesc `json:"room"`
}

// Message is one room event delivered by observe. Type is "user",
// "private", or one of the "system:*" kinds.
type Message struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Nickname    string `json:"nickname"`
	NewNickname string `json:"new_nickname"`
	Text        string `json:"text"`
	OccupantID  string `json:"occupant_id"`
	UserID      string `json:"user_id"`
	Timestamp   string `json:"timestamp"`
}

// Seq returns the message's sequence number. IDs are decimal strings on
// the wire; a missing or malformed ID yields 0.
func (m Message) Seq() int64 {
	n, err := strconv.ParseInt(m.ID, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// Occupant is one member of a room snapshot. Unlike Message records the
// occupant identifier is in the "id" field.
type Occupant struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Nickname    string `json:"nickname"`
	Description string `json:"description"`
}

// ObserveResult is the reply to a long-poll observe call. Counter is 0
// when the server did not advance the cursor; Messages and Occupants may
// each be absent.
type ObserveResult struct {
	response
	Counter   int64      `json:"counter"`
	Messages  []Message  `json:"messages"`
	Occupants []Occupant `json:"occupants"`
}

// RoomInfo is the reply to a room snapshot call.
type RoomInfo struct {
	response
	Occupants []Occupant `json:"occupants"`
}
