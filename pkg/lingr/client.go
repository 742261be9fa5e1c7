// Copyright 2024-2026 Aiku AI

// Package lingr is a client for the Lingr chat HTTP API: session
// management, ticket-based room entry, long-poll observation, and posting.
//
// Every call takes a context and returns either a decoded result or an
// error; API-level failures are *APIError values carrying the service's
// numeric code and can be matched with errors.As.
package lingr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "http://www.lingr.com/api"

const (
	// callTimeout bounds ordinary API calls.
	callTimeout = 15 * time.Second
	// observeTimeout bounds one long-poll observe call. The server holds
	// the request until data arrives or its own timeout elapses, so this
	// only guards against a hung connection.
	observeTimeout = 90 * time.Second
)

// Client talks to one Lingr API endpoint on behalf of one authenticated
// session. It is safe for concurrent use once Login has completed.
type Client struct {
	apiKey  string
	baseURL string

	http        *http.Client
	observeHTTP *http.Client

	session string
	log     zerolog.Logger
}

// NewClient creates a client for the given API key. baseURL falls back to
// DefaultBaseURL when empty.
func NewClient(apiKey, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: callTimeout},
		observeHTTP: &http.Client{Timeout: observeTimeout},
		log:         log.With().Str("component", "lingr_client").Logger(),
	}
}

// Session returns the current session token, or "" before CreateSession.
func (c *Client) Session() string {
	return c.session
}

// CreateSession opens a new API session. clientType is "human" for
// interactive gateways.
func (c *Client) CreateSession(ctx context.Context, clientType string) error {
	var res sessionResult
	err := c.call(ctx, c.http, "/session/create", url.Values{
		"api_key":     {c.apiKey},
		"client_type": {clientType},
	}, &res)
	if err != nil {
		return err
	}
	c.session = res.Session
	c.log.Debug().Msg("Session created")
	return nil
}

// Login authenticates the session with account credentials.
func (c *Client) Login(ctx context.Context, email, password string) error {
	var res response
	return c.call(ctx, c.http, "/session/login", url.Values{
		"session":  {c.session},
		"email":    {email},
		"password": {password},
	}, &res)
}

// GetUserInfo fetches the authenticated account's own record.
func (c *Client) GetUserInfo(ctx context.Context) (*UserInfo, error) {
	var res UserInfo
	err := c.call(ctx, c.http, "/user/get_info", url.Values{
		"session": {c.session},
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// EnterRoom joins a room under the given nickname. password may be empty.
// The returned ticket and counter seed the observe loop.
func (c *Client) EnterRoom(ctx context.Context, room, nickname, password string) (*EnterResult, error) {
	params := url.Values{
		"session":  {c.session},
		"id":       {room},
		"nickname": {nickname},
	}
	if password != "" {
		params.Set("password", password)
	}
	var res EnterResult
	if err := c.call(ctx, c.http, "/room/enter", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Observe long-polls for room events past the given counter. The call
// blocks until the server has news or times out server-side; cancel the
// context to abort an in-flight poll.
func (c *Client) Observe(ctx context.Context, ticket string, counter int64) (*ObserveResult, error) {
	var res ObserveResult
	err := c.call(ctx, c.observeHTTP, "/room/observe", url.Values{
		"session": {c.session},
		"ticket":  {ticket},
		"counter": {strconv.FormatInt(counter, 10)},
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Say posts a message to the room held by ticket.
func (c *Client) Say(ctx context.Context, ticket, text string) error {
	var res response
	return c.call(ctx, c.http, "/room/say", url.Values{
		"session": {c.session},
		"ticket":  {ticket},
		"message": {text},
	}, &res)
}

// GetRoomInfo fetches a point-in-time room snapshot, including occupants.
func (c *Client) GetRoomInfo(ctx context.Context, roomID, password string) (*RoomInfo, error) {
	params := url.Values{
		"session": {c.session},
		"id":      {roomID},
	}
	if password != "" {
		params.Set("password", password)
	}
	var res RoomInfo
	if err := c.call(ctx, c.http, "/room/get_info", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExitRoom releases the room subscription held by ticket.
func (c *Client) ExitRoom(ctx context.Context, ticket string) error {
	var res response
	return c.call(ctx, c.http, "/room/exit", url.Values{
		"session": {c.session},
		"ticket":  {ticket},
	}, &res)
}

// apiResult is implemented by every decoded reply via the embedded envelope.
type apiResult interface {
	apiError() error
}

func (c *Client) call(ctx context.Context, hc *http.Client, path string, params url.Values, out apiResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("lingr: build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("lingr: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("lingr: read %s response: %w", path, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("lingr: decode %s response: %w", path, err)
	}
	if err := out.apiError(); err != nil {
		return err
	}
	return nil
}
