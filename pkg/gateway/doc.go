// Copyright 2024-2026 Aiku AI

// Package gateway bridges IRC clients to Lingr chat rooms. Each accepted
// connection becomes one Session holding one authenticated Lingr API
// session; every channel the client joins maps to a room occupancy with
// its own long-poll observer goroutine feeding translated events back
// into the shared connection.
package gateway
