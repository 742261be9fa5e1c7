// Copyright 2024-2026 Aiku AI

package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/aiku/lingr-ircd/pkg/ircd"
	"github.com/aiku/lingr-ircd/pkg/lingr"
)

// observer runs the long-poll loop for one room occupancy.
type observer struct {
	sess *Session
	room *Room
	log  zerolog.Logger
}

// newBackoff builds the retry schedule for failed observe calls:
// exponential from the configured minimum, 20% jitter, capped at the
// configured maximum. The schedule is recreated after every successful
// poll so one bad stretch doesn't penalize the next.
func (s *Session) newBackoff() retry.Backoff {
	b := retry.NewExponential(s.cfg.backoffMin)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(s.cfg.backoffMax, b)
	return b
}

// startObserver spawns the room's observer goroutine. Its context is
// cancelled when the room is detached or the session ends.
func (s *Session) startObserver(room *Room) {
	ctx, cancel := context.WithCancel(s.ctx)
	room.cancel = cancel
	o := &observer{
		sess: s,
		room: room,
		log:  s.log.With().Str("room", room.Name).Logger(),
	}
	go o.run(ctx)
}

func (o *observer) run(ctx context.Context) {
	backoff := o.sess.newBackoff()
	for {
		res, err := o.sess.lingr.Observe(ctx, o.room.Ticket, o.room.counter)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			var apiErr *lingr.APIError
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case lingr.CodeInvalidSession:
					// The whole API session is void, not just this room.
					o.sess.terminate(apiErr.Error())
					return
				case lingr.CodeInvalidTicket:
					o.log.Warn().Err(err).Msg("Ticket invalidated, leaving room")
					o.sess.dropRoom(o.room, "Ticket expired")
					return
				}
			}
			delay, ok := backoff.Next()
			if !ok {
				delay = o.sess.cfg.backoffMax
			}
			o.log.Warn().Err(err).Dur("retry_in", delay).Msg("Observe failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		backoff = o.sess.newBackoff()
		o.apply(res)
	}
}

// apply folds one observe batch into the room: advance the counter,
// translate messages past the dedup watermark, and reconcile the
// occupant snapshot.
func (o *observer) apply(res *lingr.ObserveResult) {
	room := o.room
	if res.Counter > 0 {
		room.counter = res.Counter
	}

	var out []*ircd.Message
	for _, msg := range res.Messages {
		if seq := msg.Seq(); seq > 0 {
			if seq <= room.watermark {
				continue
			}
			room.watermark = seq
		}
		out = append(out, o.sess.translateMessage(room, msg)...)
	}
	room.replayed = true

	if len(res.Occupants) > 0 {
		out = append(out, o.sess.reconcileOccupants(room, res.Occupants)...)
	}
	o.sess.send(out...)
}
