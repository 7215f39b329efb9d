package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mkarlin14/quizroom/internal/events"
	"github.com/mkarlin14/quizroom/internal/models"
	"github.com/mkarlin14/quizroom/internal/room"
)

// scheduleQuestionTimeout arms the wall-clock timer that force-ends a
// question after limit + buffer. The fired timer re-checks that the
// question is still current, so firing after a manual or early end is
// an idempotent no-op rather than a race.
func (c *Conductor) scheduleQuestionTimeout(code string, questionID uuid.UUID, d time.Duration) {
	timer := c.clock.NewTimer(d)
	c.replaceQuestionTimer(code, timer)

	ctx := c.runContext()
	go func() {
		select {
		case <-timer.Chan():
			c.removeQuestionTimer(code, timer)
			err := c.EndQuestion(ctx, code, questionID, events.EndReasonTimeout)
			switch err {
			case nil:
			case ErrQuestionNotCurrent, ErrRoomNotRunning, room.ErrRoomNotFound:
				// Question already ended or room gone; stale fire.
				log.Debug().
					Str("room_code", code).
					Str("question_id", questionID.String()).
					Msg("timeout fired for non-current question")
			default:
				log.Error().Err(err).Str("room_code", code).Msg("timeout end failed, retrying")
				c.scheduleQuestionTimeout(code, questionID, c.config.RetryInterval)
			}
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			c.removeQuestionTimer(code, timer)
		}
	}()

	log.Debug().
		Str("room_code", code).
		Str("question_id", questionID.String()).
		Dur("duration", d).
		Msg("scheduled question timeout")
}

// scheduleAdvanceIn arms the timer that moves the room to the next
// question after the reveal delay. Failures re-arm at the retry
// interval; the no-op errors stop the chain once the room is gone.
func (c *Conductor) scheduleAdvanceIn(code string, d time.Duration) {
	c.afterFunc(d, func(ctx context.Context) {
		_, err := c.AdvanceQuestion(ctx, code)
		switch err {
		case nil, room.ErrRoomNotFound, ErrRoomNotRunning, ErrQuestionNotCurrent:
		default:
			log.Error().Err(err).Str("room_code", code).Msg("scheduled advance failed, retrying")
			c.scheduleAdvanceIn(code, c.config.RetryInterval)
		}
	})
}

// scheduleEviction deletes a finished snapshot after the grace period
// so reconnecting clients can still fetch the results screen.
func (c *Conductor) scheduleEviction(code string) {
	c.afterFunc(c.config.FinishedGrace, func(ctx context.Context) {
		snapshot, err := c.store.Get(ctx, code)
		if err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("eviction check failed")
			return
		}
		if snapshot == nil || snapshot.Status != models.RoomStatusFinished {
			return
		}
		if err := c.store.Delete(ctx, code); err != nil {
			log.Error().Err(err).Str("room_code", code).Msg("failed to evict finished room")
			return
		}
		c.locks.Forget(code)
		log.Info().Str("room_code", code).Msg("finished room evicted")
	})
}

// afterFunc runs fn after d under the run context, aborting on
// shutdown.
func (c *Conductor) afterFunc(d time.Duration, fn func(context.Context)) {
	timer := c.clock.NewTimer(d)
	ctx := c.runContext()
	go func() {
		select {
		case <-timer.Chan():
			fn(ctx)
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		}
	}()
}

// replaceQuestionTimer atomically swaps the pending timer for a room,
// cancelling any previous one so a room never has two armed timeouts.
func (c *Conductor) replaceQuestionTimer(code string, timer clockwork.Timer) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if existing, ok := c.timers[code]; ok {
		stopAndDrainTimer(existing)
	}
	c.timers[code] = timer
}

// cancelQuestionTimer stops and removes the pending timer for a room.
func (c *Conductor) cancelQuestionTimer(code string) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if timer, ok := c.timers[code]; ok {
		stopAndDrainTimer(timer)
		delete(c.timers, code)
	}
}

// removeQuestionTimer drops a fired timer if it is still the one on
// record; a replacement may already have been armed.
func (c *Conductor) removeQuestionTimer(code string, fired clockwork.Timer) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if current, ok := c.timers[code]; ok && current == fired {
		delete(c.timers, code)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the
// goroutine waiting on it does not leak a late tick.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
