package game

import (
	"time"

	"github.com/heroarena/game-server/internal/v1/metrics"
)

// maxTickDelta bounds the simulation step so a stalled goroutine cannot
// teleport the world when it resumes.
const maxTickDelta = 0.12

// idleTickInterval is the relaxed cadence for rooms with no players,
// pending reap.
const idleTickInterval = 200 * time.Millisecond

// startLoopLocked launches the room's tick goroutine. Registry lock held.
func (reg *Registry) startLoopLocked(room Room) {
	stop := make(chan struct{})
	reg.loops[room.ID()] = stop
	reg.wg.Add(1)
	go reg.runLoop(room, stop)
}

func (reg *Registry) runLoop(room Room, stop chan struct{}) {
	defer reg.wg.Done()

	tickInterval := time.Second / time.Duration(reg.cfg.TickHz)
	mode := string(room.Mode())
	last := reg.clock.Now()

	for {
		select {
		case <-stop:
			return
		default:
		}

		now := reg.clock.Now()
		dt := now.Sub(last).Seconds()
		if dt < 0 {
			dt = 0
		}
		if dt > maxTickDelta {
			dt = maxTickDelta
		}
		last = now

		room.Tick(now, dt)
		metrics.TickDuration.WithLabelValues(mode).Observe(reg.clock.Since(now).Seconds())

		if room.Empty() && reg.removeIfEmpty(room) {
			return
		}

		wait := tickInterval
		if room.PlayerCount() == 0 {
			wait = idleTickInterval
		}
		select {
		case <-stop:
			return
		case <-reg.clock.After(wait):
		}
	}
}
