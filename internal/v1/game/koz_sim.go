package game

import (
	"math"
	"math/rand"
	"time"

	"github.com/heroarena/game-server/internal/v1/geom"
	"github.com/heroarena/game-server/internal/v1/metrics"
	"github.com/heroarena/game-server/internal/v1/stats"
	"github.com/heroarena/game-server/internal/v1/wire"
)

// Tick advances the full KOZ simulation by dt seconds. Step order is
// fixed: lifecycle, zone, players, projectiles, powerups, core, scoring,
// win check, snapshot.
func (r *kozRoom) Tick(now time.Time, dt float64) {
	var summary *stats.MatchSummary

	r.mu.Lock()
	r.stepLifecycleLocked(now)

	if r.phase == PhaseActive {
		r.stepZoneLocked(now, dt)
		r.stepPlayersLocked(now, dt)
		r.stepProjectilesLocked(now, dt)
		r.stepPowerupsLocked(now)
		r.stepCoreLocked(now, dt)
		r.stepScoringLocked(now)
		summary = r.checkWinLocked(now)
	}

	if now.After(r.nextPulseAt) {
		r.nextPulseAt = now.Add(time.Second)
		r.broadcastLocked(wire.EvMatchState, map[string]any{
			"phase":      string(r.phase),
			"players":    len(r.players),
			"spectators": len(r.spectators),
			"scoreboard": r.scoreboardLocked(),
		}, "")
		r.broadcastLocked(wire.EvLobbyUpdate, map[string]any{
			"roster": r.lobbyRosterLocked(),
		}, "")
	}
	if now.After(r.nextSnapshotAt) {
		r.nextSnapshotAt = now.Add(time.Second / time.Duration(r.cfg.SnapshotHz))
		r.broadcastLocked(wire.EvState, r.snapshotLocked(now), "")
	} else if r.phase == PhaseActive && len(r.projectiles) > 0 {
		// Shots move too fast for the snapshot cadence alone; ticks
		// between snapshots carry a positions-only update.
		r.broadcastLocked(wire.EvProjectilePositions, map[string]any{
			"projectiles": r.projectilePositionsLocked(),
		}, "")
	}
	metrics.ActiveProjectiles.WithLabelValues(string(ModeKOZ)).Set(float64(len(r.projectiles)))
	r.mu.Unlock()

	if summary != nil {
		r.recordMatch(*summary)
	}
}

// --- lifecycle ---

func (r *kozRoom) stepLifecycleLocked(now time.Time) {
	switch r.phase {
	case PhaseLobby:
		if len(r.players) >= kozMinPlayers {
			r.phase = PhaseCountdown
			r.phaseEndsAt = now.Add(kozCountdown)
			r.lastCount = -1
			r.broadcastLocked(wire.EvCountdownStart, map[string]any{
				"seconds": int(kozCountdown.Seconds()),
			}, "")
		}

	case PhaseCountdown:
		if len(r.players) < kozMinPlayers {
			r.phase = PhaseLobby
			r.broadcastLocked(wire.EvCountdownCancelled, map[string]any{
				"reason": "not_enough_players",
			}, "")
			return
		}
		remaining := int(math.Ceil(r.phaseEndsAt.Sub(now).Seconds()))
		if remaining != r.lastCount && remaining > 0 {
			r.lastCount = remaining
			r.broadcastLocked(wire.EvCountdownStart, map[string]any{"seconds": remaining}, "")
		}
		if !now.Before(r.phaseEndsAt) {
			r.startMatchLocked(now)
		}

	case PhaseResults:
		if !now.Before(r.phaseEndsAt) {
			r.phase = PhaseLobby
			r.resetWorldLocked(now)
			for _, p := range r.players {
				r.resetPlayerLocked(p, now)
			}
			// Everyone who waited out the results gets a seat next round.
			for len(r.players) < kozMaxActive && len(r.spectators) > 0 {
				r.promoteSpectatorLocked(now)
			}
		}
	}
}

func (r *kozRoom) startMatchLocked(now time.Time) {
	r.phase = PhaseActive
	r.startedAt = now
	r.matchEndsAt = now.Add(kozMatchDuration)
	r.resetWorldLocked(now)
	for _, p := range r.players {
		r.resetPlayerLocked(p, now)
		r.seatPlayerLocked(p, now)
	}
	r.broadcastLocked(wire.EvMatchStart, map[string]any{
		"duration":    kozMatchDuration.Seconds(),
		"scoreTarget": kozScoreTarget,
	}, "")
}

func (r *kozRoom) resetPlayerLocked(p *Player, now time.Time) {
	p.HP = p.MaxHP
	p.Shield = 0
	p.Alive = true
	p.Score = 0
	p.Kills = 0
	p.Deaths = 0
	p.Ammo = kozMaxAmmo
	p.VX, p.VY = 0, 0
	p.CoreSeconds = 0
	p.OverclockMeter = 0
	p.OverclockUntil = time.Time{}
	p.ShieldUntil = time.Time{}
	p.DamageUntil = time.Time{}
	p.SpeedUntil = time.Time{}
	p.RapidFireUntil = time.Time{}
	p.RespawnAt = time.Time{}
	p.NextAmmoAt = now.Add(kozAmmoRegen)
	p.StormTickAt = time.Time{}
}

// checkWinLocked ends the match when a player reaches the score target or
// the clock runs out. Exactly one match_end fires per match.
func (r *kozRoom) checkWinLocked(now time.Time) *stats.MatchSummary {
	if r.matchEnded {
		return nil
	}

	var winner *Player
	for _, p := range r.players {
		if p.Score >= kozScoreTarget {
			if winner == nil || kozRanksAbove(p, winner) {
				winner = p
			}
		}
	}
	timeUp := !now.Before(r.matchEndsAt)
	if winner == nil && !timeUp {
		return nil
	}
	if winner == nil {
		for _, p := range r.players {
			if winner == nil || kozRanksAbove(p, winner) {
				winner = p
			}
		}
	}

	r.matchEnded = true
	r.phase = PhaseResults
	r.phaseEndsAt = now.Add(kozResultsDuration)

	outcome := "score_target"
	if timeUp {
		outcome = "time_up"
	}
	var winnerID ConnID
	var winnerName string
	if winner != nil {
		winnerID = winner.ConnID
		winnerName = winner.DisplayName
	}
	board := r.scoreboardLocked()
	r.broadcastLocked(wire.EvMatchEnd, map[string]any{
		"winner":     string(winnerID),
		"winnerName": winnerName,
		"reason":     outcome,
		"scoreboard": board,
	}, "")
	r.broadcastLocked(wire.EvResults, map[string]any{
		"scoreboard": board,
		"duration":   now.Sub(r.startedAt).Seconds(),
	}, "")

	s := r.matchSummaryLocked(now, winnerID, outcome)
	return &s
}

// --- zone ---

func (r *kozRoom) stepZoneLocked(now time.Time, dt float64) {
	z := &r.zone

	// Drift the center toward its target, clamped so the circle stays on
	// the map with padding.
	if z.DriftX != 0 || z.DriftY != 0 {
		dx, dy, mag := geom.Normalize(z.DriftX-z.X, z.DriftY-z.Y)
		const driftSpeed = 18.0
		if mag <= driftSpeed*dt {
			z.X, z.Y = z.DriftX, z.DriftY
			z.DriftX, z.DriftY = 0, 0
		} else {
			z.X += dx * driftSpeed * dt
			z.Y += dy * driftSpeed * dt
		}
		pad := z.Radius * 0.4
		z.X = geom.Clamp(z.X, pad, kozMapWidth-pad)
		z.Y = geom.Clamp(z.Y, pad, kozMapHeight-pad)
	}

	// Animate an in-progress shrink.
	if now.Before(z.ShrinkUntil) {
		t := 1 - z.ShrinkUntil.Sub(now).Seconds()/kozShrinkDuration.Seconds()
		z.Radius = z.shrinkFrom + (z.TargetRadius-z.shrinkFrom)*t
		return
	}
	z.Radius = z.TargetRadius

	// Schedule the next shrink.
	if z.TargetRadius > kozZoneMinRadius && now.After(z.NextShrinkAt) {
		z.NextShrinkAt = now.Add(kozShrinkInterval)
		z.shrinkFrom = z.Radius
		next := z.TargetRadius * 0.72
		if next < kozZoneMinRadius {
			next = kozZoneMinRadius
		}
		z.TargetRadius = next
		z.ShrinkUntil = now.Add(kozShrinkDuration)
		z.DriftX = geom.Clamp(z.X+(rand.Float64()-0.5)*next, next*0.5, kozMapWidth-next*0.5)
		z.DriftY = geom.Clamp(z.Y+(rand.Float64()-0.5)*next, next*0.5, kozMapHeight-next*0.5)
		r.broadcastLocked(wire.EvZoneEvent, map[string]any{
			"event":        "shrink",
			"radius":       z.Radius,
			"targetRadius": z.TargetRadius,
			"duration":     kozShrinkDuration.Seconds(),
		}, "")
	}
}

// finaleActive reports whether the storm multiplier applies.
func (r *kozRoom) finaleActiveLocked(now time.Time) bool {
	return r.zone.TargetRadius <= kozZoneMinRadius || r.matchEndsAt.Sub(now) <= kozFinaleWindow
}

// --- players ---

func (r *kozRoom) stepPlayersLocked(now time.Time, dt float64) {
	for _, p := range r.players {
		if !p.Alive {
			if !p.RespawnAt.IsZero() && !now.Before(p.RespawnAt) {
				r.respawnLocked(p, now)
			}
			continue
		}

		// Ammo regen catches up after long tick gaps.
		for p.Ammo < kozMaxAmmo && !now.Before(p.NextAmmoAt) {
			p.Ammo++
			p.NextAmmoAt = p.NextAmmoAt.Add(kozAmmoRegen)
		}
		if p.Ammo >= kozMaxAmmo {
			p.NextAmmoAt = now.Add(kozAmmoRegen)
		}

		r.stepMovementLocked(p, now, dt)
		r.stepStormLocked(p, now)
	}

	// Pairwise push-out in connection-id order so resolution is
	// deterministic regardless of map iteration.
	ordered := make([]*Player, 0, len(r.players))
	for _, connID := range r.joinOrder {
		if p, ok := r.players[connID]; ok && p.Alive {
			ordered = append(ordered, p)
		}
	}
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			a, b := ordered[i], ordered[j]
			x, y := geom.ResolveCircleCircle(b.X, b.Y, a.X, a.Y, 2*playerRadiusKOZ)
			b.X = geom.Clamp(x, playerRadiusKOZ, kozMapWidth-playerRadiusKOZ)
			b.Y = geom.Clamp(y, playerRadiusKOZ, kozMapHeight-playerRadiusKOZ)
		}
	}
}

func (r *kozRoom) stepMovementLocked(p *Player, now time.Time, dt float64) {
	ax, ay := p.InputAxes()
	speed := SpeedFor(p.Hero) * p.MoveMult(now)

	if ax != 0 || ay != 0 {
		blend := math.Min(1, 16*dt)
		p.VX += (ax*speed - p.VX) * blend
		p.VY += (ay*speed - p.VY) * blend
	} else {
		friction := 1 - 10*dt
		if friction < 0 {
			friction = 0
		}
		p.VX *= friction
		p.VY *= friction
	}

	p.X = geom.Clamp(p.X+p.VX*dt, playerRadiusKOZ, kozMapWidth-playerRadiusKOZ)
	p.Y = geom.Clamp(p.Y+p.VY*dt, playerRadiusKOZ, kozMapHeight-playerRadiusKOZ)

	// Wall resolution zeroes velocity on the resolved axis.
	for _, rect := range kozObstacles {
		x, y, axis := geom.ResolveCircleRect(p.X, p.Y, playerRadiusKOZ, rect)
		switch axis {
		case "x":
			p.X, p.VX = x, 0
		case "y":
			p.Y, p.VY = y, 0
		}
	}
}

func (r *kozRoom) stepStormLocked(p *Player, now time.Time) {
	if p.StormTickAt.IsZero() {
		p.StormTickAt = now.Add(kozStormTick)
		return
	}
	for !now.Before(p.StormTickAt) {
		p.StormTickAt = p.StormTickAt.Add(kozStormTick)
		inside := geom.Dist(p.X, p.Y, r.zone.X, r.zone.Y) <= r.zone.Radius
		if inside {
			p.HP = math.Min(p.MaxHP, p.HP+kozZoneRegen)
			continue
		}
		dmg := kozStormDamage
		if r.finaleActiveLocked(now) {
			dmg *= kozFinaleMult
		}
		r.applyDamageLocked(p, dmg, "", now)
		if !p.Alive {
			return
		}
	}
}

func (r *kozRoom) respawnLocked(p *Player, now time.Time) {
	p.Alive = true
	p.HP = p.MaxHP
	p.Shield = 0
	p.VX, p.VY = 0, 0
	p.Ammo = kozMaxAmmo
	p.NextAmmoAt = now.Add(kozAmmoRegen)
	p.RespawnAt = time.Time{}
	// Storm ticks that accrued while dead must not land on revival.
	p.StormTickAt = time.Time{}

	idx := (kozSeatIndex(p.ConnID) + int(now.Unix())) % len(kozSpawns)
	seat := kozSpawns[idx]
	p.X, p.Y = seat.X, seat.Y
	for _, other := range r.players {
		if other.ConnID == p.ConnID || !other.Alive {
			continue
		}
		p.X, p.Y = geom.ResolveCircleCircle(p.X, p.Y, other.X, other.Y, 2*playerRadiusKOZ)
	}
}

// kozSeatIndex derives a stable per-connection offset into the spawn
// table.
func kozSeatIndex(connID ConnID) int {
	sum := 0
	for _, b := range []byte(connID) {
		sum += int(b)
	}
	return sum
}

// --- projectiles ---

func (r *kozRoom) stepProjectilesLocked(now time.Time, dt float64) {
	var removed []string

	for id, j := range r.projectiles {
		if !stepProjectile(j, dt, kozMapWidth, kozMapHeight) || hitsObstacle(j, kozObstacles) {
			delete(r.projectiles, id)
			removed = append(removed, id)
			continue
		}

		// First live non-owner within reach takes the hit.
		var target *Player
		for _, p := range r.players {
			if p.ConnID == j.OwnerConn || !p.Alive {
				continue
			}
			if geom.Dist(j.X, j.Y, p.X, p.Y) <= playerRadiusKOZ+j.Radius {
				target = p
				break
			}
		}
		if target == nil {
			continue
		}

		if owner, ok := r.players[j.OwnerConn]; ok {
			owner.BulletsHit++
			owner.DamageDealt += j.Damage
		}
		r.applyDamageLocked(target, j.Damage, j.OwnerConn, now)

		// Splash clips everyone near the impact except the owner and the
		// primary target.
		if j.SplashRadius > 0 {
			splash := j.Damage * 0.55
			for _, p := range r.players {
				if p.ConnID == j.OwnerConn || p.ConnID == target.ConnID || !p.Alive {
					continue
				}
				if geom.Dist(j.X, j.Y, p.X, p.Y) <= j.SplashRadius {
					if owner, ok := r.players[j.OwnerConn]; ok {
						owner.DamageDealt += splash
					}
					r.applyDamageLocked(p, splash, j.OwnerConn, now)
				}
			}
		}

		if j.Pierce > 0 {
			j.Pierce--
			continue
		}
		delete(r.projectiles, id)
		removed = append(removed, id)
	}

	if len(removed) > 0 {
		r.broadcastLocked(wire.EvProjectileRemoved, map[string]any{"ids": removed}, "")
	}
}

// applyDamageLocked is the single damage funnel: shield absorbs first,
// then hp, then the death path with kill attribution. attacker is empty
// for storm damage.
func (r *kozRoom) applyDamageLocked(p *Player, dmg float64, attacker ConnID, now time.Time) {
	if !p.Alive || dmg <= 0 {
		return
	}

	if p.Shield > 0 {
		absorbed := math.Min(p.Shield, dmg)
		p.Shield -= absorbed
		dmg -= absorbed
	}
	if dmg > 0 {
		p.HP -= dmg
	}
	r.broadcastLocked(wire.EvPlayerDamaged, map[string]any{
		"connId":   string(p.ConnID),
		"hp":       math.Max(0, p.HP),
		"shield":   p.Shield,
		"attacker": string(attacker),
	}, "")
	if p.HP > 0 {
		return
	}

	p.HP = 0
	p.Alive = false
	p.Deaths++
	p.RespawnAt = now.Add(kozRespawnDelay)
	r.dropCoreIfHeldLocked(p.ConnID, now)

	killerName := "Storm"
	var killerWeapon string
	if attacker != "" && attacker != p.ConnID {
		if killer, ok := r.players[attacker]; ok {
			killer.Kills++
			killer.Score += kozKillScore
			killerName = killer.DisplayName
			killerWeapon = killer.Weapon
		}
	}
	entry := KillfeedEntry{
		KillerName: killerName,
		VictimName: p.DisplayName,
		Weapon:     killerWeapon,
		Timestamp:  now.UnixMilli(),
	}
	r.killfeed.push(entry)
	r.broadcastLocked(wire.EvPlayerDied, map[string]any{
		"connId":    string(p.ConnID),
		"name":      p.DisplayName,
		"killer":    string(attacker),
		"respawnIn": kozRespawnDelay.Seconds(),
	}, "")
	r.broadcastLocked(wire.EvKillfeed, entry, "")
}

// --- powerups ---

func (r *kozRoom) stepPowerupsLocked(now time.Time) {
	if now.After(r.nextPowerupAt) && len(r.powerups) < kozMaxPowerups {
		r.nextPowerupAt = now.Add(kozPowerupPeriod)
		if spot, ok := r.pickPowerupSpotLocked(); ok {
			pu := newPowerup(pickPowerupType(kozPowerupTypes), spot.X, spot.Y, now)
			r.powerups[pu.ID] = pu
			r.broadcastLocked(wire.EvPowerupSpawned, pu, "")
		}
	}

	for id, pu := range r.powerups {
		for _, p := range r.players {
			if !p.Alive || !pickupRange(p, pu, playerRadiusKOZ) {
				continue
			}
			applyPowerup(p, pu.Type, now)
			delete(r.powerups, id)
			r.broadcastLocked(wire.EvPowerupCollected, map[string]any{
				"powerup": pu,
				"by":      string(p.ConnID),
			}, "")
			break
		}
	}
}

// pickPowerupSpotLocked returns a spawn spot with 50 units of clearance
// from every player and existing pickup.
func (r *kozRoom) pickPowerupSpotLocked() (geom.Vec, bool) {
	start := rand.Intn(len(kozPowerupSpots))
	for i := 0; i < len(kozPowerupSpots); i++ {
		spot := kozPowerupSpots[(start+i)%len(kozPowerupSpots)]
		clear := true
		for _, p := range r.players {
			if geom.Dist(spot.X, spot.Y, p.X, p.Y) < 50 {
				clear = false
				break
			}
		}
		for _, pu := range r.powerups {
			if geom.Dist(spot.X, spot.Y, pu.X, pu.Y) < 50 {
				clear = false
				break
			}
		}
		if clear {
			return spot, true
		}
	}
	return geom.Vec{}, false
}

// --- core ---

func (r *kozRoom) stepCoreLocked(now time.Time, dt float64) {
	c := &r.core

	if c.Holder != "" {
		holder, ok := r.players[c.Holder]
		if !ok || !holder.Alive {
			r.dropCoreIfHeldLocked(c.Holder, now)
			return
		}
		c.X, c.Y = holder.X, holder.Y
		holder.CoreSeconds += dt

		// Holding the core charges the overclock meter.
		holder.OverclockMeter += kozOverclockFill * dt
		if holder.OverclockMeter >= kozOverclockMeter {
			holder.OverclockMeter = 0
			holder.OverclockUntil = now.Add(kozOverclockBuff)
			r.broadcastLocked(wire.EvControlChanged, map[string]any{
				"event":  "overclock",
				"connId": string(holder.ConnID),
				"until":  holder.OverclockUntil.UnixMilli(),
			}, "")
		}
		return
	}

	if now.Before(c.DropUnlockAt) {
		return
	}
	for _, p := range r.players {
		if !p.Alive {
			continue
		}
		if geom.Dist(p.X, p.Y, c.X, c.Y) <= playerRadiusKOZ+powerupRadius {
			c.Holder = p.ConnID
			r.broadcastLocked(wire.EvControlChanged, map[string]any{
				"event":  "pickup",
				"connId": string(p.ConnID),
			}, "")
			return
		}
	}
}

// dropCoreIfHeldLocked releases the core where its holder stands with a
// short pickup lockout.
func (r *kozRoom) dropCoreIfHeldLocked(connID ConnID, now time.Time) {
	if r.core.Holder != connID || connID == "" {
		return
	}
	r.core.Holder = ""
	r.core.DropUnlockAt = now.Add(kozCoreUnlockDelay)
	r.broadcastLocked(wire.EvControlChanged, map[string]any{
		"event": "drop",
		"x":     r.core.X,
		"y":     r.core.Y,
	}, "")
}

// --- scoring ---

// stepScoringLocked credits the core holder one point per whole held
// second, catching up if ticks fell behind.
func (r *kozRoom) stepScoringLocked(now time.Time) {
	for !now.Before(r.nextScoreAt) {
		r.nextScoreAt = r.nextScoreAt.Add(time.Second)
		if r.core.Holder == "" {
			continue
		}
		if holder, ok := r.players[r.core.Holder]; ok && holder.Alive {
			holder.Score++
		}
	}
}
