package game

// ShotResult describes what a shot did. A rejected shot has OK false and
// leaves the engine untouched.
type ShotResult struct {
	OK bool `json:"ok"`
	// Path lists the on-board tiles the ray examined, in order.
	Path []Position `json:"path,omitempty"`
	// Destroyed is the tile the shot resolved on: the destroyed tile, or
	// the tile of the unit that was struck.
	Destroyed *Position `json:"destroyed,omitempty"`
	Hit       PlayerID  `json:"hit,omitempty"`
	Killed    bool      `json:"killed,omitempty"`
	// Respawned is where a destroyed teleporter reappeared.
	Respawned *Position `json:"respawned,omitempty"`
	// Lost is set when a destroyed teleporter could not be re-placed.
	Lost bool `json:"lost,omitempty"`
}

type shotOutcome uint8

const (
	outcomeNone    shotOutcome = iota // blocked, off-board or not allowed
	outcomeHit                        // a unit is struck
	outcomeDestroy                    // floor or teleporter becomes a hole
)

// trace resolves a shot fired by shooter from origin in direction d.
//
// When probe is set the shooter is treated as standing at origin: its real
// tile counts as vacant. Nothing is mutated either way.
func (e *Engine) trace(shooter PlayerID, origin Position, d Direction, probe bool) ([]Position, Position, shotOutcome) {
	if !d.Valid() {
		return nil, origin, outcomeNone
	}
	ch := e.chars[shooter.Index()]

	occupant := func(p Position) PlayerID {
		if p == origin {
			return shooter
		}
		if probe && p == e.units[shooter.Index()] {
			return NoPlayer
		}
		cell, ok := e.board.At(p)
		if !ok {
			return NoPlayer
		}
		return cell.Occupant
	}

	// Melee: strike an adjacent opponent in any direction, nothing else.
	if ch.MeleeOnly() {
		target := origin.Step(d)
		if !e.board.InBounds(target.R, target.C) {
			return nil, target, outcomeNone
		}
		path := []Position{target}
		if occupant(target) == shooter.Opponent() {
			return path, target, outcomeHit
		}
		return path, target, outcomeNone
	}

	if !ch.ShootPattern.Allows(d) {
		return nil, origin, outcomeNone
	}

	var path []Position
	pos := origin
	for step := 1; ch.ShootRange == Unlimited || step <= ch.ShootRange; step++ {
		pos = pos.Step(d)
		cell, ok := e.board.At(pos)
		if !ok {
			return path, pos, outcomeNone
		}
		path = append(path, pos)

		switch {
		case occupant(pos) != NoPlayer:
			return path, pos, outcomeHit
		case cell.Type == CellEmpty || cell.Type == CellTeleport:
			return path, pos, outcomeDestroy
		default:
			// holes and mirrors stop the ray
			return path, pos, outcomeNone
		}
	}
	return path, pos, outcomeNone
}

// canShootAs reports whether player would have any effective shot if it
// stood at from.
func (e *Engine) canShootAs(player PlayerID, from Position) bool {
	for _, d := range AllDirections {
		if _, _, out := e.trace(player, from, d, true); out != outcomeNone {
			return true
		}
	}
	return false
}

// CanShootFrom reports whether the current player would have any effective
// shot from (r,c).
func (e *Engine) CanShootFrom(r, c int) bool {
	return e.canShootAs(e.current, Position{R: r, C: c})
}

// SimulateShot reports whether the current player, standing at (r,c), could
// fire in direction d with effect.
func (e *Engine) SimulateShot(r, c int, d Direction) bool {
	_, _, out := e.trace(e.current, Position{R: r, C: c}, d, true)
	return out != outcomeNone
}

// ValidShotDirs lists, in AllDirections order, the directions the current
// player could fire in from (r,c).
func (e *Engine) ValidShotDirs(r, c int) []Direction {
	var dirs []Direction
	for _, d := range AllDirections {
		if e.SimulateShot(r, c, d) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// ShootableTargets lists the distinct tiles the current player's shots from
// (r,c) would resolve on.
func (e *Engine) ShootableTargets(r, c int) []Position {
	origin := Position{R: r, C: c}
	seen := make(map[Position]bool)
	var targets []Position
	for _, d := range AllDirections {
		_, target, out := e.trace(e.current, origin, d, true)
		if out == outcomeNone || seen[target] {
			continue
		}
		seen[target] = true
		targets = append(targets, target)
	}
	return targets
}

// Shoot fires the current player's shot in direction d.
func (e *Engine) Shoot(d Direction) ShotResult {
	if e.gameOver || e.phase != PhaseShoot || !d.Valid() {
		return ShotResult{}
	}

	shooter := e.current
	path, target, out := e.trace(shooter, e.units[shooter.Index()], d, false)
	if out == outcomeNone {
		return ShotResult{Path: path}
	}

	e.journal = append(e.journal, Action{Kind: ActionShoot, Dir: d})
	res := ShotResult{OK: true, Path: path, Destroyed: &target}
	e.emit(EventTypeShot, ShotPayload{Shooter: shooter.String(), Dir: d.String(), Path: path, Target: target})

	switch out {
	case outcomeHit:
		cell, _ := e.board.At(target)
		victim := cell.Occupant
		res.Hit = victim
		if e.chars[victim.Index()].Invincible {
			e.emit(EventTypeHit, HitPayload{Victim: victim.String(), At: target, Absorbed: true})
			e.endTurn()
			return res
		}
		res.Killed = true
		e.emit(EventTypeHit, HitPayload{Victim: victim.String(), At: target})

		// Hitting yourself is a loss.
		winner := shooter
		if victim == shooter {
			winner = shooter.Opponent()
		}
		e.finish(winner, "kill")
		return res

	case outcomeDestroy:
		cell, _ := e.board.At(target)
		wasTeleport, link := cell.IsTeleport(), cell.LinkID
		cell.Destroy()
		e.emit(EventTypeTileDestroyed, TilePayload{At: target, Teleporter: wasTeleport})

		if wasTeleport && link != NoLink {
			if pos, ok := e.board.RespawnTeleporter(link); ok {
				res.Respawned = &pos
				e.emit(EventTypeTeleporterRespawn, TeleporterPayload{LinkID: link, At: pos})
			} else {
				res.Lost = true
				e.emit(EventTypeTeleporterLost, TeleporterPayload{LinkID: link, At: target})
			}
		}
		e.endTurn()
	}
	return res
}

// ShootTarget fires at the tile (r,c) if one of the current player's
// directions resolves on it.
func (e *Engine) ShootTarget(r, c int) bool {
	if e.gameOver || e.phase != PhaseShoot {
		return false
	}
	want := Position{R: r, C: c}
	from := e.units[e.current.Index()]
	for _, d := range AllDirections {
		if _, target, out := e.trace(e.current, from, d, false); out != outcomeNone && target == want {
			return e.Shoot(d).OK
		}
	}
	return false
}
