package game

import (
	"math"

	"github.com/nx0ly/moomoo2/internal/config"
)

// integrate steers the player's velocity toward its heading (or brakes it
// with friction when idle) and advances its position by one step.
func (p *Player) integrate(cfg config.PlayerConfig) {
	dt := cfg.UpdateDT

	if p.Moving {
		tx := math.Cos(p.MoveDir) * cfg.MaxSpeed
		ty := math.Sin(p.MoveDir) * cfg.MaxSpeed
		dx, dy := tx-p.VX, ty-p.VY
		dist := math.Hypot(dx, dy)
		step := cfg.Acceleration * dt
		if dist > step {
			p.VX += dx / dist * step
			p.VY += dy / dist * step
		} else {
			p.VX, p.VY = tx, ty
		}
	} else {
		speed := math.Hypot(p.VX, p.VY)
		drop := cfg.Friction * dt
		if speed > drop {
			p.VX -= p.VX / speed * drop
			p.VY -= p.VY / speed * drop
		} else {
			p.VX, p.VY = 0, 0
		}
	}

	p.X += p.VX * dt
	p.Y += p.VY * dt
}

func (a *Animal) integrate(dt float64) {
	a.X += a.VX * dt
	a.Y += a.VY * dt
}

// movePlayers advances every player and animal by one step.
func (e *Engine) movePlayers() {
	for _, p := range e.order {
		p.integrate(e.cfg.Players)
	}
	for _, a := range e.animals {
		a.integrate(e.cfg.Players.UpdateDT)
	}
}
