package game

import (
	"math"
)

// updateAnimals picks each animal's state and velocity for this tick.
// Players are bucketed into the grid so each animal only looks at players
// in nearby cells.
func (e *Engine) updateAnimals() {
	if len(e.animals) == 0 {
		return
	}
	cfg := e.cfg.Animals

	e.grid.Clear()
	for i, p := range e.order {
		e.grid.Insert(i, p.X, p.Y)
	}

	for _, a := range e.animals {
		sight := cfg.WolfSightRange
		if a.Type == Fish {
			sight = cfg.FishFleeRange
		}

		near := -1
		best := math.Inf(1)
		e.nearby = e.grid.Near(a.X, a.Y, sight, e.nearby[:0])
		for _, i := range e.nearby {
			p := e.order[i]
			if d := math.Hypot(p.X-a.X, p.Y-a.Y); d <= sight && d < best {
				near, best = i, d
			}
		}

		switch {
		case near >= 0 && a.Type == Wolf:
			a.State = Chase
		case near >= 0 && a.Type == Fish:
			a.State = Flee
		case a.State == Chase || a.State == Flee:
			a.State = Wander
			a.TargetX, a.TargetY = a.X, a.Y // retarget below
		}

		speed := traits[a.Type].speed
		switch a.State {
		case Idle:
			a.VX *= 0.7
			a.VY *= 0.7
		case Wander:
			if math.Abs(a.X-a.TargetX) < 5 && math.Abs(a.Y-a.TargetY) < 5 {
				r := cfg.WanderRange
				a.TargetX = e.clampToMap(a.X + (e.rng.Float64()-0.5)*2*r)
				a.TargetY = e.clampToMap(a.Y + (e.rng.Float64()-0.5)*2*r)
			}
			e.steer(a, a.TargetX-a.X, a.TargetY-a.Y, speed)
		case Chase:
			p := e.order[near]
			e.steer(a, p.X-a.X, p.Y-a.Y, speed)
		case Flee:
			p := e.order[near]
			e.steer(a, a.X-p.X, a.Y-p.Y, speed)
		}
	}
}

// steer points the animal's velocity along (dx, dy) at speed. Fish turn
// gradually; wolves turn instantly.
func (e *Engine) steer(a *Animal, dx, dy, speed float64) {
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		return
	}
	vx, vy := dx/dist*speed, dy/dist*speed
	if a.Type == Fish {
		k := e.cfg.Animals.FishTurnFactor
		a.VX += (vx - a.VX) * k
		a.VY += (vy - a.VY) * k
		return
	}
	a.VX, a.VY = vx, vy
}

// populateAnimals tops up each species by at most one per tick.
func (e *Engine) populateAnimals() {
	var wolves, fish int
	for _, a := range e.animals {
		if a.Type == Wolf {
			wolves++
		} else {
			fish++
		}
	}
	if wolves < e.cfg.Animals.MaxWolves {
		e.spawnAnimal(Wolf)
	}
	if fish < e.cfg.Animals.MaxFish {
		e.spawnAnimal(Fish)
	}
}

func (e *Engine) spawnAnimal(t AnimalType) *Animal {
	tr := traits[t]
	x, y := e.randomPoint()
	e.nextAnimalID++
	a := &Animal{
		ID:        e.nextAnimalID,
		Type:      t,
		X:         x,
		Y:         y,
		State:     Wander,
		TargetX:   x,
		TargetY:   y,
		Health:    tr.health,
		MaxHealth: tr.health,
		Collider:  colliderFor(tr.radius),
	}
	e.animals = append(e.animals, a)
	return a
}

func (e *Engine) clampToMap(v float64) float64 {
	m := e.cfg.Map.WallThickness
	return math.Max(m, math.Min(e.cfg.Map.Size-m, v))
}
