package game

import (
	"math"

	"github.com/nx0ly/moomoo2/internal/game/physics"
	"github.com/nx0ly/moomoo2/internal/game/world"
	"github.com/nx0ly/moomoo2/internal/protocol"
)

// Player is a connected participant's avatar.
type Player struct {
	ID   uint8
	Name string

	X, Y   float64
	VX, VY float64

	MoveDir float64 // radians, valid when Moving
	Moving  bool

	Attacked    bool
	WeaponIndex *uint8

	Collider physics.Collider
	Chunks   *world.Tracker
}

// TO returns the player's wire view.
func (p *Player) TO() protocol.PlayerTO {
	return protocol.PlayerTO{
		ID:          p.ID,
		Name:        p.Name,
		X:           float32(p.X),
		Y:           float32(p.Y),
		WeaponIndex: p.WeaponIndex,
	}
}

// AnimalType values are part of the wire format.
type AnimalType uint8

const (
	Wolf AnimalType = 0
	Fish AnimalType = 1
)

func (t AnimalType) String() string {
	if t == Wolf {
		return "wolf"
	}
	return "fish"
}

// animalTraits are the fixed per-species numbers.
type animalTraits struct {
	radius float64
	health int
	speed  float64
}

var traits = map[AnimalType]animalTraits{
	Wolf: {radius: 25, health: 80, speed: 35},
	Fish: {radius: 10, health: 20, speed: 50},
}

// AIState is an animal's behavior mode.
type AIState uint8

const (
	Idle AIState = iota
	Wander
	Chase
	Flee
	Eat // reserved
)

func (s AIState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Wander:
		return "wander"
	case Chase:
		return "chase"
	case Flee:
		return "flee"
	case Eat:
		return "eat"
	default:
		return "unknown"
	}
}

// Animal is a server-driven NPC.
type Animal struct {
	ID   uint32
	Type AnimalType

	X, Y   float64
	VX, VY float64

	State            AIState
	TargetX, TargetY float64

	Health, MaxHealth int

	Collider physics.Collider
}

// TO returns the animal's wire view.
func (a *Animal) TO() protocol.AnimalTO {
	return protocol.AnimalTO{ID: a.ID, X: float32(a.X), Y: float32(a.Y), AnimalType: uint8(a.Type)}
}

// Wall is a static rectangle.
type Wall struct {
	X, Y     float64
	Collider physics.Collider
}

// boundaryWalls encloses [0, size]^2 with four rectangles of the given
// thickness lying just outside it.
func boundaryWalls(size, thickness float64) []Wall {
	h := thickness / 2
	long := size/2 + thickness
	return []Wall{
		{X: -h, Y: size / 2, Collider: physics.Rect(h, long)},
		{X: size + h, Y: size / 2, Collider: physics.Rect(h, long)},
		{X: size / 2, Y: -h, Collider: physics.Rect(long, h)},
		{X: size / 2, Y: size + h, Collider: physics.Rect(long, h)},
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
