// Package world generates terrain chunks procedurally and streams them to
// players as they move.
package world

import (
	"fmt"
	"math"
)

// TileType is a terrain class. Values are part of the wire format.
type TileType uint8

const (
	Ocean TileType = 0
	Sand  TileType = 1
	Grass TileType = 2
)

func (t TileType) String() string {
	switch t {
	case Ocean:
		return "ocean"
	case Sand:
		return "sand"
	case Grass:
		return "grass"
	default:
		return fmt.Sprintf("tile(%d)", uint8(t))
	}
}

// ChunkKey addresses a chunk on the integer chunk lattice.
type ChunkKey struct {
	X, Y int32
}

// Pack folds the key into a single cache key.
func (k ChunkKey) Pack() uint64 {
	return uint64(uint32(k.X))<<32 | uint64(uint32(k.Y))
}

func (k ChunkKey) String() string { return fmt.Sprintf("(%d,%d)", k.X, k.Y) }

// KeyAt returns the chunk containing world position (x, y), flooring toward
// negative infinity on both axes.
func KeyAt(x, y float64, chunkSize int, tileSize float64) ChunkKey {
	span := float64(chunkSize) * tileSize
	return ChunkKey{
		X: int32(math.Floor(x / span)),
		Y: int32(math.Floor(y / span)),
	}
}

// ResourceKind is a harvestable node placed on generated terrain.
type ResourceKind uint8

const (
	Tree ResourceKind = iota
	Bush
	Stone
	Gold
)

func (r ResourceKind) String() string {
	switch r {
	case Tree:
		return "tree"
	case Bush:
		return "bush"
	case Stone:
		return "stone"
	case Gold:
		return "gold"
	default:
		return fmt.Sprintf("resource(%d)", uint8(r))
	}
}

// Resource is a node in world coordinates.
type Resource struct {
	Kind ResourceKind `json:"kind"`
	X    float64      `json:"x"`
	Y    float64      `json:"y"`
}

// Chunk is an immutable generated chunk. Tiles are row-major.
type Chunk struct {
	Key       ChunkKey
	Tiles     []TileType
	Resources []Resource
}

// TileBytes returns the tiles as their wire bytes.
func (c *Chunk) TileBytes() []uint8 {
	out := make([]uint8, len(c.Tiles))
	for i, t := range c.Tiles {
		out[i] = uint8(t)
	}
	return out
}
