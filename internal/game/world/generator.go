package world

import (
	"math/rand"

	"github.com/ojrac/opensimplex-go"

	"github.com/nx0ly/moomoo2/internal/config"
)

// Noise octaves: continent shapes, islands, then surface detail.
const (
	continentScale  = 0.003
	islandScale     = 0.02
	detailScale     = 0.05
	continentWeight = 0.7
	islandWeight    = 0.15
	detailWeight    = 0.05
	seaLevel        = 0.35
	beachBand       = 0.05
)

// Generator turns chunk keys into terrain. It is deterministic for a seed
// and safe for concurrent use.
type Generator struct {
	seed      int64
	noise     opensimplex.Noise
	chunkSize int
	tileSize  float64
	entities  config.EntityConfig
}

// NewGenerator creates a generator for the given chunk geometry.
func NewGenerator(chunks config.ChunkConfig, entities config.EntityConfig) *Generator {
	return &Generator{
		seed:      chunks.Seed,
		noise:     opensimplex.New(chunks.Seed),
		chunkSize: chunks.ChunkSize,
		tileSize:  chunks.TileSize,
		entities:  entities,
	}
}

// Generate builds the chunk at key.
func (g *Generator) Generate(key ChunkKey) *Chunk {
	n := g.chunkSize
	tiles := make([]TileType, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			wx := float64(int(key.X)*n + x)
			wy := float64(int(key.Y)*n + y)
			tiles = append(tiles, Classify(g.elevation(wx, wy)))
		}
	}
	return &Chunk{Key: key, Tiles: tiles, Resources: g.scatter(key, tiles)}
}

func (g *Generator) elevation(wx, wy float64) float64 {
	v := g.noise.Eval2(wx*continentScale, wy*continentScale)*continentWeight +
		g.noise.Eval2(wx*islandScale, wy*islandScale)*islandWeight +
		g.noise.Eval2(wx*detailScale, wy*detailScale)*detailWeight
	return v - seaLevel
}

// Classify maps an elevation to its tile.
func Classify(v float64) TileType {
	switch {
	case v < 0:
		return Ocean
	case v < beachBand:
		return Sand
	default:
		return Grass
	}
}

// scatter places resource nodes on land tiles from a per-chunk seed, so the
// same chunk always carries the same nodes.
func (g *Generator) scatter(key ChunkKey, tiles []TileType) []Resource {
	rng := rand.New(rand.NewSource(g.seed ^ int64(key.Pack())))
	n := g.chunkSize
	span := float64(n) * g.tileSize

	counts := [...]struct {
		kind ResourceKind
		n    int
		on   TileType
	}{
		{Tree, g.entities.TreesPerChunk, Grass},
		{Bush, g.entities.BushesPerChunk, Grass},
		{Stone, g.entities.StonesPerChunk, Sand},
		{Gold, g.entities.GoldPerChunk, Grass},
	}

	var out []Resource
	for _, c := range counts {
		for i := 0; i < c.n; i++ {
			tx, ty := rng.Intn(n), rng.Intn(n)
			if tiles[ty*n+tx] != c.on {
				continue
			}
			out = append(out, Resource{
				Kind: c.kind,
				X:    float64(key.X)*span + (float64(tx)+0.5)*g.tileSize,
				Y:    float64(key.Y)*span + (float64(ty)+0.5)*g.tileSize,
			})
		}
	}
	return out
}
