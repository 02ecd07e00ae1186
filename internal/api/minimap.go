package api

import (
	"image/color"
	"net/http"
	"strconv"

	"github.com/fogleman/gg"

	"github.com/nx0ly/moomoo2/internal/game/world"
)

const (
	minimapTilePx        = 2
	minimapDefaultRadius = 4
	minimapMaxRadius     = 16
)

var tileColors = map[world.TileType]color.RGBA{
	world.Ocean: {28, 64, 128, 255},
	world.Sand:  {214, 196, 140, 255},
	world.Grass: {86, 150, 70, 255},
}

var (
	missingChunk = color.RGBA{40, 40, 48, 255}
	playerColor  = color.RGBA{250, 250, 255, 255}
	wolfColor    = color.RGBA{200, 60, 50, 255}
	fishColor    = color.RGBA{120, 200, 240, 255}
)

// handleMinimap renders committed chunks around a center chunk as a PNG,
// with players and animals from the latest snapshot on top. Chunks that
// have not been generated are drawn flat grey; rendering never triggers
// generation.
func (h *handlers) handleMinimap(w http.ResponseWriter, r *http.Request) {
	if h.chunks == nil {
		writeError(w, "chunk streaming disabled", http.StatusServiceUnavailable)
		return
	}
	cfg := h.chunks.Config()

	radius, err := intParam(r, "radius", minimapDefaultRadius)
	if err != nil || radius < 0 || radius > minimapMaxRadius {
		writeError(w, "radius must be 0-16", http.StatusBadRequest)
		return
	}
	center := world.KeyAt(h.mapCfg.Size/2, h.mapCfg.Size/2, cfg.ChunkSize, cfg.TileSize)
	cx, errX := intParam(r, "cx", int(center.X))
	cy, errY := intParam(r, "cy", int(center.Y))
	if errX != nil || errY != nil {
		writeError(w, "cx and cy must be integers", http.StatusBadRequest)
		return
	}

	chunkPx := cfg.ChunkSize * minimapTilePx
	side := (2*radius + 1) * chunkPx
	dc := gg.NewContext(side, side)
	dc.SetColor(missingChunk)
	dc.Clear()

	originX, originY := cx-radius, cy-radius
	for gy := 0; gy <= 2*radius; gy++ {
		for gx := 0; gx <= 2*radius; gx++ {
			c, ok := h.chunks.Lookup(world.ChunkKey{X: int32(originX + gx), Y: int32(originY + gy)})
			if !ok {
				continue
			}
			drawChunk(dc, c, cfg.ChunkSize, float64(gx*chunkPx), float64(gy*chunkPx))
		}
	}

	// World units to pixels, relative to the top-left chunk.
	scale := float64(minimapTilePx) / cfg.TileSize
	offX := float64(originX*cfg.ChunkSize) * cfg.TileSize
	offY := float64(originY*cfg.ChunkSize) * cfg.TileSize
	if snap, ok := h.engine.GetSnapshot(); ok {
		for _, a := range snap.Animals {
			dc.SetColor(fishColor)
			if a.Type == "wolf" {
				dc.SetColor(wolfColor)
			}
			dc.DrawCircle((a.X-offX)*scale, (a.Y-offY)*scale, 2)
			dc.Fill()
		}
		dc.SetColor(playerColor)
		for _, p := range snap.Players {
			dc.DrawCircle((p.X-offX)*scale, (p.Y-offY)*scale, 3)
			dc.Fill()
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := dc.EncodePNG(w); err != nil {
		writeError(w, "encode png", http.StatusInternalServerError)
	}
}

func drawChunk(dc *gg.Context, c *world.Chunk, size int, x0, y0 float64) {
	for i, t := range c.Tiles {
		tx, ty := i%size, i/size
		dc.SetColor(tileColors[t])
		dc.DrawRectangle(x0+float64(tx*minimapTilePx), y0+float64(ty*minimapTilePx), minimapTilePx, minimapTilePx)
		dc.Fill()
	}
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
