package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nx0ly/moomoo2/internal/game/world"
)

func (h *handlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.engine.GetSnapshot()
	if !ok {
		writeError(w, "no tick has completed yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, snap)
}

func (h *handlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{"tick": h.engine.TickCount()}
	if snap, ok := h.engine.GetSnapshot(); ok {
		stats["playerCount"] = snap.PlayerCount
		stats["animalCount"] = snap.AnimalCount
		stats["contacts"] = snap.Contacts
		stats["chunksSent"] = snap.ChunksSent
		stats["intentsApplied"] = snap.IntentsApplied
		stats["tickDurationNs"] = snap.TickDuration
	}
	if h.conns != nil {
		stats["connections"] = h.conns.Len()
	}
	if h.chunks != nil {
		stats["chunks"] = h.chunks.Stats()
	}
	writeJSON(w, stats)
}

func (h *handlers) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 8)
	if err != nil {
		writeError(w, "player id must be 0-255", http.StatusBadRequest)
		return
	}
	snap, ok := h.engine.GetSnapshot()
	if ok {
		for _, p := range snap.Players {
			if uint64(p.ID) == id {
				writeJSON(w, p)
				return
			}
		}
	}
	writeError(w, "player not found", http.StatusNotFound)
}

func (h *handlers) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	if h.chunks == nil {
		writeError(w, "chunk streaming disabled", http.StatusServiceUnavailable)
		return
	}
	cfg := h.chunks.Config()
	writeJSON(w, map[string]any{
		"stats":      h.chunks.Stats(),
		"seed":       cfg.Seed,
		"chunkSize":  cfg.ChunkSize,
		"tileSize":   cfg.TileSize,
		"loadRadius": cfg.LoadRadius,
	})
}

type chunkView struct {
	CX        int32            `json:"cx"`
	CY        int32            `json:"cy"`
	Tiles     map[string]int   `json:"tiles"`
	Resources []world.Resource `json:"resources"`
}

func (h *handlers) handleGetChunk(w http.ResponseWriter, r *http.Request) {
	if h.chunks == nil {
		writeError(w, "chunk streaming disabled", http.StatusServiceUnavailable)
		return
	}
	cx, errX := strconv.ParseInt(chi.URLParam(r, "cx"), 10, 32)
	cy, errY := strconv.ParseInt(chi.URLParam(r, "cy"), 10, 32)
	if errX != nil || errY != nil {
		writeError(w, "chunk coordinates must be integers", http.StatusBadRequest)
		return
	}
	c, ok := h.chunks.Lookup(world.ChunkKey{X: int32(cx), Y: int32(cy)})
	if !ok {
		writeError(w, "chunk not generated", http.StatusNotFound)
		return
	}
	v := chunkView{CX: c.Key.X, CY: c.Key.Y, Tiles: make(map[string]int), Resources: c.Resources}
	for _, t := range c.Tiles {
		v.Tiles[t.String()]++
	}
	writeJSON(w, v)
}

func (h *handlers) handleGetConnections(w http.ResponseWriter, r *http.Request) {
	if h.conns == nil {
		writeError(w, "no connection registry", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, h.conns.Peers())
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
