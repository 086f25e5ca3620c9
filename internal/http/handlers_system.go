package http

import (
	"context"
	"net/http"
	"strings"

	"finanzas/internal/cache"
	"finanzas/internal/connectivity"
	"finanzas/internal/log"
	"finanzas/internal/offline"
)

func (h *handlers) connectivityStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Monitor.Status())
}

type connectivityEventRequest struct {
	Event string `json:"event"`
}

// connectivityEvent receives online, offline, visible and hidden
// notifications from the client.
func (h *handlers) connectivityEvent(w http.ResponseWriter, r *http.Request) {
	var req connectivityEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	ev, err := connectivity.ParseEvent(req.Event)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid event", err)
		return
	}
	drain := h.Monitor.Notify(r.Context(), ev)
	writeJSON(w, http.StatusOK, struct {
		connectivity.Status
		DrainStarted bool `json:"drain_started"`
	}{h.Monitor.Status(), drain})
}

func (h *handlers) offlineStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Queue.Stats())
}

func (h *handlers) offlineActions(w http.ResponseWriter, r *http.Request) {
	actions := h.Queue.Actions()
	if actions == nil {
		actions = []offline.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

// offlineDrain replays under a context that survives client disconnects.
func (h *handlers) offlineDrain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Queue.Drain(context.WithoutCancel(r.Context())))
}

func (h *handlers) offlineClearFailed(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Queue.ClearFailed(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to persist offline queue", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

type cacheStatsResponse struct {
	cache.Stats
	HitRate     float64 `json:"hit_rate"`
	MemoryHuman string  `json:"memory_human"`
}

func (h *handlers) cacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.Cache.Stats()
	writeJSON(w, http.StatusOK, cacheStatsResponse{Stats: st, HitRate: st.HitRate(), MemoryHuman: st.MemoryHuman()})
}

// cacheEntries lists entry metadata, filtered by key fragment with ?pattern=.
func (h *handlers) cacheEntries(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	out := make([]cache.EntryInfo, 0)
	for _, e := range h.Cache.Entries() {
		if pattern == "" || strings.Contains(e.Key, pattern) {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// cacheClear drops entries matching ?pattern=, or everything without one.
func (h *handlers) cacheClear(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")
	var removed int
	if pattern == "" {
		removed = h.Cache.Size()
		h.Cache.Clear()
	} else {
		removed = h.Cache.ClearByPattern(pattern)
	}
	h.logger.InfoContext(r.Context(), "Cache cleared via API", log.FieldPattern, pattern, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
