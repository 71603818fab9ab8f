package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxcast/charchat/internal/chat"
	"github.com/voxcast/charchat/internal/persona"
	"github.com/voxcast/charchat/internal/trace"
)

// defaultTraceTurnLimit is how many trace turns are returned when the
// caller omits the ?limit= query parameter.
const defaultTraceTurnLimit = 20

type deps struct {
	oneShot    *chat.OneShotClient
	wsHandler  http.Handler
	traceStore *trace.Store
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/chat", d.wsHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("GET /api/characters", handleCharacters)
	mux.HandleFunc("POST /api/chat", d.handleChat)
	if d.traceStore != nil {
		mux.HandleFunc("GET /api/trace/turns", d.handleTraceTurns)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleCharacters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"characters": persona.All()})
}

// handleChat is the plain single-shot chat endpoint (no streaming, no
// audio).
func (d deps) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	text, err := d.oneShot.Complete(r.Context(), req.Message)
	if err != nil {
		slog.Error("single-shot chat", "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	writeJSON(w, map[string]any{"response": text, "done": true})
}

func (d deps) handleTraceTurns(w http.ResponseWriter, r *http.Request) {
	limit := defaultTraceTurnLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	turns, total, err := d.traceStore.ListTurns(limit, offset)
	if err != nil {
		slog.Error("list trace turns", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"turns": turns, "total": total})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
