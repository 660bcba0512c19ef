package bridge

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/lcx/pixelbridge/log"
	"github.com/lcx/pixelbridge/metrics"
)

// SessionState is the externally visible liveness of one session.
type SessionState struct {
	ID            string    `json:"id"`
	Connected     bool      `json:"connected"`
	RemoteAddr    string    `json:"remoteAddr,omitempty"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// MethodStatsView is the serialized form of one method's aggregate, with
// durations in milliseconds for dashboard consumption.
type MethodStatsView struct {
	Method  string  `json:"method"`
	Count   uint64  `json:"count"`
	TotalMs float64 `json:"totalMs"`
	MinMs   float64 `json:"minMs"`
	MaxMs   float64 `json:"maxMs"`
	AvgMs   float64 `json:"avgMs"`
}

// SessionStates returns the state of every registered session, ordered by
// id.
func (b *Bridge) SessionStates() []SessionState {
	b.mu.RLock()
	out := make([]SessionState, 0, len(b.sessions))
	for _, s := range b.sessions {
		st := SessionState{
			ID:            s.ID,
			Connected:     s.conn != nil,
			ConnectedAt:   s.connectedAt,
			LastHeartbeat: s.lastHeartbeat,
		}
		if s.conn != nil {
			st.RemoteAddr = s.conn.RemoteAddr()
		}
		out = append(out, st)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StatsViews returns the per-method aggregates ordered by method name.
func (b *Bridge) StatsViews() []MethodStatsView {
	snap := b.stats.Snapshot()
	out := make([]MethodStatsView, 0, len(snap))
	for method, s := range snap {
		out = append(out, MethodStatsView{
			Method:  method,
			Count:   s.Count,
			TotalMs: float64(s.Total) / float64(time.Millisecond),
			MinMs:   float64(s.Min) / float64(time.Millisecond),
			MaxMs:   float64(s.Max) / float64(time.Millisecond),
			AvgMs:   float64(s.Avg()) / float64(time.Millisecond),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// NewObserveMux builds the observability surface: session states, command
// statistics with a reset operation, and the prometheus exposition.
func NewObserveMux(b *Bridge) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/bridge/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, b.SessionStates())
	})

	mux.HandleFunc("/debug/bridge/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, b.StatsViews())
	})

	mux.HandleFunc("/debug/bridge/stats/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		b.ResetStats()
		log.Info().Msg("command statistics reset")
		w.WriteHeader(http.StatusNoContent)
	})

	mux.Handle("/metrics", metrics.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("observe response encode failed")
	}
}
