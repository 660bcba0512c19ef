package bridge

import (
	"time"

	"github.com/lcx/pixelbridge/log"
	"github.com/lcx/pixelbridge/metrics"
)

// serveSweep runs the periodic liveness pass until the bridge is stopped.
func (b *Bridge) serveSweep() {
	ticker := time.NewTicker(b.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-b.sweepDone:
			return
		case <-ticker.C:
			b.sweepOnceNow(time.Now())
		}
	}
}

// sweepOnceNow evicts every session whose heartbeat has been silent longer
// than the session timeout. A session is spared when its connection shows
// fresher activity of any kind: a peer that reconnected right before the
// sweep has a new binding whose activity stamp is current even if no
// heartbeat frame has arrived yet.
//
// Eviction removes the registry entry and fires the removed hooks. Pending
// calls bound to the evicted session keep running to their own deadlines;
// callers that need prompt failure on disconnect use a short per-call
// timeout.
func (b *Bridge) sweepOnceNow(now time.Time) {
	timeout := b.cfg.SessionTimeout()

	b.mu.RLock()
	var victims []string
	for id, s := range b.sessions {
		if now.Sub(s.lastHeartbeat) <= timeout {
			continue
		}
		if now.Sub(s.lastActivity) <= timeout {
			continue
		}
		victims = append(victims, id)
	}
	b.mu.RUnlock()

	for _, id := range victims {
		log.Info().Str("session", id).Dur("timeout", timeout).Msg("evicting session after heartbeat silence")
		metrics.IncrCounterWithGroup("bridge", "sessions_evicted_total", 1)
		b.RemoveSession(id)
	}
}
