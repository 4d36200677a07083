// Package heartbeat implements the liveness-record subsystem of spec §4.2:
// a worker inserts a Worker document on start, refreshes last_heartbeat on
// a fixed interval, and deletes the record on stop. The reaper treats any
// record older than 2*interval as a dead worker's lease.
package heartbeat

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

// Heartbeat owns one Worker document for the lifetime of Run.
type Heartbeat struct {
	s        store.Store
	workerID string
	interval time.Duration
}

func New(s store.Store, workerID string, interval time.Duration) *Heartbeat {
	return &Heartbeat{s: s, workerID: workerID, interval: interval}
}

// Run inserts the Worker record, then beats every interval until ctx is
// cancelled, at which point it deletes the record and returns. Missed ticks
// are tolerated - freshness is judged on absolute last_heartbeat, not on
// having hit every tick (spec §4.2).
func (h *Heartbeat) Run(ctx context.Context) error {
	if err := h.beat(); err != nil {
		return err
	}
	defer h.stop()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := h.beat(); err != nil {
				glog.Warningf("heartbeat: worker %s failed to beat: %v", h.workerID, err)
			}
		}
	}
}

func (h *Heartbeat) beat() error {
	w := model.Worker{ID: h.workerID, LastHeartbeat: time.Now()}
	_, err := h.s.Insert(store.Workers, h.workerID, &w, "")
	if err == store.ErrConflict {
		err = nil
	}
	if err != nil {
		return err
	}
	return h.s.UpdateOne(store.Workers, h.workerID, &w)
}

func (h *Heartbeat) stop() {
	if err := h.s.DeleteOne(store.Workers, h.workerID); err != nil {
		glog.Warningf("heartbeat: worker %s failed to delete its record on stop: %v", h.workerID, err)
	}
}
