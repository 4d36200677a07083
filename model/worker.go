package model

import "time"

const WorkerCollection = "workers"

// Worker is a single process executing the orchestrator loops. Its id names
// the locked_by field on Accounts and Downloads it holds; its heartbeat is
// the implicit lease on those locks (spec §3, §9 "Lease").
type Worker struct {
	ID            string    `json:"id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
