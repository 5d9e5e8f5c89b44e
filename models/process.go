package models

import (
	"fmt"
	"time"
)

type CPUConvention string

const (
	// CPUConventionPerCore reports 100% for one fully busy core. A multi-threaded
	// process may reach 100 * number of cores.
	CPUConventionPerCore CPUConvention = "per_core"
	// CPUConventionNormalized divides by the number of logical cores and caps at 100%.
	CPUConventionNormalized CPUConvention = "normalized"
)

func (c CPUConvention) IsValid() bool {
	return c == CPUConventionPerCore || c == CPUConventionNormalized
}

// ProcessIdentity is the key used across ticks. The kernel recycles PIDs, so
// the start time (clock ticks since boot) is part of the key. A StartTime of 0
// means the process table could not provide one and the PID alone is used.
type ProcessIdentity struct {
	PID       int    `json:"pid"`
	StartTime uint64 `json:"start_time"`
}

func (id ProcessIdentity) Key() string {
	return fmt.Sprintf("%d:%d", id.PID, id.StartTime)
}

func (id ProcessIdentity) String() string {
	return id.Key()
}

func (id ProcessIdentity) Less(other ProcessIdentity) bool {
	if id.PID != other.PID {
		return id.PID < other.PID
	}
	return id.StartTime < other.StartTime
}

// ProcessStat is a single row of the OS process table.
type ProcessStat struct {
	Identity  ProcessIdentity
	Name      string
	CPUTime   time.Duration
	StartedAt time.Time
}

type ProcessSample struct {
	Identity   ProcessIdentity `json:"identity"`
	Name       string          `json:"name"`
	CPUPercent float64         `json:"cpu_percent"`
	StartedAt  time.Time       `json:"started_at"`
}

type CooldownEntry struct {
	Identity       ProcessIdentity `json:"identity"`
	LastNotifiedAt time.Time       `json:"last_notified_at"`
}
