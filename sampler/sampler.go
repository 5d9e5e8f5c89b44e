package sampler

import (
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/lager/v3"
)

type Metrics interface {
	SampleSkipped(count int)
	TrackedProcesses(count int)
}

type ExitHandler func(id models.ProcessIdentity)

type prior struct {
	cpuTime   time.Duration
	sampledAt time.Time
}

// Sampler turns cumulative CPU counters into per-interval utilization. It
// remembers the previous reading of every live process and is not safe for
// concurrent use.
type Sampler struct {
	logger     lager.Logger
	table      ProcessTable
	clock      clock.Clock
	convention models.CPUConvention
	numCPU     int
	metrics    Metrics
	onExit     ExitHandler
	priors     map[models.ProcessIdentity]prior
}

func NewSampler(logger lager.Logger, table ProcessTable, clock clock.Clock, convention models.CPUConvention, numCPU int, metrics Metrics, onExit ExitHandler) *Sampler {
	if numCPU < 1 {
		numCPU = 1
	}
	return &Sampler{
		logger:     logger.Session("sampler"),
		table:      table,
		clock:      clock,
		convention: convention,
		numCPU:     numCPU,
		metrics:    metrics,
		onExit:     onExit,
		priors:     map[models.ProcessIdentity]prior{},
	}
}

// Sample reads the process table once. A process seen for the first time
// only establishes a baseline. Processes that disappeared since the previous
// call are dropped and passed to the exit handler; a process whose PID was
// listed but unreadable keeps its baseline.
func (s *Sampler) Sample() ([]models.ProcessSample, error) {
	stats, skipped, err := s.table.Processes()
	if len(skipped) > 0 {
		s.logger.Debug("skipped-unreadable-processes", lager.Data{"pids": skipped})
		if s.metrics != nil {
			s.metrics.SampleSkipped(len(skipped))
		}
	}
	if err != nil {
		s.logger.Error("failed-to-read-process-table", err)
		return nil, fmt.Errorf("sampling processes: %w", err)
	}

	now := s.clock.Now()
	seen := make(map[models.ProcessIdentity]struct{}, len(stats))
	samples := make([]models.ProcessSample, 0, len(stats))

	for _, stat := range stats {
		id := stat.Identity
		seen[id] = struct{}{}

		last, known := s.priors[id]
		s.priors[id] = prior{cpuTime: stat.CPUTime, sampledAt: now}
		if !known {
			continue
		}

		deltaWall := now.Sub(last.sampledAt)
		deltaCPU := stat.CPUTime - last.cpuTime
		if deltaWall <= 0 || deltaCPU < 0 {
			s.logger.Debug("rebaselined", lager.Data{"process": id.String(), "delta-wall": deltaWall.String(), "delta-cpu": deltaCPU.String()})
			continue
		}

		samples = append(samples, models.ProcessSample{
			Identity:   id,
			Name:       stat.Name,
			CPUPercent: CPUPercent(deltaCPU, deltaWall, s.convention, s.numCPU),
			StartedAt:  stat.StartedAt,
		})
	}

	// An unreadable process is still alive; only its reading is missing.
	unread := make(map[int]struct{}, len(skipped))
	for _, pid := range skipped {
		unread[pid] = struct{}{}
	}
	for id := range s.priors {
		if _, ok := seen[id]; ok {
			continue
		}
		if _, ok := unread[id.PID]; ok {
			continue
		}
		delete(s.priors, id)
		if s.onExit != nil {
			s.onExit(id)
		}
	}

	if s.metrics != nil {
		s.metrics.TrackedProcesses(len(s.priors))
	}
	return samples, nil
}

// CommandLine returns the process arguments joined by spaces, or fallback
// when they cannot be read (kernel threads, exited processes).
func (s *Sampler) CommandLine(pid int, fallback string) string {
	cmdline, err := s.table.CommandLine(pid)
	if err != nil {
		s.logger.Debug("failed-to-read-command-line", lager.Data{"pid": pid, "error": err.Error()})
		return fallback
	}
	if cmdline == "" {
		return fallback
	}
	return cmdline
}

// CPUPercent is the only place the CPU convention is applied.
func CPUPercent(deltaCPU time.Duration, deltaWall time.Duration, convention models.CPUConvention, numCPU int) float64 {
	if deltaWall <= 0 || deltaCPU < 0 {
		return 0
	}
	percent := deltaCPU.Seconds() / deltaWall.Seconds() * 100
	if convention == models.CPUConventionNormalized {
		if numCPU < 1 {
			numCPU = 1
		}
		percent /= float64(numCPU)
		if percent > 100 {
			percent = 100
		}
	}
	return percent
}
