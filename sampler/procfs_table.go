package sampler

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"code.cloudfoundry.org/cpuwatcher/models"
	"code.cloudfoundry.org/lager/v3"
	"github.com/prometheus/procfs"
)

// Kernel USER_HZ. /proc reports utime, stime and starttime in these ticks.
const userHZ = 100

type ProcessTable interface {
	// Processes lists every readable process. The PIDs of processes that
	// vanish or cannot be read while listing are returned in skipped rather
	// than failing the call.
	Processes() (stats []models.ProcessStat, skipped []int, err error)
	CommandLine(pid int) (string, error)
}

type ProcFSTable struct {
	fs     procfs.FS
	logger lager.Logger
}

var _ ProcessTable = &ProcFSTable{}

func NewProcFSTable(logger lager.Logger, mountPoint string) (*ProcFSTable, error) {
	procFS, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("failed to open procfs at '%s': %w", mountPoint, err)
	}
	return &ProcFSTable{
		fs:     procFS,
		logger: logger.Session("procfs-table", lager.Data{"mount": mountPoint}),
	}, nil
}

func (t *ProcFSTable) Processes() ([]models.ProcessStat, []int, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list processes: %w", err)
	}

	var bootTime time.Time
	if kstat, err := t.fs.Stat(); err != nil {
		t.logger.Debug("failed-to-read-boot-time", lager.Data{"error": err.Error()})
	} else {
		bootTime = time.Unix(int64(kstat.BootTime), 0)
	}

	stats := make([]models.ProcessStat, 0, len(procs))
	var skipped []int
	for _, p := range procs {
		ps, err := p.Stat()
		if err != nil {
			skipped = append(skipped, p.PID)
			if !errors.Is(err, fs.ErrNotExist) {
				t.logger.Debug("failed-to-read-process-stat", lager.Data{"pid": p.PID, "error": err.Error()})
			}
			continue
		}

		stat := models.ProcessStat{
			Identity: models.ProcessIdentity{PID: ps.PID, StartTime: ps.Starttime},
			Name:     ps.Comm,
			CPUTime:  ticksToDuration(uint64(ps.UTime) + uint64(ps.STime)),
		}
		if !bootTime.IsZero() {
			stat.StartedAt = bootTime.Add(ticksToDuration(ps.Starttime))
		}
		stats = append(stats, stat)
	}
	return stats, skipped, nil
}

func (t *ProcFSTable) CommandLine(pid int) (string, error) {
	p, err := t.fs.Proc(pid)
	if err != nil {
		return "", err
	}
	args, err := p.CmdLine()
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}

func ticksToDuration(ticks uint64) time.Duration {
	return time.Duration(ticks) * (time.Second / userHZ)
}
