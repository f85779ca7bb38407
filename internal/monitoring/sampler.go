// Package monitoring samples the resource usage of the current process and
// publishes it as charts from a long-running job.
package monitoring

import (
	"fmt"
	"time"

	"github.com/prometheus/procfs"
)

// Sample is a point-in-time reading of the process' resource usage.
type Sample struct {
	At            time.Time
	CPUPercent    float64
	ResidentBytes uint64
	VirtualBytes  uint64
	Threads       int
}

// Sampler reads resource usage.
type Sampler interface {
	Sample() (Sample, error)
}

// ProcSampler reads the usage of a process from procfs. CPU usage is averaged
// over the time since the previous sample, so the first sample always reads
// zero.
type ProcSampler struct {
	proc procfs.Proc
	now  func() time.Time

	lastCPU float64
	lastAt  time.Time
}

// NewProcSampler creates a ProcSampler for the current process using the
// procfs mounted at /proc.
func NewProcSampler() (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}

	return newProcSampler(fs, 0)
}

// NewProcSamplerAt creates a ProcSampler for pid using the procfs mounted at
// mountPoint.
func NewProcSamplerAt(mountPoint string, pid int) (*ProcSampler, error) {
	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs at %s: %w", mountPoint, err)
	}

	return newProcSampler(fs, pid)
}

func newProcSampler(fs procfs.FS, pid int) (*ProcSampler, error) {
	var (
		proc procfs.Proc
		err  error
	)

	if pid == 0 {
		proc, err = fs.Self()
	} else {
		proc, err = fs.Proc(pid)
	}

	if err != nil {
		return nil, fmt.Errorf("open process: %w", err)
	}

	return &ProcSampler{proc: proc, now: time.Now}, nil
}

func (s *ProcSampler) Sample() (Sample, error) {
	stat, err := s.proc.Stat()
	if err != nil {
		return Sample{}, fmt.Errorf("read process stat: %w", err)
	}

	now := s.now()
	cpu := stat.CPUTime()

	sample := Sample{
		At:            now,
		ResidentBytes: uint64(max(stat.ResidentMemory(), 0)),
		VirtualBytes:  uint64(stat.VirtualMemory()),
		Threads:       stat.NumThreads,
	}

	if !s.lastAt.IsZero() {
		if elapsed := now.Sub(s.lastAt).Seconds(); elapsed > 0 {
			sample.CPUPercent = max(cpu-s.lastCPU, 0) / elapsed * 100
		}
	}

	s.lastCPU = cpu
	s.lastAt = now

	return sample, nil
}
