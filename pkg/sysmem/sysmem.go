// Package sysmem provides system memory detection for GramForge.
//
// A MemoryProfile is a one-shot snapshot of total system memory, captured
// at process start and treated as immutable. Live readings go through the
// Monitor interface, an injected capability so the engine and its tests can
// substitute synthetic memory readings without touching real system state.
package sysmem

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/gramforge/gramforge/pkg/errors"
)

// MemoryProfile is an immutable snapshot of system memory, created once
// per process lifetime.
type MemoryProfile struct {
	TotalBytes     uint64
	AvailableBytes uint64
	DetectedAt     time.Time
}

// Monitor supplies live memory readings. Implementations must be safe for
// concurrent use; the engine polls UsedBytes at chunk and batch boundaries.
type Monitor interface {
	// Profile returns the memory snapshot taken at construction time.
	Profile() MemoryProfile
	// UsedBytes returns the process's current resident memory.
	UsedBytes() (uint64, error)
}

// SystemMonitor reads real system memory via the OS.
type SystemMonitor struct {
	profile MemoryProfile
	proc    *process.Process
}

// NewSystemMonitor detects system memory and returns a monitor bound to
// the current process.
func NewSystemMonitor() (*SystemMonitor, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to detect system memory")
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to open current process")
	}

	return &SystemMonitor{
		profile: MemoryProfile{
			TotalBytes:     vm.Total,
			AvailableBytes: vm.Available,
			DetectedAt:     time.Now(),
		},
		proc: proc,
	}, nil
}

// Profile returns the snapshot taken at construction.
func (m *SystemMonitor) Profile() MemoryProfile {
	return m.profile
}

// UsedBytes returns the process's resident set size.
func (m *SystemMonitor) UsedBytes() (uint64, error) {
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read process memory")
	}
	return info.RSS, nil
}

// SyntheticMonitor is a Monitor with caller-controlled readings, for tests
// and for forcing tier decisions from the CLI.
type SyntheticMonitor struct {
	profile MemoryProfile
	used    atomic.Uint64
}

// NewSyntheticMonitor creates a monitor reporting the given total memory.
func NewSyntheticMonitor(totalBytes uint64) *SyntheticMonitor {
	return &SyntheticMonitor{
		profile: MemoryProfile{
			TotalBytes:     totalBytes,
			AvailableBytes: totalBytes,
			DetectedAt:     time.Now(),
		},
	}
}

// Profile returns the synthetic snapshot.
func (m *SyntheticMonitor) Profile() MemoryProfile {
	return m.profile
}

// UsedBytes returns the last value set with SetUsedBytes.
func (m *SyntheticMonitor) UsedBytes() (uint64, error) {
	return m.used.Load(), nil
}

// SetUsedBytes sets the reading returned by UsedBytes.
func (m *SyntheticMonitor) SetUsedBytes(n uint64) {
	m.used.Store(n)
}
