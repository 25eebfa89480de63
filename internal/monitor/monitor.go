// Package monitor samples host load and exposes a dispatch gate: when the
// machine is saturated the scheduler defers starting new renders instead of
// piling more work onto it.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	cpuBusyThreshold = 80.0
	ramBusyThreshold = 90.0

	defaultSampleInterval = 5 * time.Second
	cpuSampleWindow       = 500 * time.Millisecond
)

// Stats is one host load sample.
type Stats struct {
	CPUPercent float64
	RAMPercent float64
	Busy       bool
}

// SystemMonitor periodically samples CPU and memory usage. Its Allow method
// satisfies the scheduler's DispatchGate.
type SystemMonitor struct {
	logger   zerolog.Logger
	interval time.Duration

	mu   sync.RWMutex
	last Stats
}

// NewSystemMonitor constructs a monitor sampling at interval (default 5s when
// zero). Until the first sample lands the gate stays open.
func NewSystemMonitor(interval time.Duration, logger zerolog.Logger) *SystemMonitor {
	if interval <= 0 {
		interval = defaultSampleInterval
	}
	return &SystemMonitor{logger: logger, interval: interval}
}

// Run samples load until ctx is done.
func (m *SystemMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.sample(ctx)
			if err != nil {
				m.logger.Warn().Err(err).Msg("monitor: load sample failed")
				continue
			}
			m.mu.Lock()
			wasBusy := m.last.Busy
			m.last = stats
			m.mu.Unlock()
			if stats.Busy != wasBusy {
				m.logger.Info().
					Float64("cpu_percent", stats.CPUPercent).
					Float64("ram_percent", stats.RAMPercent).
					Bool("busy", stats.Busy).
					Msg("monitor: load state changed")
			}
		}
	}
}

// Allow reports whether new work may start.
func (m *SystemMonitor) Allow() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.last.Busy
}

// Last returns the most recent sample.
func (m *SystemMonitor) Last() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

func (m *SystemMonitor) sample(ctx context.Context) (Stats, error) {
	stats := Stats{}
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, err
	}
	stats.RAMPercent = v.UsedPercent

	pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return stats, err
	}
	if len(pct) > 0 {
		stats.CPUPercent = pct[0]
	}
	stats.Busy = stats.CPUPercent > cpuBusyThreshold || stats.RAMPercent > ramBusyThreshold
	return stats, nil
}
