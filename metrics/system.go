package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/scorpius-io/rule-engine/rlog"
)

// SystemSampler periodically updates MemoryUtilization and CPUUtilization,
// the Go-native equivalent of the original's PerformanceMonitor which
// polled the same two signals on a fixed interval (SPEC_FULL §C.1).
type SystemSampler struct {
	interval time.Duration
}

func NewSystemSampler(interval time.Duration) *SystemSampler {
	return &SystemSampler{interval: interval}
}

// Run blocks, sampling until ctx is canceled.
func (s *SystemSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *SystemSampler) sample() {
	if vm, err := mem.VirtualMemory(); err == nil {
		MemoryUtilization.Set(float64(vm.Used))
	} else {
		rlog.Warn("memory sample failed", "error", err)
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		CPUUtilization.Set(pct[0])
	} else if err != nil {
		rlog.Warn("cpu sample failed", "error", err)
	}
}
