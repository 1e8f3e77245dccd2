// Package telemetry samples host resource usage for the dashboard's
// system health card. The panel usually runs on the operator's
// workstation or the robot's companion PC; either way the host's own
// health is worth a glance next to the robot's diagnostics.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const sampleInterval = 5 * time.Second

// SystemTelemetry captures host-level resource usage sampled for dashboard display.
type SystemTelemetry struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    uint64    `json:"memory_used_bytes"`
	MemoryTotal   uint64    `json:"memory_total_bytes"`
	DiskPercent   float64   `json:"disk_percent"`
	DiskUsed      uint64    `json:"disk_used_bytes"`
	DiskTotal     uint64    `json:"disk_total_bytes"`
	SampledAt     time.Time `json:"sampled_at"`
}

// Sampler refreshes host metrics on a fixed interval in the background.
type Sampler struct {
	mu       sync.Mutex
	latest   *SystemTelemetry
	stop     chan struct{}
	wg       sync.WaitGroup
	prevBusy float64
	prevAll  float64
}

// NewSampler returns a stopped sampler; call Start to begin sampling.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Start launches the background sampler. Starting twice is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(sampleInterval)
		defer ticker.Stop()
		ctx := context.Background()
		s.refresh(ctx)
		for {
			select {
			case <-ticker.C:
				s.refresh(ctx)
			case <-stop:
				return
			}
		}
	}()
}

// Stop halts the sampler and waits for shutdown.
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	s.wg.Wait()
}

// Latest returns the most recent sample, or nil before the first refresh
// completes.
func (s *Sampler) Latest() *SystemTelemetry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Sampler) refresh(ctx context.Context) {
	sample := &SystemTelemetry{SampledAt: time.Now()}

	if timesStats, err := cpu.TimesWithContext(ctx, false); err == nil && len(timesStats) > 0 {
		t := timesStats[0]
		all := t.User + t.System + t.Nice + t.Irq + t.Softirq + t.Steal + t.Idle + t.Iowait
		busy := all - t.Idle - t.Iowait

		s.mu.Lock()
		deltaAll := all - s.prevAll
		deltaBusy := busy - s.prevBusy
		hasPrev := s.prevAll > 0
		s.prevAll = all
		s.prevBusy = busy
		s.mu.Unlock()

		if hasPrev && deltaAll > 0 {
			sample.CPUPercent = clampPercent((deltaBusy / deltaAll) * 100)
		}
	}

	if memoryStats, err := mem.VirtualMemoryWithContext(ctx); err == nil && memoryStats != nil {
		sample.MemoryPercent = clampPercent(memoryStats.UsedPercent)
		sample.MemoryUsed = memoryStats.Used
		sample.MemoryTotal = memoryStats.Total
	}

	if diskStats, err := disk.UsageWithContext(ctx, "/"); err == nil && diskStats != nil {
		sample.DiskPercent = clampPercent(diskStats.UsedPercent)
		sample.DiskUsed = diskStats.Used
		sample.DiskTotal = diskStats.Total
	}

	s.mu.Lock()
	s.latest = sample
	s.mu.Unlock()
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
