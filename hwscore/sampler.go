// Package hwscore samples host CPU/RAM capability (no GPU) into the coarse,
// non-negative HardwareScore spec §3 defines, feeding RotationState.Update.
// This is a supplemented feature: the distilled spec treats hardware_score
// as an externally-supplied input, but a complete implementation needs a
// concrete sampler to produce it.
package hwscore

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nexus-shell/crag/rotation"
)

// Sampler periodically measures host capability and reports a
// HardwareScore. The scoring function is intentionally coarse: spec §3
// only requires a monotonic-ish capability summary, not a precise
// benchmark.
type Sampler struct {
	interval time.Duration
	onSample func(rotation.HardwareScore)
}

// NewSampler constructs a Sampler that invokes onSample on every tick.
func NewSampler(interval time.Duration, onSample func(rotation.HardwareScore)) *Sampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sampler{interval: interval, onSample: onSample}
}

// Run samples on a ticker until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	score := Score(ctx)
	if s.onSample != nil {
		s.onSample(score)
	}
}

// Score computes a single HardwareScore sample: a weighted blend of
// logical CPU count, idle-adjusted CPU headroom, and available memory
// ratio, clamped to [0, 100].
func Score(ctx context.Context) rotation.HardwareScore {
	cores, err := cpu.CountsWithContext(ctx, true)
	if err != nil || cores <= 0 {
		cores = 1
	}

	percents, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	cpuLoad := 0.0
	if err == nil && len(percents) > 0 {
		cpuLoad = percents[0]
	}
	cpuHeadroom := 100 - cpuLoad

	vm, err := mem.VirtualMemoryWithContext(ctx)
	memHeadroom := 50.0
	if err == nil && vm.Total > 0 {
		memHeadroom = 100 * float64(vm.Available) / float64(vm.Total)
	}

	coreScore := float64(cores) * 5
	if coreScore > 40 {
		coreScore = 40
	}

	raw := coreScore + 0.3*cpuHeadroom + 0.3*memHeadroom
	if raw < 0 {
		raw = 0
	}
	if raw > 100 {
		raw = 100
	}
	return rotation.HardwareScore(int(raw))
}
