package workers

import (
	"context"
	"log/slog"
	"os"
	goruntime "runtime"
	"talkstream/observability"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsProvider reports figures logged along with each heartbeat.
type StatsProvider func() map[string]any

// HeartbeatWorker samples the process (memory, CPU, goroutines) into the
// metrics and logs a summary of the sync core on every tick.
type HeartbeatWorker struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	interval time.Duration
	stats    StatsProvider
}

func NewHeartbeatWorker(log *slog.Logger, metrics *observability.Metrics, interval time.Duration, stats StatsProvider) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, metrics: metrics, interval: interval, stats: stats}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.beat(p)
		}
	}
}

func (w *HeartbeatWorker) beat(p *process.Process) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Failed to collect memory stats", "err", err)
		return
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Failed to collect cpu stats", "err", err)
		return
	}
	goroutines := goruntime.NumGoroutine()
	w.metrics.ProcessSample(memInfo.RSS, cpuPercent, goroutines)

	attrs := []any{"rss", memInfo.RSS, "cpu", cpuPercent, "goroutines", goroutines}
	if w.stats != nil {
		for k, v := range w.stats() {
			attrs = append(attrs, k, v)
		}
	}
	w.log.Debug("Heartbeat", attrs...)
}
