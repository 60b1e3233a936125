package telemetry

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const perfStatsInterval = 30 * time.Second

type perfStats struct {
	cpu        metric.Float64Gauge
	system     metric.Float64Gauge
	heap       metric.Int64Gauge
	goroutines metric.Int64Gauge
}

func newPerfStats() perfStats {
	meter := otel.Meter("sakaibot/perf_stats")
	var p perfStats
	p.cpu, _ = meter.Float64Gauge("cpu_usage", metric.WithUnit("%"))
	p.system, _ = meter.Float64Gauge("system_memory_used", metric.WithUnit("%"))
	p.heap, _ = meter.Int64Gauge("heap_alloc", metric.WithUnit("MB"))
	p.goroutines, _ = meter.Int64Gauge("goroutine_count")
	return p
}

func (p perfStats) record(ctx context.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	p.heap.Record(ctx, int64(memStats.HeapAlloc/1_000_000))
	p.goroutines.Record(ctx, int64(runtime.NumGoroutine()))

	usage, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	} else if len(usage) > 0 {
		p.cpu.Record(ctx, usage[0])
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		slog.Debug("failed to read memory usage", "err", err)
		return
	}
	p.system.Record(ctx, vm.UsedPercent)
}

// InstrumentPerfStats samples process and host gauges until ctx is done.
// Meant for the long running serve command, where a browser may live
// alongside the bot.
func InstrumentPerfStats(ctx context.Context) {
	p := newPerfStats()
	go func() {
		ticker := time.NewTicker(perfStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.record(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}
