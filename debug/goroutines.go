package debug

// Runtime metrics logger. Started only when config.Debug is true. Emits
// goroutine count, heap and stack usage, process RSS and the composite
// buffer size at a fixed interval so buffer growth can be told apart from
// native or heap growth.

import (
	"context"
	"log/slog"
	"runtime"
	rdebug "runtime/debug"
	"runtime/metrics"
	"time"

	"github.com/dustin/go-humanize"
)

// BufferProbe reports the bytes currently reserved by the composite.
type BufferProbe func() int

// StartRuntimeLogger launches a ticker that logs runtime stats until ctx is
// done. It is lightweight; disable by running without the debug flag.
func StartRuntimeLogger(ctx context.Context, interval time.Duration, logger *slog.Logger, probe BufferProbe) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("runtime logger panic", "error", r, "stack", string(rdebug.Stack()))
			}
		}()
		t := time.NewTicker(interval)
		defer t.Stop()
		samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
		var rssErrLogged bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			metrics.Read(samples)
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			rss, err := processRSS()
			if err != nil && !rssErrLogged {
				logger.Warn("memlog: rss unavailable", slog.String("err", err.Error()))
				rssErrLogged = true
			}
			buffer := 0
			if probe != nil {
				buffer = probe()
			}
			logger.Info("runtime-stats",
				slog.Uint64("goroutines", samples[0].Value.Uint64()),
				slog.String("heap_alloc", humanize.IBytes(ms.HeapAlloc)),
				slog.String("heap_sys", humanize.IBytes(ms.HeapSys)),
				slog.String("stack_inuse", humanize.IBytes(ms.StackInuse)),
				slog.String("rss", humanize.IBytes(rss)),
				slog.String("composite", humanize.IBytes(uint64(buffer))),
				slog.Uint64("num_gc", uint64(ms.NumGC)),
			)
		}
	}()
}
