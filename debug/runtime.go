// Package debug logs runtime and process memory figures while the debug flag is set.
package debug

import (
	"context"
	"log/slog"
	"runtime"
	"runtime/metrics"
	"time"
)

// Sample is one reading of the runtime logger.
type Sample struct {
	Goroutines uint64
	HeapAlloc  uint64
	HeapInuse  uint64
	StackInuse uint64
	NumGC      uint32
	RSS        uint64 // zero when the platform query failed
}

// Read collects a Sample.
func Read() (Sample, error) {
	samples := []metrics.Sample{{Name: "/sched/goroutines:goroutines"}}
	metrics.Read(samples)
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := Sample{
		HeapAlloc:  ms.HeapAlloc,
		HeapInuse:  ms.HeapInuse,
		StackInuse: ms.StackInuse,
		NumGC:      ms.NumGC,
	}
	if samples[0].Value.Kind() == metrics.KindUint64 {
		s.Goroutines = samples[0].Value.Uint64()
	} else {
		s.Goroutines = uint64(runtime.NumGoroutine())
	}
	rss, err := processRSS()
	s.RSS = rss
	return s, err
}

// StartRuntimeLogger logs a Sample every interval until ctx is done. RSS query
// failures are logged once and then suppressed.
func StartRuntimeLogger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		var rssErrLogged bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
			s, err := Read()
			if err != nil && !rssErrLogged {
				logger.Warn("memlog: rss query failed", slog.String("err", err.Error()))
				rssErrLogged = true
			}
			logger.Info("runtime",
				slog.Uint64("goroutines", s.Goroutines),
				slog.Uint64("heap_alloc", s.HeapAlloc),
				slog.Uint64("heap_inuse", s.HeapInuse),
				slog.Uint64("stack_inuse", s.StackInuse),
				slog.Uint64("num_gc", uint64(s.NumGC)),
				slog.Uint64("rss", s.RSS),
			)
		}
	}()
}
