package profiler

import (
	"runtime"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

// Profiler tracks frame rate, chain length and memory statistics.
// Outputs stats through the engine logger at a configurable interval.
type Profiler struct {
	frameCount     int
	passCount      int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
	last           Stats
}

// Stats is one logged sample.
type Stats struct {
	// FPS is the frame rate over the sample interval.
	FPS float64

	// Passes is the average number of passes run per frame.
	Passes float64

	// HeapMB is the live heap size.
	HeapMB float64

	// AllocRateMB is the allocation rate in MB per second.
	AllocRateMB float64

	// GCCount is the total number of collections.
	GCCount uint32
}

// NewProfiler creates a new Profiler with default settings.
// Update interval defaults to 1 second.
//
// Parameters:
//   - options: functional options for the profiler
//
// Returns:
//   - *Profiler: the newly created profiler instance
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Tick should be called once per frame with the number of passes the frame ran.
// Logs statistics when the update interval has elapsed.
//
// Parameters:
//   - passes: the number of passes run this frame
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *Profiler) Tick(passes int) bool {
	p.frameCount++
	p.passCount += passes
	now := time.Now()
	elapsed := now.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	runtime.ReadMemStats(&p.memStats)
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	p.last = Stats{
		FPS:         float64(p.frameCount) / elapsed.Seconds(),
		Passes:      float64(p.passCount) / float64(p.frameCount),
		HeapMB:      float64(p.memStats.Alloc) / 1024 / 1024,
		AllocRateMB: float64(allocDelta) / 1024 / 1024 / elapsed.Seconds(),
		GCCount:     p.memStats.NumGC,
	}

	var maxPauseUs uint64
	// PauseNs is a circular buffer of the last 256 pauses
	start := p.lastGCCount
	if p.memStats.NumGC-start > 256 {
		start = p.memStats.NumGC - 256
	}
	for i := start; i < p.memStats.NumGC; i++ {
		maxPauseUs = max(maxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	common.Logger().Info("frame stats",
		"fps", p.last.FPS,
		"passes", p.last.Passes,
		"heapMB", p.last.HeapMB,
		"allocRateMB", p.last.AllocRateMB,
		"gc", p.last.GCCount,
		"maxPauseUs", maxPauseUs,
	)

	p.frameCount = 0
	p.passCount = 0
	p.lastTime = now
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Last returns the most recently logged sample.
func (p *Profiler) Last() Stats {
	return p.last
}
