package stats

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// RuntimeStats holds all collected runtime statistics
type RuntimeStats struct {
	StartTime    time.Time          `json:"start_time"`
	EndTime      time.Time          `json:"end_time"`
	TotalElapsed time.Duration      `json:"total_elapsed_ns"`
	Samples      []RuntimeStatPoint `json:"samples"`
	Summary      StatsSummary       `json:"summary"`
}

// RuntimeStatPoint represents a single sample of runtime stats
type RuntimeStatPoint struct {
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	HeapAlloc       uint64    `json:"heap_alloc"`
	Sys             uint64    `json:"sys"`
	NumGC           uint32    `json:"num_gc"`
	ProcessRSSBytes uint64    `json:"process_rss_bytes"`
	CPUPercent      float64   `json:"cpu_percent"`
	SystemCPU       []float64 `json:"system_cpu_percent"`
	NumGoroutine    int       `json:"num_goroutine"`
}

type StatsSummary struct {
	PeakHeapAlloc  uint64  `json:"peak_heap_alloc"`
	PeakSys        uint64  `json:"peak_sys"`
	PeakProcessRSS uint64  `json:"peak_process_rss"`
	PeakCPUPercent float64 `json:"peak_cpu_percent"`
	AvgCPUPercent  float64 `json:"avg_cpu_percent"`
	PeakGoroutines int     `json:"peak_goroutines"`
	TotalGCCycles  uint32  `json:"total_gc_cycles"`
	SampleCount    int     `json:"sample_count"`
}

// Collector samples process and runtime statistics on an interval until stopped.
type Collector struct {
	mu        sync.Mutex
	stats     RuntimeStats
	startTime time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
	interval  time.Duration
	proc      *process.Process
}

func NewCollector(interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process info: %w", err)
	}

	return &Collector{
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		proc:     proc,
	}, nil
}

func (c *Collector) Start() {
	c.startTime = time.Now()
	c.stats.StartTime = c.startTime

	go c.collect()
}

func (c *Collector) collect() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-c.stopChan:
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	point := RuntimeStatPoint{
		ElapsedSeconds: time.Since(c.startTime).Seconds(),
		HeapAlloc:      memStats.HeapAlloc,
		Sys:            memStats.Sys,
		NumGC:          memStats.NumGC,
		NumGoroutine:   runtime.NumGoroutine(),
	}

	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		point.ProcessRSSBytes = memInfo.RSS
	}
	if cpuPercent, err := c.proc.CPUPercent(); err == nil {
		point.CPUPercent = cpuPercent
	}
	if systemCPU, err := cpu.Percent(0, true); err == nil {
		point.SystemCPU = systemCPU
	}

	c.mu.Lock()
	c.stats.Samples = append(c.stats.Samples, point)
	c.mu.Unlock()
}

// Stop stops collecting and returns the final stats
func (c *Collector) Stop() RuntimeStats {
	close(c.stopChan)
	<-c.doneChan

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.EndTime = time.Now()
	c.stats.TotalElapsed = c.stats.EndTime.Sub(c.stats.StartTime)
	c.stats.Summary = summarize(c.stats.Samples)

	return c.stats
}

func summarize(samples []RuntimeStatPoint) StatsSummary {
	var s StatsSummary
	if len(samples) == 0 {
		return s
	}

	var totalCPU float64
	for _, p := range samples {
		s.PeakHeapAlloc = max(s.PeakHeapAlloc, p.HeapAlloc)
		s.PeakSys = max(s.PeakSys, p.Sys)
		s.PeakProcessRSS = max(s.PeakProcessRSS, p.ProcessRSSBytes)
		s.PeakCPUPercent = max(s.PeakCPUPercent, p.CPUPercent)
		s.PeakGoroutines = max(s.PeakGoroutines, p.NumGoroutine)
		s.TotalGCCycles = max(s.TotalGCCycles, p.NumGC)
		totalCPU += p.CPUPercent
	}
	s.SampleCount = len(samples)
	s.AvgCPUPercent = totalCPU / float64(s.SampleCount)
	return s
}

// WriteReport renders a human-readable report, at most maxSamples detail rows.
func (stats *RuntimeStats) WriteReport(w io.Writer, maxSamples int) error {
	ew := &errWriter{w: w}

	ew.printf("RUNTIME\n")
	ew.printf("  Start Time:        %s\n", stats.StartTime.Format(time.RFC3339))
	ew.printf("  Duration:          %s\n", stats.TotalElapsed.Round(time.Millisecond))
	ew.printf("  Samples:           %d\n", stats.Summary.SampleCount)
	ew.printf("  Peak Heap:         %s\n", humanize.IBytes(stats.Summary.PeakHeapAlloc))
	ew.printf("  Peak Sys:          %s\n", humanize.IBytes(stats.Summary.PeakSys))
	ew.printf("  Peak RSS:          %s\n", humanize.IBytes(stats.Summary.PeakProcessRSS))
	ew.printf("  Peak CPU:          %.2f%%\n", stats.Summary.PeakCPUPercent)
	ew.printf("  Average CPU:       %.2f%%\n", stats.Summary.AvgCPUPercent)
	ew.printf("  Peak Goroutines:   %d\n", stats.Summary.PeakGoroutines)
	ew.printf("  GC Cycles:         %d\n", stats.Summary.TotalGCCycles)
	ew.printf("\n")

	samples := evenlySpaced(stats.Samples, maxSamples)
	if len(samples) < len(stats.Samples) {
		ew.printf("  (Showing %d of %d samples, evenly distributed)\n", len(samples), len(stats.Samples))
	}
	ew.printf("%-12s %-14s %-14s %-10s %-10s\n", "Elapsed(s)", "Heap Alloc", "Process RSS", "CPU %", "Goroutines")
	for _, s := range samples {
		ew.printf("%-12.1f %-14s %-14s %-10.1f %-10d\n",
			s.ElapsedSeconds,
			humanize.IBytes(s.HeapAlloc),
			humanize.IBytes(s.ProcessRSSBytes),
			s.CPUPercent,
			s.NumGoroutine)
	}

	return ew.err
}

func evenlySpaced(samples []RuntimeStatPoint, n int) []RuntimeStatPoint {
	if n <= 0 || len(samples) <= n {
		return samples
	}
	if n == 1 {
		return samples[:1]
	}
	out := make([]RuntimeStatPoint, 0, n)
	step := float64(len(samples)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, samples[int(float64(i)*step)])
	}
	return out
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
