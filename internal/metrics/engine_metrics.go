package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// EngineSample is one resource reading of the engine process.
type EngineSample struct {
	PID        int32     `json:"pid"`
	Name       string    `json:"name"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// SamplerConfig holds configuration for engine resource sampling.
type SamplerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// EngineSampler periodically reads CPU, memory and thread counts of the
// running engine through gopsutil and exposes them as gauges.
type EngineSampler struct {
	enabled  bool
	interval time.Duration

	mu   sync.RWMutex
	last *EngineSample

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent *prometheus.GaugeVec
	memoryMB   *prometheus.GaugeVec
	numThreads *prometheus.GaugeVec
	numFDs     *prometheus.GaugeVec
}

func NewEngineSampler(cfg SamplerConfig) *EngineSampler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second // default
	}
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "vpnr",
			Subsystem: "engine",
			Name:      name,
			Help:      help,
		}, []string{"name"})
	}
	return &EngineSampler{
		enabled:    cfg.Enabled,
		interval:   interval,
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of the engine process."),
		memoryMB:   gauge("memory_mb", "Resident memory of the engine process in MB."),
		numThreads: gauge("num_threads", "Number of threads of the engine process."),
		numFDs:     gauge("num_fds", "Open file descriptors of the engine process (Unix only)."),
	}
}

// RegisterMetrics registers the sampler gauges with r.
func (s *EngineSampler) RegisterMetrics(r prometheus.Registerer) error {
	if !s.enabled {
		return nil
	}
	collectors := []prometheus.Collector{s.cpuPercent, s.memoryMB, s.numThreads}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, s.numFDs)
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start samples target every interval until ctx ends or Stop is called.
// target returns the engine name and PID; a PID <= 0 clears the gauges.
func (s *EngineSampler) Start(ctx context.Context, target func() (string, int32)) {
	if !s.enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				name, pid := target()
				s.collect(name, pid)
			}
		}
	}()
}

// Stop stops sampling and waits for the sampling goroutine.
func (s *EngineSampler) Stop() {
	if !s.enabled {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Last returns the most recent sample, if any.
func (s *EngineSampler) Last() (EngineSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return EngineSample{}, false
	}
	return *s.last, true
}

func (s *EngineSampler) collect(name string, pid int32) {
	if pid <= 0 {
		s.reset()
		return
	}
	smp, err := Sample(name, pid)
	if err != nil {
		slog.Debug("Failed to sample engine process", "name", name, "pid", pid, "error", err)
		s.reset()
		return
	}
	s.cpuPercent.WithLabelValues(name).Set(smp.CPUPercent)
	s.memoryMB.WithLabelValues(name).Set(smp.MemoryMB)
	s.numThreads.WithLabelValues(name).Set(float64(smp.NumThreads))
	if runtime.GOOS != "windows" && smp.NumFDs > 0 {
		s.numFDs.WithLabelValues(name).Set(float64(smp.NumFDs))
	}
	s.mu.Lock()
	s.last = smp
	s.mu.Unlock()
}

func (s *EngineSampler) reset() {
	s.cpuPercent.Reset()
	s.memoryMB.Reset()
	s.numThreads.Reset()
	s.numFDs.Reset()
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

// Sample reads one set of resource figures for pid.
func Sample(name string, pid int32) (*EngineSample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to create process handle: %w", err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory info: %w", err)
	}
	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		slog.Debug("Failed to get CPU percent", "name", name, "pid", pid, "error", err)
		cpuPercent = 0
	}
	numThreads, err := proc.NumThreads()
	if err != nil {
		slog.Debug("Failed to get thread count", "name", name, "pid", pid, "error", err)
		numThreads = 0
	}
	smp := &EngineSample{
		PID:        pid,
		Name:       name,
		CPUPercent: cpuPercent,
		MemoryMB:   float64(memInfo.RSS) / 1024 / 1024,
		MemoryRSS:  memInfo.RSS,
		NumThreads: numThreads,
		Timestamp:  time.Now(),
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			smp.NumFDs = n
		}
	}
	return smp, nil
}
