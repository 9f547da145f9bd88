// Package monitoring samples host resources and raises system alerts when
// they run high.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"erp-backend/internal/logging"
	"erp-backend/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

const maxAlerts = 100

type Sample struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsed    string    `json:"memory_used"`
	MemoryTotal   string    `json:"memory_total"`
	DiskPercent   float64   `json:"disk_percent"`
	DiskUsed      string    `json:"disk_used"`
	DiskTotal     string    `json:"disk_total"`
	At            time.Time `json:"at"`
}

type Alert struct {
	ID        int       `json:"id"`
	Severity  string    `json:"severity"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Resolved  bool      `json:"resolved"`
}

// Alerter receives the alerts raised by the watcher.
type Alerter interface {
	SystemAlert(level, message string)
}

// Sampler reads the current resource usage.
type Sampler func(ctx context.Context) (Sample, error)

// HostSampler reads CPU, memory and the disk holding diskPath via gopsutil.
func HostSampler(diskPath string) Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return func(ctx context.Context) (Sample, error) {
		var s Sample

		cpuPercents, err := cpu.PercentWithContext(ctx, time.Second, false)
		if err != nil {
			return s, fmt.Errorf("cpu: %w", err)
		}
		if len(cpuPercents) > 0 {
			s.CPUPercent = cpuPercents[0]
		}

		memStats, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return s, fmt.Errorf("memory: %w", err)
		}
		s.MemoryPercent = memStats.UsedPercent
		s.MemoryUsed = formatBytes(memStats.Used)
		s.MemoryTotal = formatBytes(memStats.Total)

		diskStats, err := disk.UsageWithContext(ctx, diskPath)
		if err != nil {
			return s, fmt.Errorf("disk: %w", err)
		}
		s.DiskPercent = diskStats.UsedPercent
		s.DiskUsed = formatBytes(diskStats.Used)
		s.DiskTotal = formatBytes(diskStats.Total)

		s.At = time.Now()
		return s, nil
	}
}

func formatBytes(bytes uint64) string {
	gb := float64(bytes) / (1024 * 1024 * 1024)
	if gb >= 1 {
		return fmt.Sprintf("%.2f GB", gb)
	}
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1024*1024))
}

// Watcher samples on an interval and raises one alert per resource when it
// crosses the threshold. The alert resolves once usage drops back below.
type Watcher struct {
	sample    Sampler
	alerter   Alerter
	threshold float64
	interval  time.Duration
	log       zerolog.Logger

	mu     sync.RWMutex
	last   Sample
	alerts []Alert
	firing map[string]int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewWatcher(sample Sampler, alerter Alerter, threshold float64, interval time.Duration) *Watcher {
	if threshold <= 0 {
		threshold = 90
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Watcher{
		sample:    sample,
		alerter:   alerter,
		threshold: threshold,
		interval:  interval,
		log:       logging.For("monitoring"),
		firing:    make(map[string]int),
		stopChan:  make(chan struct{}),
	}
}

// severity grades usage above the threshold.
func severity(percent float64) string {
	if percent >= 98 {
		return "critical"
	}
	return "error"
}

// Check takes one sample and updates gauges and alerts.
func (w *Watcher) Check(ctx context.Context) (Sample, error) {
	s, err := w.sample(ctx)
	if err != nil {
		return s, err
	}

	metrics.HostCPUPercent.Set(s.CPUPercent)
	metrics.HostMemoryPercent.Set(s.MemoryPercent)
	metrics.HostDiskPercent.Set(s.DiskPercent)

	w.mu.Lock()
	w.last = s
	var raised []Alert
	for _, r := range []struct {
		kind    string
		label   string
		percent float64
	}{
		{"high_cpu", "CPU", s.CPUPercent},
		{"high_memory", "Memory", s.MemoryPercent},
		{"high_disk", "Disk", s.DiskPercent},
	} {
		idx, firing := w.firing[r.kind]
		switch {
		case r.percent >= w.threshold && !firing:
			a := Alert{
				ID:        len(w.alerts) + 1,
				Severity:  severity(r.percent),
				Type:      r.kind,
				Message:   fmt.Sprintf("%s usage at %.1f%% (threshold %.0f%%)", r.label, r.percent, w.threshold),
				Timestamp: s.At,
			}
			w.alerts = append(w.alerts, a)
			w.firing[r.kind] = len(w.alerts) - 1
			raised = append(raised, a)
		case r.percent < w.threshold && firing:
			w.alerts[idx].Resolved = true
			delete(w.firing, r.kind)
		}
	}
	w.trim()
	w.mu.Unlock()

	for _, a := range raised {
		w.log.Warn().Str("type", a.Type).Msg(a.Message)
		if w.alerter != nil {
			w.alerter.SystemAlert(a.Severity, a.Message)
		}
	}
	return s, nil
}

// trim drops the oldest resolved alerts beyond maxAlerts. Caller holds mu.
func (w *Watcher) trim() {
	if len(w.alerts) <= maxAlerts {
		return
	}
	kept := make([]Alert, 0, maxAlerts)
	drop := len(w.alerts) - maxAlerts
	for _, a := range w.alerts {
		if drop > 0 && a.Resolved {
			drop--
			continue
		}
		kept = append(kept, a)
	}
	w.alerts = kept
	w.firing = make(map[string]int)
	for i, a := range w.alerts {
		if !a.Resolved {
			w.firing[a.Type] = i
		}
	}
}

// Latest returns the most recent sample.
func (w *Watcher) Latest() Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// Alerts returns recent alerts, newest first.
func (w *Watcher) Alerts() []Alert {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Alert, len(w.alerts))
	for i, a := range w.alerts {
		out[len(w.alerts)-1-i] = a
	}
	return out
}

func (w *Watcher) Start() {
	w.log.Info().Dur("interval", w.interval).Float64("threshold", w.threshold).Msg("starting resource watcher")

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := w.Check(ctx); err != nil {
					w.log.Error().Err(err).Msg("resource sample failed")
				}
				cancel()
			case <-w.stopChan:
				w.log.Info().Msg("stopping resource watcher")
				return
			}
		}
	}()
}

func (w *Watcher) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}
