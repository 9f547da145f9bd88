package monitoring

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedAlert struct{ level, message string }

type alertRecorder struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (r *alertRecorder) SystemAlert(level, message string) {
	r.mu.Lock()
	r.alerts = append(r.alerts, recordedAlert{level, message})
	r.mu.Unlock()
}

func sequence(samples ...Sample) Sampler {
	i := 0
	return func(context.Context) (Sample, error) {
		s := samples[i]
		if i < len(samples)-1 {
			i++
		}
		return s, nil
	}
}

func TestWatcherAlertsOncePerCrossing(t *testing.T) {
	rec := &alertRecorder{}
	w := NewWatcher(sequence(
		Sample{CPUPercent: 50, MemoryPercent: 40, DiskPercent: 30},
		Sample{CPUPercent: 95, MemoryPercent: 40, DiskPercent: 99},
		Sample{CPUPercent: 96, MemoryPercent: 40, DiskPercent: 99},
		Sample{CPUPercent: 20, MemoryPercent: 40, DiskPercent: 99},
		Sample{CPUPercent: 91, MemoryPercent: 40, DiskPercent: 99},
	), rec, 90, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := w.Check(ctx)
		require.NoError(t, err)
	}

	require.Len(t, rec.alerts, 3)
	assert.Equal(t, "error", rec.alerts[0].level)
	assert.Contains(t, rec.alerts[0].message, "CPU usage at 95.0%")
	assert.Equal(t, "critical", rec.alerts[1].level)
	assert.Contains(t, rec.alerts[1].message, "Disk")
	assert.Contains(t, rec.alerts[2].message, "CPU usage at 91.0%")

	alerts := w.Alerts()
	require.Len(t, alerts, 3)
	assert.Equal(t, "high_cpu", alerts[0].Type)
	assert.False(t, alerts[0].Resolved)
	assert.Equal(t, "high_disk", alerts[1].Type)
	assert.False(t, alerts[1].Resolved)
	assert.True(t, alerts[2].Resolved, "first CPU alert resolved when usage dropped")

	assert.Equal(t, 91.0, w.Latest().CPUPercent)
}

func TestWatcherSampleError(t *testing.T) {
	rec := &alertRecorder{}
	w := NewWatcher(func(context.Context) (Sample, error) {
		return Sample{}, errors.New("no procfs")
	}, rec, 90, time.Minute)

	_, err := w.Check(context.Background())
	assert.Error(t, err)
	assert.Empty(t, rec.alerts)
	assert.Empty(t, w.Alerts())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "2.00 GB", formatBytes(2*1024*1024*1024))
	assert.Equal(t, "512.00 MB", formatBytes(512*1024*1024))
}
