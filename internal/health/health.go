package health

import (
	"context"
	"sync"
	"time"

	"erp-backend/internal/monitoring"
)

// Pinger is anything the checker can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthStatus struct {
	Status     string                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Uptime     string                     `json:"uptime"`
	Host       *monitoring.Sample         `json:"host,omitempty"`
}

type ComponentHealth struct {
	Status       string `json:"status"`
	Required     bool   `json:"required"`
	ResponseTime int64  `json:"response_time_ms"`
	Error        string `json:"error,omitempty"`
}

type check struct {
	name     string
	required bool
	pinger   Pinger
}

// HealthChecker probes the store and the optional backends. A failing
// required component makes the service unhealthy; a failing optional one
// only degrades it.
type HealthChecker struct {
	mu      sync.RWMutex
	checks  []check
	host    func() monitoring.Sample
	started time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{started: time.Now()}
}

func (h *HealthChecker) Add(name string, required bool, p Pinger) {
	h.mu.Lock()
	h.checks = append(h.checks, check{name: name, required: required, pinger: p})
	h.mu.Unlock()
}

// SetHost provides the latest host resource sample for detailed checks.
func (h *HealthChecker) SetHost(fn func() monitoring.Sample) {
	h.mu.Lock()
	h.host = fn
	h.mu.Unlock()
}

func (h *HealthChecker) CheckBasic(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]check(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:     "healthy",
		Components: make(map[string]ComponentHealth, len(checks)),
		Uptime:     time.Since(h.started).Round(time.Second).String(),
	}
	for _, c := range checks {
		ch := probe(ctx, c)
		status.Components[c.name] = ch
		if ch.Status == "healthy" {
			continue
		}
		if c.required {
			status.Status = "unhealthy"
		} else if status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	return status
}

// CheckDetailed adds the host sample to the basic status.
func (h *HealthChecker) CheckDetailed(ctx context.Context) HealthStatus {
	status := h.CheckBasic(ctx)
	h.mu.RLock()
	host := h.host
	h.mu.RUnlock()
	if host != nil {
		s := host()
		status.Host = &s
	}
	return status
}

func probe(ctx context.Context, c check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	err := c.pinger.Ping(ctx)
	responseTime := time.Since(start).Milliseconds()

	if err != nil {
		return ComponentHealth{
			Status:       "unhealthy",
			Required:     c.required,
			ResponseTime: responseTime,
			Error:        err.Error(),
		}
	}
	return ComponentHealth{
		Status:       "healthy",
		Required:     c.required,
		ResponseTime: responseTime,
	}
}
