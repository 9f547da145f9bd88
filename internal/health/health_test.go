package health

import (
	"context"
	"errors"
	"testing"

	"erp-backend/internal/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	up   = PingFunc(func(context.Context) error { return nil })
	down = PingFunc(func(context.Context) error { return errors.New("connection refused") })
)

func TestCheckBasicStatuses(t *testing.T) {
	ctx := context.Background()

	h := NewHealthChecker()
	h.Add("store", true, up)
	h.Add("redis", false, up)
	assert.Equal(t, "healthy", h.CheckBasic(ctx).Status)

	h = NewHealthChecker()
	h.Add("store", true, up)
	h.Add("redis", false, down)
	status := h.CheckBasic(ctx)
	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "connection refused", status.Components["redis"].Error)
	assert.False(t, status.Components["redis"].Required)

	h.Add("remote", true, down)
	assert.Equal(t, "unhealthy", h.CheckBasic(ctx).Status)
}

func TestCheckDetailedIncludesHost(t *testing.T) {
	h := NewHealthChecker()
	h.Add("store", true, up)
	assert.Nil(t, h.CheckDetailed(context.Background()).Host)

	h.SetHost(func() monitoring.Sample { return monitoring.Sample{CPUPercent: 12.5} })
	status := h.CheckDetailed(context.Background())
	require.NotNil(t, status.Host)
	assert.Equal(t, 12.5, status.Host.CPUPercent)
	assert.Equal(t, "healthy", status.Components["store"].Status)
}
