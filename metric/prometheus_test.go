package metric

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	o, err := NewPrometheusObserver(reg, "mdstore")
	require.NoError(t, err)

	o.OnSave(10, time.Millisecond, nil)
	o.OnSave(5, time.Millisecond, errors.New("disk full"))
	o.OnLoad(7, time.Millisecond, nil)
	o.OnEviction(10)
	o.OnEviction(3)
	o.OnFlush(2, time.Millisecond, nil)
	o.OnQueueDepth(4, 120)

	assert.InDelta(t, 10, testutil.ToFloat64(o.events.WithLabelValues("save")), 0)
	assert.InDelta(t, 7, testutil.ToFloat64(o.events.WithLabelValues("load")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(o.evictions), 0)
	assert.InDelta(t, 13, testutil.ToFloat64(o.evicted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(o.flushes.WithLabelValues("success")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(o.queueDepth), 0)
	assert.InDelta(t, 120, testutil.ToFloat64(o.queueEvents), 0)

	// save/success, save/error, load/success, flush/success
	assert.Equal(t, 4, testutil.CollectAndCount(o.opLatency))
}

func TestPrometheusObserverDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusObserver(reg, "mdstore")
	require.NoError(t, err)

	_, err = NewPrometheusObserver(reg, "mdstore")
	require.Error(t, err)

	_, err = NewPrometheusObserver(reg, "other")
	require.NoError(t, err)
}
