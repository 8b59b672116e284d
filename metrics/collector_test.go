package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/busq"
	"github.com/mklimuk/busq/executor"
	"github.com/mklimuk/busq/sim"
)

func TestCollector_Scheduler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, DefaultConfig())
	bus := sim.NewBus()
	bus.Attach(0x20, sim.NewDevice(4))
	s := busq.New(executor.NewPolled(bus), busq.WithObserver(c))

	var ok, missing busq.Transaction
	buf := make([]byte, 2)
	require.True(t, s.SubmitRead(&ok, 0x20, 0, buf))
	require.True(t, s.SubmitWrite(&missing, 0x21, 0, []byte{0x01}))
	require.False(t, s.SubmitRead(&ok, 0x20, 0, buf))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.queue.WithLabelValues("default")))

	s.WaitFinish(&missing)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.submitted.WithLabelValues("default", "read")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.submitted.WithLabelValues("default", "write")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rejected.WithLabelValues("default")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.completed.WithLabelValues("default", "read", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.completed.WithLabelValues("default", "write", "nack")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.queue.WithLabelValues("default")))
	assert.Empty(t, c.started)

	count, err := testutil.GatherAndCount(reg, "busq_scheduler_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestCollector_Latency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, Config{Namespace: "test", Bus: "i2c-1"})
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	tx := &busq.Transaction{Direction: busq.Read}
	c.Submitted(tx)
	now = now.Add(3 * time.Millisecond)
	c.Completed(tx)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "test_latency_seconds" {
			continue
		}
		found = true
		h := mf.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(1), h.GetSampleCount())
		assert.InDelta(t, 0.003, h.GetSampleSum(), 1e-9)
	}
	assert.True(t, found)
}

func TestCollector_SeveralBuses(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg, DefaultConfig())
	first := sim.NewBus()
	first.Attach(0x20, sim.NewDevice(4))
	second := sim.NewBus()
	second.Attach(0x20, sim.NewDevice(4))
	s1 := busq.New(executor.NewPolled(first), busq.WithObserver(c))
	s2 := busq.New(executor.NewPolled(second), busq.WithObserver(c.ForBus("i2c-2")))

	var a, b, d busq.Transaction
	require.True(t, s1.SubmitWrite(&a, 0x20, 0, []byte{0x00}))
	require.True(t, s2.SubmitWrite(&b, 0x20, 0, []byte{0x00}))
	require.True(t, s2.SubmitWrite(&d, 0x20, 0, []byte{0x01}))
	require.False(t, s2.SubmitWrite(&d, 0x20, 0, []byte{0x01}))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.queue.WithLabelValues("default")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.queue.WithLabelValues("i2c-2")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rejected.WithLabelValues("i2c-2")))

	s1.WaitFinish(&a)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.queue.WithLabelValues("default")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.queue.WithLabelValues("i2c-2")))

	s2.WaitFinish(&d)
	assert.Equal(t, float64(0), testutil.ToFloat64(c.queue.WithLabelValues("i2c-2")))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.completed.WithLabelValues("i2c-2", "write", "ok")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.rejected.WithLabelValues("default")))
}
