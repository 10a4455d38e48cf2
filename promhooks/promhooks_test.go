package promhooks

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	require.NoError(t, err)

	h.Rotated(100, "a", "b")
	h.Rotated(200, "c", "a")
	h.GenerationDeleted("/d/b", 4096)
	h.DeleteFailed("/d/x", errors.New("busy"))
	h.SettingCarried("head")
	h.OrphanRemoved("/d/o")
	h.CacheSelfHeal("k", "corrupt")
	h.CacheSelfHeal("k", "corrupt")
	h.CacheSelfHeal("k", "cid_mismatch")
	h.CacheSetRejected("k")

	require.Equal(t, 2.0, testutil.ToFloat64(h.rotations))
	require.Equal(t, 200.0, testutil.ToFloat64(h.epoch))
	require.Equal(t, 1.0, testutil.ToFloat64(h.deleted))
	require.Equal(t, 4096.0, testutil.ToFloat64(h.deletedBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(h.deleteFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(h.settingsCarried))
	require.Equal(t, 1.0, testutil.ToFloat64(h.orphans))
	require.Equal(t, 2.0, testutil.ToFloat64(h.selfHeals.WithLabelValues("corrupt")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.selfHeals.WithLabelValues("cid_mismatch")))
	require.Equal(t, 1.0, testutil.ToFloat64(h.setRejected))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, mfs, 9)
	series := 0
	for _, mf := range mfs {
		series += len(mf.GetMetric())
	}
	require.Equal(t, 10, series)
}

func TestDoubleRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	require.Error(t, err)
}
