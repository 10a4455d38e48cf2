// Package promhooks exports rollingdb hook events as Prometheus metrics.
package promhooks

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/rollingdb"
)

const namespace = "rollingdb"

type Hooks struct {
	rotations       prometheus.Counter
	epoch           prometheus.Gauge
	deleted         prometheus.Counter
	deletedBytes    prometheus.Counter
	deleteFailures  prometheus.Counter
	settingsCarried prometheus.Counter
	orphans         prometheus.Counter
	selfHeals       *prometheus.CounterVec
	setRejected     prometheus.Counter
}

var _ rollingdb.Hooks = (*Hooks)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Hooks, error) {
	h := &Hooks{
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "rotations_total",
			Help: "Completed generation rotations.",
		}),
		epoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "current_creation_epoch",
			Help: "Epoch at which the current generation was created.",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "generations_deleted_total",
			Help: "Superseded generations removed from disk.",
		}),
		deletedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "generation_deleted_bytes_total",
			Help: "Bytes reclaimed by generation deletion.",
		}),
		deleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "generation_delete_failures_total",
			Help: "Superseded generations that could not be removed.",
		}),
		settingsCarried: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "settings_carried_total",
			Help: "Settings copied into a new current generation.",
		}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orphans_removed_total",
			Help: "Unindexed generation directories removed at startup.",
		}),
		selfHeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "self_heals_total",
			Help: "Cache entries dropped on read.",
		}, []string{"reason"}),
		setRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "set_rejected_total",
			Help: "Cache fills refused by the provider.",
		}),
	}

	for _, c := range []prometheus.Collector{
		h.rotations, h.epoch, h.deleted, h.deletedBytes, h.deleteFailures,
		h.settingsCarried, h.orphans, h.selfHeals, h.setRejected,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) Rotated(epoch int64, _, _ string) {
	h.rotations.Inc()
	h.epoch.Set(float64(epoch))
}

func (h *Hooks) GenerationDeleted(_ string, size uint64) {
	h.deleted.Inc()
	h.deletedBytes.Add(float64(size))
}

func (h *Hooks) DeleteFailed(string, error)     { h.deleteFailures.Inc() }
func (h *Hooks) SettingCarried(string)          { h.settingsCarried.Inc() }
func (h *Hooks) OrphanRemoved(string)           { h.orphans.Inc() }
func (h *Hooks) CacheSelfHeal(_, reason string) { h.selfHeals.WithLabelValues(reason).Inc() }
func (h *Hooks) CacheSetRejected(string)        { h.setRejected.Inc() }
