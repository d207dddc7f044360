// Package observability exports node traffic counters to Prometheus.
package observability

import (
	"errors"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soypat/cyphal-node/canard"
)

// Metrics implements node.Observer.
type Metrics struct {
	registerOnce sync.Once

	frames      *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	txDropped   prometheus.Counter
	txDepth     prometheus.Gauge
	peersOnline prometheus.Gauge
}

// NewMetrics creates the collectors for the node with the given ID. They are
// not registered until Register is called.
func NewMetrics(id canard.NodeID) *Metrics {
	labels := prometheus.Labels{"node_id": nodeLabel(id)}
	return &Metrics{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "cyphal",
				Subsystem:   "rx",
				Name:        "frames_total",
				Help:        "Received CAN frames by outcome.",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "cyphal",
				Subsystem:   "rx",
				Name:        "transfers_total",
				Help:        "Completed transfers by kind and whether a handler consumed them.",
				ConstLabels: labels,
			},
			[]string{"kind", "dispatched"},
		),
		txDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cyphal",
			Subsystem:   "tx",
			Name:        "dropped_frames_total",
			Help:        "Frames discarded because their deadline passed.",
			ConstLabels: labels,
		}),
		txDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cyphal",
			Subsystem:   "tx",
			Name:        "queue_depth",
			Help:        "Frames waiting in the transmission queue.",
			ConstLabels: labels,
		}),
		peersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cyphal",
			Subsystem:   "peers",
			Name:        "online",
			Help:        "Remote nodes heard from within the offline timeout.",
			ConstLabels: labels,
		}),
	}
}

// Register adds the collectors to reg. Later calls do nothing.
func (m *Metrics) Register(reg prometheus.Registerer) {
	m.registerOnce.Do(func() {
		reg.MustRegister(m.frames, m.transfers, m.txDropped, m.txDepth, m.peersOnline)
	})
}

func (m *Metrics) FrameAccepted() {
	m.frames.WithLabelValues("accepted").Inc()
}

func (m *Metrics) FrameRejected(err error) {
	m.frames.WithLabelValues(rejectReason(err)).Inc()
}

func (m *Metrics) TransferRouted(kind canard.TxKind, dispatched bool) {
	m.transfers.WithLabelValues(kind.String(), strconv.FormatBool(dispatched)).Inc()
}

func (m *Metrics) TxDropped(n int) {
	m.txDropped.Add(float64(n))
}

func (m *Metrics) TxQueueDepth(n int) {
	m.txDepth.Set(float64(n))
}

// PeersOnline records the size of the live peer set.
func (m *Metrics) PeersOnline(n int) {
	m.peersOnline.Set(float64(n))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, canard.ErrNoMatchingSub):
		return "no_subscription"
	case errors.Is(err, canard.ErrBadDstAddr):
		return "other_destination"
	case errors.Is(err, canard.ErrInvalidFrame):
		return "invalid"
	}
	return "error"
}

func nodeLabel(id canard.NodeID) string {
	if !id.IsSet() {
		return "anonymous"
	}
	return strconv.Itoa(int(id))
}
