package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedwagon-io/idlerguard/internal/model"
)

const namespace = "idlerguard"

type Prom struct {
	readings   *prometheus.CounterVec
	evicted    *prometheus.CounterVec
	readErrors *prometheus.CounterVec
	reconnects *prometheus.CounterVec
	status     *prometheus.GaugeVec
	faults     *prometheus.CounterVec
	posts      *prometheus.CounterVec
}

func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings enqueued per sensor.",
		}, []string{"sensor"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_evicted_total",
			Help:      "Oldest readings dropped because the sensor queue was full.",
		}, []string{"sensor"}),
		readErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "Failed device reads per sensor.",
		}, []string{"sensor"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Reconnect attempts after the error threshold was reached.",
		}, []string{"sensor", "result"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_status",
			Help:      "Current acquisition status code per sensor (0 offline, 1 online, 2 error, 3 calibrating, 4 warming up, 5 connecting, 6 disconnecting).",
		}, []string{"sensor"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faults_detected_total",
			Help:      "Vibration samples whose verdict detected a fault, per class.",
		}, []string{"class"}),
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_posts_total",
			Help:      "Postings to the reading sink by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(p.readings, p.evicted, p.readErrors, p.reconnects, p.status, p.faults, p.posts)
	return p
}

func (p *Prom) ReadingCollected(sensor string) {
	p.readings.WithLabelValues(sensor).Inc()
}

func (p *Prom) ReadingEvicted(sensor string) {
	p.evicted.WithLabelValues(sensor).Inc()
}

func (p *Prom) ReadFailed(sensor string) {
	p.readErrors.WithLabelValues(sensor).Inc()
}

func (p *Prom) ReconnectAttempted(sensor string, ok bool) {
	result := "failed"
	if ok {
		result = "ok"
	}
	p.reconnects.WithLabelValues(sensor, result).Inc()
}

func (p *Prom) StatusChanged(sensor string, status model.SensorStatus) {
	p.status.WithLabelValues(sensor).Set(float64(status))
}

func (p *Prom) FaultDetected(class string) {
	p.faults.WithLabelValues(class).Inc()
}

func (p *Prom) Posted(kind, outcome string) {
	p.posts.WithLabelValues(kind, outcome).Inc()
}
