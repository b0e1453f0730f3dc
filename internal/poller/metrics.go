package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gobike_poll_cycles_total",
		Help: "Poll cycles attempted",
	})
	pollSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobike_poll_success",
		Help: "Last poll cycle success (1=ok, 0=error)",
	})
	pollLastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gobike_poll_last_success_timestamp_seconds",
		Help: "Last successful poll timestamp (epoch seconds)",
	})
	sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gobike_poll_sink_errors_total",
		Help: "Sink publish failures per sink",
	}, []string{"sink"})
)

var bikeLabels = []string{"serial", "brand", "model"}

// MetricsCollector exposes per-bike telemetry gauges. It reads the
// snapshot store on scrape; the network is never touched here.
type MetricsCollector struct {
	store *Store

	stateOfCharge     *prometheus.GaugeVec
	odometer          *prometheus.GaugeVec
	remainingCapacity *prometheus.GaugeVec
	lastPosition      *prometheus.GaugeVec
	snapshotAge       prometheus.Gauge
}

func NewMetricsCollector(store *Store) *MetricsCollector {
	return &MetricsCollector{
		store: store,
		stateOfCharge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gobike_bike_state_of_charge_percent",
			Help: "Battery state of charge per bike (percent)",
		}, bikeLabels),
		odometer: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gobike_bike_odometer_meters",
			Help: "Odometer per bike (meters)",
		}, bikeLabels),
		remainingCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gobike_bike_remaining_capacity",
			Help: "Remaining battery capacity per bike",
		}, bikeLabels),
		lastPosition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gobike_bike_last_position_timestamp_seconds",
			Help: "Last GPS fix timestamp per bike (epoch seconds)",
		}, bikeLabels),
		snapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gobike_snapshot_age_seconds",
			Help: "Age of the bike snapshot at scrape time",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.stateOfCharge.Describe(ch)
	c.odometer.Describe(ch)
	c.remainingCapacity.Describe(ch)
	c.lastPosition.Describe(ch)
	c.snapshotAge.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	bikes, fetchedAt := c.store.Snapshot()

	c.stateOfCharge.Reset()
	c.odometer.Reset()
	c.remainingCapacity.Reset()
	c.lastPosition.Reset()

	for _, bike := range bikes {
		labels := prometheus.Labels{
			"serial": bike.Serial,
			"brand":  bike.Brand,
			"model":  bike.Model,
		}
		c.odometer.With(labels).Set(bike.OdometryMeters)
		if bike.StateOfCharge != nil {
			c.stateOfCharge.With(labels).Set(*bike.StateOfCharge)
		}
		if bike.RemainingCapacity != nil {
			c.remainingCapacity.With(labels).Set(*bike.RemainingCapacity)
		}
		if bike.LastPosition != nil {
			c.lastPosition.With(labels).Set(float64(bike.LastPosition.Unix()))
		}
	}
	if !fetchedAt.IsZero() {
		c.snapshotAge.Set(time.Since(fetchedAt).Seconds())
	}

	c.stateOfCharge.Collect(ch)
	c.odometer.Collect(ch)
	c.remainingCapacity.Collect(ch)
	c.lastPosition.Collect(ch)
	c.snapshotAge.Collect(ch)
}
