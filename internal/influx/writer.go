package influx

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joshp123/gobike/internal/config"
	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/mysmartbike"
)

const measurement = "bike_telemetry"

var writeErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "gobike_influx_write_errors_total",
	Help: "Failed InfluxDB writes",
})

var pointsWritten = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "gobike_influx_points_written_total",
	Help: "Telemetry points written to InfluxDB",
})

// Writer appends one point per bike per poll cycle to InfluxDB.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      *zap.SugaredLogger

	mu      sync.Mutex
	lastErr string
	wrote   bool
}

func NewWriter(cfg config.InfluxConfig, log *zap.SugaredLogger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	data, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("read influx token: %w", err)
	}
	token := strings.TrimSpace(string(data))

	client := influxdb2.NewClient(cfg.URL, token)
	return &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      log,
	}, nil
}

func (w *Writer) Name() string {
	return "influx"
}

func (w *Writer) Publish(ctx context.Context, bikes []mysmartbike.Bike, at time.Time) error {
	var firstErr error
	for _, bike := range bikes {
		point := influxdb2.NewPoint(measurement, pointTags(bike), pointFields(bike), at)
		if err := w.writeAPI.WritePoint(ctx, point); err != nil {
			writeErrors.Inc()
			if firstErr == nil {
				firstErr = fmt.Errorf("write point %s: %w", bike.Serial, err)
			}
			continue
		}
		pointsWritten.Inc()
	}

	w.mu.Lock()
	w.wrote = w.wrote || firstErr == nil
	if firstErr != nil {
		w.lastErr = firstErr.Error()
	} else {
		w.lastErr = ""
	}
	w.mu.Unlock()

	return firstErr
}

func pointTags(bike mysmartbike.Bike) map[string]string {
	return map[string]string{
		"serial": bike.Serial,
		"brand":  bike.Brand,
		"model":  bike.Model,
	}
}

func pointFields(bike mysmartbike.Bike) map[string]any {
	fields := map[string]any{
		"odometer_m": bike.OdometryMeters,
	}
	if bike.StateOfCharge != nil {
		fields["state_of_charge"] = *bike.StateOfCharge
	}
	if bike.RemainingCapacity != nil {
		fields["remaining_capacity"] = *bike.RemainingCapacity
	}
	if bike.Latitude != nil {
		fields["latitude"] = *bike.Latitude
	}
	if bike.Longitude != nil {
		fields["longitude"] = *bike.Longitude
	}
	return fields
}

func (w *Writer) Close() {
	w.client.Close()
}

func (w *Writer) ID() string {
	return "influx"
}

func (w *Writer) Health() health.Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lastErr != "" {
		if w.wrote {
			return health.StatusDegraded
		}
		return health.StatusError
	}
	return health.StatusHealthy
}

func (w *Writer) HealthMessage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Writer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{writeErrors, pointsWritten}
}
