package health

import "github.com/prometheus/client_golang/prometheus"

// ComponentHealth is one row of the health report.
type ComponentHealth struct {
	ID      string `json:"id"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Report is the aggregate health surface served over HTTP.
type Report struct {
	Overall    Status            `json:"overall"`
	Components []ComponentHealth `json:"components"`
}

// MetricsRegistry builds a registry from component collectors plus
// shared module collectors.
func MetricsRegistry(components []Component, shared ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, component := range components {
		for _, collector := range component.Collectors() {
			registry.MustRegister(collector)
		}
	}
	for _, collector := range shared {
		registry.MustRegister(collector)
	}

	return registry
}

// Snapshot reports every component's health; Overall is the worst status.
func Snapshot(components []Component) Report {
	report := Report{Overall: StatusHealthy}
	for _, component := range components {
		status := component.Health()
		report.Components = append(report.Components, ComponentHealth{
			ID:      component.ID(),
			Status:  status,
			Message: component.HealthMessage(),
		})
		if worse(status, report.Overall) {
			report.Overall = status
		}
	}
	return report
}
