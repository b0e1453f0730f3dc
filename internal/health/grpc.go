package health

import (
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncHealthServer projects component statuses onto the gRPC health
// service: one service name per component plus the empty overall
// service. HEALTHY maps to SERVING, anything else to NOT_SERVING.
func SyncHealthServer(hs *grpchealth.Server, components []Component) {
	overall := healthpb.HealthCheckResponse_SERVING
	for _, component := range components {
		status := healthpb.HealthCheckResponse_SERVING
		if component.Health() != StatusHealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(component.ID(), status)
	}
	hs.SetServingStatus("", overall)
}
