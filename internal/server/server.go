package server

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joshp123/gobike/internal/health"
)

// GRPCServer wraps a gRPC server, its listener, and the standard
// health service. Reflection is registered so generic clients
// (gobike-cli call) can discover services.
type GRPCServer struct {
	Server   *grpc.Server
	Listener net.Listener
	Health   *grpchealth.Server
}

func NewGRPCServer(addr string) (*GRPCServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	s := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	reflection.Register(s)

	return &GRPCServer{Server: s, Listener: ln, Health: hs}, nil
}

func (s *GRPCServer) Serve() error {
	return s.Server.Serve(s.Listener)
}

func (s *GRPCServer) GracefulStop() {
	s.Server.GracefulStop()
}

// SyncComponentHealth keeps the gRPC health service in step with the
// component registry until ctx is cancelled.
func (s *GRPCServer) SyncComponentHealth(ctx context.Context, components []health.Component, interval time.Duration) {
	health.SyncHealthServer(s.Health, components)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SyncHealthServer(s.Health, components)
			}
		}
	}()
}
