package main

import (
	"net"
	"os"
	"strings"

	"github.com/joshp123/gobike/internal/config"
)

func resolveGRPCAddr() string {
	if value := os.Getenv("GOBIKE_GRPC_ADDR"); value != "" {
		return value
	}
	if cfg, err := config.Load(""); err == nil {
		return dialable(cfg.GRPCAddr)
	}
	return "localhost:9000"
}

func resolveHTTPBase() string {
	addr := os.Getenv("GOBIKE_HTTP_ADDR")
	if addr == "" {
		if cfg, err := config.Load(""); err == nil {
			addr = cfg.HTTPAddr
		}
	}
	if addr == "" {
		addr = "localhost:8080"
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + dialable(addr)
}

// dialable turns a listen address like 0.0.0.0:8080 or :8080 into
// something a client can connect to.
func dialable(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "localhost:" + port
	}
	return addr
}
