package health

import (
	"fmt"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
)

// Status represents component health states for registry reporting.
type Status string

const (
	StatusHealthy  Status = "HEALTHY"
	StatusDegraded Status = "DEGRADED"
	StatusError    Status = "ERROR"
)

// Component is the compile-time contract for gobike subsystems.
type Component interface {
	ID() string
	Health() Status
	HealthMessage() string
	Collectors() []prometheus.Collector
}

var componentIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// ValidateComponents enforces basic component contract invariants at startup.
func ValidateComponents(components []Component) error {
	seen := make(map[string]bool)
	for _, component := range components {
		id := component.ID()
		if id == "" {
			return fmt.Errorf("component id is empty")
		}
		if !componentIDPattern.MatchString(id) {
			return fmt.Errorf("component id %q does not match %s", id, componentIDPattern.String())
		}
		if seen[id] {
			return fmt.Errorf("duplicate component id: %s", id)
		}
		seen[id] = true
	}
	return nil
}

// worse reports whether a is a worse status than b.
func worse(a, b Status) bool {
	return rank(a) > rank(b)
}

func rank(s Status) int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}
