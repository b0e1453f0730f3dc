package poller

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/joshp123/gobike/internal/health"
	"github.com/joshp123/gobike/mysmartbike"
)

// Fetcher pulls the current bike inventory from the cloud.
type Fetcher interface {
	Bikes(ctx context.Context) (map[string]mysmartbike.Bike, error)
}

// Sink receives each successful snapshot. Sink failures are counted
// and logged but never abort the cycle or the other sinks.
type Sink interface {
	Name() string
	Publish(ctx context.Context, bikes []mysmartbike.Bike, at time.Time) error
}

// Poller runs the fetch cycle on an interval and fans the snapshot
// out to the sinks.
type Poller struct {
	fetcher  Fetcher
	store    *Store
	sinks    []Sink
	interval time.Duration
	log      *zap.SugaredLogger

	mu           sync.Mutex
	lastErr      error
	firstSuccess bool
}

func New(fetcher Fetcher, store *Store, sinks []Sink, interval time.Duration, log *zap.SugaredLogger) *Poller {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Poller{
		fetcher:  fetcher,
		store:    store,
		sinks:    sinks,
		interval: interval,
		log:      log,
	}
}

// Run polls immediately, then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.cycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

func (p *Poller) cycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	pollCycles.Inc()

	bikes, err := p.fetcher.Bikes(cycleCtx)
	if err != nil {
		// Keep the previous snapshot on fetch errors.
		pollSuccess.Set(0)
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.log.Warnw("poll cycle failed", "err", err)
		return
	}

	at := time.Now().UTC()
	p.store.Update(bikes, at)

	pollSuccess.Set(1)
	pollLastSuccess.Set(float64(at.Unix()))
	p.mu.Lock()
	p.lastErr = nil
	p.firstSuccess = true
	p.mu.Unlock()
	p.log.Infow("poll cycle complete", "bikes", len(bikes))

	snapshot, _ := p.store.Snapshot()
	for _, sink := range p.sinks {
		if err := sink.Publish(cycleCtx, snapshot, at); err != nil {
			sinkErrors.WithLabelValues(sink.Name()).Inc()
			p.log.Warnw("sink publish failed", "sink", sink.Name(), "err", err)
		}
	}
}

func (p *Poller) ID() string {
	return "poller"
}

func (p *Poller) Health() health.Status {
	p.mu.Lock()
	lastErr := p.lastErr
	firstSuccess := p.firstSuccess
	p.mu.Unlock()

	if !firstSuccess {
		return health.StatusError
	}
	if lastErr != nil {
		return health.StatusDegraded
	}
	if time.Since(p.store.FetchedAt()) > 3*p.interval {
		return health.StatusDegraded
	}
	return health.StatusHealthy
}

func (p *Poller) HealthMessage() string {
	p.mu.Lock()
	lastErr := p.lastErr
	firstSuccess := p.firstSuccess
	p.mu.Unlock()

	if !firstSuccess {
		if lastErr != nil {
			return lastErr.Error()
		}
		return "no successful poll yet"
	}
	if lastErr != nil {
		return lastErr.Error()
	}
	if stale := time.Since(p.store.FetchedAt()); stale > 3*p.interval {
		return "snapshot stale for " + stale.Truncate(time.Second).String()
	}
	return ""
}

func (p *Poller) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		NewMetricsCollector(p.store),
		pollCycles,
		pollSuccess,
		pollLastSuccess,
		sinkErrors,
	}
}
