package health

import (
	"context"
	"sync"
	"time"

	"github.com/tutorlink/tutorlink-api/internal/observability"
)

type Check struct {
	Name string
	Run  func(ctx context.Context) error
}

type Result struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// ProbeRunner runs readiness checks concurrently, each under its own
// timeout. Results are cached for cacheTTL so probes under load do not
// hammer dependencies.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checks   []Check

	mu       sync.Mutex
	cachedAt time.Time
	ready    bool
	results  []Result
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checks ...Check) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checks: checks}
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && !p.cachedAt.IsZero() && time.Since(p.cachedAt) < p.cacheTTL {
		return p.ready, p.results
	}

	results := make([]Result, len(p.checks))
	var wg sync.WaitGroup
	for i, c := range p.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()
			start := time.Now()
			err := c.Run(cctx)
			res := Result{Name: c.Name, Healthy: err == nil, LatencyMS: time.Since(start).Milliseconds()}
			outcome := "healthy"
			if err != nil {
				res.Error = err.Error()
				outcome = "unhealthy"
			}
			observability.RecordReadinessProbe(ctx, c.Name, outcome)
			results[i] = res
		}(i, c)
	}
	wg.Wait()

	ready := true
	for _, r := range results {
		if !r.Healthy {
			ready = false
		}
	}
	p.ready, p.results, p.cachedAt = ready, results, time.Now()
	return ready, results
}
