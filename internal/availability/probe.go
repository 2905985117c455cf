package availability

import (
	"context"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/dealpop/dashboard/internal/metrics"
	"github.com/rs/zerolog"
)

const defaultProbeTimeout = 3 * time.Second

// Decision is the outcome of the liveness probe. It is taken once and kept
// for the lifetime of the probe.
type Decision struct {
	UsingFallback bool      `json:"usingFallback"`
	ProbedAt      time.Time `json:"probedAt"`
	Reason        string    `json:"reason,omitempty"`
}

// ProbeConfig controls the liveness probe
type ProbeConfig struct {
	Timeout time.Duration
	// ForceFallback skips the probe and selects the fallback
	ForceFallback bool
	Metrics       *metrics.Metrics
}

// Probe decides once whether the live backend is reachable
type Probe struct {
	kind    string
	target  domain.Prober
	timeout time.Duration
	force   bool
	metrics *metrics.Metrics
	logger  zerolog.Logger

	once     sync.Once
	mu       sync.RWMutex
	decision *Decision
}

// NewProbe creates a probe of target. kind labels logs and metrics. A nil
// target always decides for the fallback.
func NewProbe(kind string, target domain.Prober, config ProbeConfig, logger zerolog.Logger) *Probe {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Probe{
		kind:    kind,
		target:  target,
		timeout: timeout,
		force:   config.ForceFallback,
		metrics: config.Metrics,
		logger:  logger.With().Str("component", "availability").Str("kind", kind).Logger(),
	}
}

// Decide returns the decision, probing on first use. Concurrent first
// callers wait for the same probe. The probe is not bound to the caller's
// cancellation, only to the probe timeout.
func (p *Probe) Decide(ctx context.Context) Decision {
	p.once.Do(func() {
		d := p.probe(ctx)
		p.mu.Lock()
		p.decision = &d
		p.mu.Unlock()
	})
	p.mu.RLock()
	defer p.mu.RUnlock()
	return *p.decision
}

// Decided returns the decision if the probe has already run
func (p *Probe) Decided() (Decision, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.decision == nil {
		return Decision{}, false
	}
	return *p.decision, true
}

func (p *Probe) probe(ctx context.Context) Decision {
	now := time.Now()
	switch {
	case p.force:
		p.metrics.ObserveProbe(p.kind, metrics.OutcomeForced)
		p.logger.Info().Msg("Fallback forced by configuration")
		return Decision{UsingFallback: true, ProbedAt: now, Reason: "forced by configuration"}
	case p.target == nil:
		p.metrics.ObserveProbe(p.kind, metrics.OutcomeFallback)
		p.logger.Warn().Msg("No live backend configured, using fallback")
		return Decision{UsingFallback: true, ProbedAt: now, Reason: "no live backend configured"}
	}

	probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	err := p.target.Ping(probeCtx)
	if err == nil && probeCtx.Err() != nil {
		err = probeCtx.Err()
	}
	if err != nil {
		p.metrics.ObserveProbe(p.kind, metrics.OutcomeFallback)
		p.logger.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("Live backend unreachable, using fallback")
		return Decision{UsingFallback: true, ProbedAt: now, Reason: err.Error()}
	}

	p.metrics.ObserveProbe(p.kind, metrics.OutcomeLive)
	p.logger.Info().Dur("elapsed", time.Since(start)).Msg("Live backend reachable")
	return Decision{UsingFallback: false, ProbedAt: now}
}
