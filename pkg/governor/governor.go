package governor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"derp/pkg/config"
	"derp/pkg/logger"
)

// Outcome classifies the result of one governed request
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeServerError
	OutcomeTransportError
)

// String returns the log/storage representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeServerError:
		return "server_error"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

const (
	// windowSize is the span of the rolling request window
	windowSize = time.Hour

	// maxBackoffLevel bounds the exponent; the delay is capped at
	// BackoffMax well before this anyway
	maxBackoffLevel = 16
)

// State is a read-only snapshot of the governor's internals
type State struct {
	BackoffLevel          int
	NextBackoffDelay      time.Duration
	ConsecutiveSuccesses  int
	RequestsThisHour      int
	RequestsSinceCooldown int
	CooldownUntil         time.Time // zero when no cooldown is pending
	TotalRequests         uint64
	TotalErrors           uint64
}

// Governor is the single shared arbiter of "is it safe to send a
// request now". Every component that talks to the archive holds a
// reference to the same instance; Acquire serializes them so the
// aggregate request rate, not any per-caller rate, respects the
// configured ceilings.
type Governor struct {
	cfg    config.RateLimitConfig
	logger logger.Logger

	mu                   sync.Mutex
	backoffLevel         int
	consecutiveSuccesses int
	window               []time.Time // send times inside the rolling hour
	requestCount         int
	cooldownUntil        time.Time
	lastRequest          time.Time
	totalRequests        uint64
	totalErrors          uint64
	rng                  *rand.Rand

	// overridable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a governor from the rate limit configuration
func New(cfg config.RateLimitConfig, log logger.Logger) *Governor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Governor{
		cfg:    cfg,
		logger: log,
		window: make([]time.Time, 0, cfg.RequestsPerHour),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Acquire suspends the caller until it is permitted to send one
// request. The wait combines the rolling hourly cap, any pending
// cooldown pause, the jittered baseline delay, and the current
// backoff. Cancelling the context interrupts any of those waits.
func (g *Governor) Acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		now := g.now()
		g.pruneWindow(now)

		if g.cfg.RequestsPerHour > 0 && len(g.window) >= g.cfg.RequestsPerHour {
			// Wait until the oldest request ages out of the window,
			// not until some wall-clock hour boundary.
			wait := g.window[0].Add(windowSize).Sub(now)
			g.mu.Unlock()
			g.logger.WarnWithFields("hourly request cap reached", map[string]interface{}{
				"requests_per_hour": g.cfg.RequestsPerHour,
				"wait":              wait,
			})
			if err := g.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if g.cooldownUntil.After(now) {
			wait := g.cooldownUntil.Sub(now)
			g.mu.Unlock()
			g.logger.InfoWithFields("cooldown pause", map[string]interface{}{
				"wait": wait,
			})
			if err := g.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		break // window and cooldown clear; lock still held
	}

	now := g.now()
	delay := g.baseDelay() + g.backoffDelay()
	if !g.lastRequest.IsZero() {
		if since := now.Sub(g.lastRequest); since < delay {
			delay -= since
		} else {
			delay = 0
		}
	}

	// Reserve the slot before sleeping so concurrent callers space
	// themselves off this request, not the previous one.
	sendAt := now.Add(delay)
	g.window = append(g.window, sendAt)
	g.lastRequest = sendAt
	g.requestCount++
	g.totalRequests++
	if g.cfg.CooldownEvery > 0 && g.requestCount%g.cfg.CooldownEvery == 0 {
		g.cooldownUntil = sendAt.Add(g.cfg.CooldownDuration)
		g.logger.InfoWithFields("cooldown scheduled", map[string]interface{}{
			"after_requests": g.requestCount,
			"duration":       g.cfg.CooldownDuration,
		})
	}
	g.mu.Unlock()

	return g.sleep(ctx, delay)
}

// Report feeds the outcome of the request back into the backoff state
func (g *Governor) Report(outcome Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch outcome {
	case OutcomeSuccess:
		g.consecutiveSuccesses++
		if g.cfg.SuccessStreak > 0 && g.consecutiveSuccesses >= g.cfg.SuccessStreak && g.backoffLevel > 0 {
			g.backoffLevel--
			g.consecutiveSuccesses = 0
			g.logger.InfoWithFields("backoff relaxed", map[string]interface{}{
				"backoff_level": g.backoffLevel,
			})
		}
	case OutcomeRateLimited, OutcomeServerError, OutcomeTransportError:
		g.totalErrors++
		g.consecutiveSuccesses = 0
		if g.backoffLevel < maxBackoffLevel {
			g.backoffLevel++
		}
		g.logger.WarnWithFields("backoff escalated", map[string]interface{}{
			"outcome":       outcome.String(),
			"backoff_level": g.backoffLevel,
			"next_delay":    g.backoffDelay(),
		})
	}
}

// Snapshot returns the current governor state for display
func (g *Governor) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneWindow(g.now())

	s := State{
		BackoffLevel:         g.backoffLevel,
		NextBackoffDelay:     g.backoffDelay(),
		ConsecutiveSuccesses: g.consecutiveSuccesses,
		RequestsThisHour:     len(g.window),
		TotalRequests:        g.totalRequests,
		TotalErrors:          g.totalErrors,
	}
	if g.cfg.CooldownEvery > 0 {
		s.RequestsSinceCooldown = g.requestCount % g.cfg.CooldownEvery
	}
	if g.cooldownUntil.After(g.now()) {
		s.CooldownUntil = g.cooldownUntil
	}
	return s
}

// pruneWindow drops window entries older than one hour. Caller holds the lock.
func (g *Governor) pruneWindow(now time.Time) {
	cutoff := now.Add(-windowSize)
	i := 0
	for i < len(g.window) && !g.window[i].After(cutoff) {
		i++
	}
	if i > 0 {
		copy(g.window, g.window[i:])
		g.window = g.window[:len(g.window)-i]
	}
}

// baseDelay is the jittered baseline applied to every request. Caller
// holds the lock (the rng is not safe for concurrent use).
func (g *Governor) baseDelay() time.Duration {
	d := g.cfg.MinDelay
	if spread := g.cfg.MaxDelay - g.cfg.MinDelay; spread > 0 {
		d += time.Duration(g.rng.Int63n(int64(spread)))
	}
	if g.cfg.Jitter > 0 {
		d += time.Duration(g.rng.Int63n(int64(g.cfg.Jitter)))
	}
	return d
}

// backoffDelay returns the additional delay implied by the current
// backoff level: zero at level 0, then BackoffBase doubling per level,
// capped at BackoffMax.
func (g *Governor) backoffDelay() time.Duration {
	if g.backoffLevel <= 0 {
		return 0
	}
	shift := uint(g.backoffLevel - 1)
	if shift > 30 {
		return g.cfg.BackoffMax
	}
	d := g.cfg.BackoffBase << shift
	if d > g.cfg.BackoffMax || d < 0 {
		return g.cfg.BackoffMax
	}
	return d
}

// sleepContext waits for the duration or until the context is cancelled
func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
