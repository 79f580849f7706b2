package retry

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/nostrdm/store"
)

// ErrRetryExhausted indicates a message has used up its retry budget and
// must move to the terminal failed status.
var ErrRetryExhausted = errors.New("max retries exceeded")

// Config carries the coordinator's tunables. Every field is overridable
// at construction; zero values fall back to the defaults.
type Config struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            time.Duration
	FailureThreshold  int
	// BreakerRetention is how long an idle breaker entry survives before
	// Cleanup prunes it.
	BreakerRetention time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        5,
		BaseDelay:         time.Second,
		MaxDelay:          5 * time.Minute,
		BackoffMultiplier: 2,
		Jitter:            time.Second,
		FailureThreshold:  5,
		BreakerRetention:  30 * time.Minute,
	}
}

// Decision is the outcome of a ShouldRetry call.
type Decision struct {
	ShouldRetry bool
	NextRetryAt time.Time
	Err         error
}

// Coordinator owns retry timers and circuit-breaker state. It is safe
// for concurrent use; different relays' breakers and different messages'
// timers are fully independent.
type Coordinator struct {
	config Config

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	breakersMu sync.Mutex
	breakers   map[string]*breaker
}

// NewCoordinator creates a coordinator with the given configuration,
// filling unset fields from DefaultConfig.
func NewCoordinator(cfg Config) *Coordinator {
	defaults := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = defaults.BackoffMultiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = defaults.Jitter
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.BreakerRetention <= 0 {
		cfg.BreakerRetention = defaults.BreakerRetention
	}

	return &Coordinator{
		config:   cfg,
		timers:   make(map[string]*time.Timer),
		breakers: make(map[string]*breaker),
	}
}

// ShouldRetry decides whether a queued message gets another attempt. The
// sendErr argument is advisory only; once the retry budget is spent the
// answer is no regardless of the error.
func (c *Coordinator) ShouldRetry(om *store.OutgoingMessage, sendErr error) Decision {
	if om == nil {
		return Decision{ShouldRetry: false, Err: errors.New("nil queue entry")}
	}
	if om.RetryCount >= c.config.MaxRetries {
		logrus.WithFields(logrus.Fields{
			"function":    "ShouldRetry",
			"package":     "retry",
			"message_id":  om.ID,
			"retry_count": om.RetryCount,
		}).Warn("Retry budget exhausted")
		return Decision{ShouldRetry: false, Err: ErrRetryExhausted}
	}

	return Decision{
		ShouldRetry: true,
		NextRetryAt: c.ComputeNextRetry(om.RetryCount, time.Now()),
	}
}

// ComputeNextRetry returns the time of the next attempt after retryCount
// failures: base + min(baseDelay * multiplier^retryCount, maxDelay) plus
// a uniformly random jitter in [0, Jitter).
func (c *Coordinator) ComputeNextRetry(retryCount int, base time.Time) time.Time {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := float64(c.config.BaseDelay)
	for i := 0; i < retryCount; i++ {
		delay *= c.config.BackoffMultiplier
		if delay >= float64(c.config.MaxDelay) {
			delay = float64(c.config.MaxDelay)
			break
		}
	}
	if delay > float64(c.config.MaxDelay) {
		delay = float64(c.config.MaxDelay)
	}

	return base.Add(time.Duration(delay) + c.randomJitter())
}

func (c *Coordinator) randomJitter() time.Duration {
	if c.config.Jitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(c.config.Jitter)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

// ScheduleRetry arms a single cancelable timer that invokes callback at
// the given time. Re-scheduling an id replaces its previous timer.
// Timers are independent per message; firing one does not delay others.
func (c *Coordinator) ScheduleRetry(id string, at time.Time, callback func()) {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if prev, ok := c.timers[id]; ok {
		prev.Stop()
	}
	c.timers[id] = time.AfterFunc(delay, func() {
		c.timersMu.Lock()
		delete(c.timers, id)
		c.timersMu.Unlock()
		callback()
	})

	logrus.WithFields(logrus.Fields{
		"function":   "ScheduleRetry",
		"package":    "retry",
		"message_id": id,
		"at":         at,
	}).Debug("Armed retry timer")
}

// CancelRetry disarms the timer for one message, if any. A canceled
// timer has no side effects.
func (c *Coordinator) CancelRetry(id string) {
	c.timersMu.Lock()
	defer c.timersMu.Unlock()

	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

// Cleanup cancels every armed timer and prunes breaker entries that have
// been idle past the retention window.
func (c *Coordinator) Cleanup() {
	c.timersMu.Lock()
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	c.timersMu.Unlock()

	cutoff := time.Now().Add(-c.config.BreakerRetention)
	c.breakersMu.Lock()
	for url, b := range c.breakers {
		if b.lastChangeAt.Before(cutoff) {
			delete(c.breakers, url)
		}
	}
	c.breakersMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Cleanup",
		"package":  "retry",
	}).Debug("Canceled retry timers and pruned idle breakers")
}
