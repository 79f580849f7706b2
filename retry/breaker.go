package retry

import (
	"time"

	"github.com/sirupsen/logrus"
)

// breakerState is the availability state of one relay.
type breakerState uint8

const (
	breakerClosed breakerState = iota
	breakerOpen
)

// breaker is the per-relay failure counter. Entries are created lazily
// on the first report for a relay and aged out by Cleanup.
type breaker struct {
	failureCount int
	successCount int
	state        breakerState
	lastChangeAt time.Time
}

// getBreaker returns the breaker for a relay, creating it if needed.
// Callers must hold breakersMu.
func (c *Coordinator) getBreaker(relayURL string) *breaker {
	b, ok := c.breakers[relayURL]
	if !ok {
		b = &breaker{lastChangeAt: time.Now()}
		c.breakers[relayURL] = b
	}
	return b
}

// RecordRelayFailure counts one failed publish at a relay. Reaching the
// failure threshold opens the breaker.
func (c *Coordinator) RecordRelayFailure(relayURL string, sendErr error) {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	b := c.getBreaker(relayURL)
	b.failureCount++
	b.lastChangeAt = time.Now()

	if b.state == breakerClosed && b.failureCount >= c.config.FailureThreshold {
		b.state = breakerOpen
		fields := logrus.Fields{
			"function":      "RecordRelayFailure",
			"package":       "retry",
			"relay":         relayURL,
			"failure_count": b.failureCount,
		}
		if sendErr != nil {
			fields["error"] = sendErr.Error()
		}
		logrus.WithFields(fields).Warn("Circuit breaker opened for relay")
	}
}

// RecordRelaySuccess counts one successful publish at a relay. The
// failure count drains toward zero (never below), and once it drops back
// under the threshold the breaker closes.
func (c *Coordinator) RecordRelaySuccess(relayURL string) {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	b := c.getBreaker(relayURL)
	b.successCount++
	if b.failureCount > 0 {
		b.failureCount--
	}
	b.lastChangeAt = time.Now()

	if b.state == breakerOpen && b.failureCount < c.config.FailureThreshold {
		b.state = breakerClosed
		logrus.WithFields(logrus.Fields{
			"function": "RecordRelaySuccess",
			"package":  "retry",
			"relay":    relayURL,
		}).Info("Circuit breaker closed for relay")
	}
}

// IsRelayAvailable reports whether a relay's breaker is closed. Relays
// with no recorded history are available.
func (c *Coordinator) IsRelayAvailable(relayURL string) bool {
	c.breakersMu.Lock()
	defer c.breakersMu.Unlock()

	b, ok := c.breakers[relayURL]
	if !ok {
		return true
	}
	return b.state != breakerOpen
}

// GetAvailableRelays filters a relay list down to those whose breakers
// are closed, preserving order.
func (c *Coordinator) GetAvailableRelays(relayURLs []string) []string {
	available := make([]string, 0, len(relayURLs))
	for _, url := range relayURLs {
		if c.IsRelayAvailable(url) {
			available = append(available, url)
		}
	}
	return available
}
