package retry

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testRelay = "wss://relay.example.com"

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	c := NewCoordinator(Config{FailureThreshold: 5})
	sendErr := errors.New("connection refused")

	for i := 0; i < 4; i++ {
		c.RecordRelayFailure(testRelay, sendErr)
		assert.True(t, c.IsRelayAvailable(testRelay), "breaker must stay closed after %d failures", i+1)
	}

	c.RecordRelayFailure(testRelay, sendErr)
	assert.False(t, c.IsRelayAvailable(testRelay))
}

func TestBreakerRecoversThroughSuccesses(t *testing.T) {
	c := NewCoordinator(Config{FailureThreshold: 5})

	for i := 0; i < 5; i++ {
		c.RecordRelayFailure(testRelay, nil)
	}
	assert.False(t, c.IsRelayAvailable(testRelay))

	// One success drains one failure, dropping the count back under the
	// threshold and closing the breaker.
	c.RecordRelaySuccess(testRelay)
	assert.True(t, c.IsRelayAvailable(testRelay))

	// The count never goes below zero.
	for i := 0; i < 10; i++ {
		c.RecordRelaySuccess(testRelay)
	}
	c.breakersMu.Lock()
	count := c.breakers[testRelay].failureCount
	c.breakersMu.Unlock()
	assert.Zero(t, count)
}

func TestUnknownRelayIsAvailable(t *testing.T) {
	c := NewCoordinator(Config{})
	assert.True(t, c.IsRelayAvailable("wss://never-seen.example.com"))
}

func TestBreakersAreIndependentPerRelay(t *testing.T) {
	c := NewCoordinator(Config{FailureThreshold: 2})

	c.RecordRelayFailure("wss://x.example.com", nil)
	c.RecordRelayFailure("wss://x.example.com", nil)

	assert.False(t, c.IsRelayAvailable("wss://x.example.com"))
	assert.True(t, c.IsRelayAvailable("wss://y.example.com"))
}

func TestGetAvailableRelaysFiltersAndPreservesOrder(t *testing.T) {
	c := NewCoordinator(Config{FailureThreshold: 2})

	relays := []string{"wss://a.example.com", "wss://b.example.com", "wss://c.example.com"}
	assert.Equal(t, relays, c.GetAvailableRelays(relays))

	c.RecordRelayFailure("wss://b.example.com", nil)
	c.RecordRelayFailure("wss://b.example.com", nil)

	assert.Equal(t, []string{"wss://a.example.com", "wss://c.example.com"}, c.GetAvailableRelays(relays))
	assert.Empty(t, c.GetAvailableRelays(nil))
}

func TestBreakerConcurrentReports(t *testing.T) {
	c := NewCoordinator(Config{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.RecordRelayFailure(testRelay, nil)
		}()
		go func() {
			defer wg.Done()
			c.RecordRelaySuccess(testRelay)
		}()
	}
	wg.Wait()

	c.breakersMu.Lock()
	b := c.breakers[testRelay]
	c.breakersMu.Unlock()
	assert.Equal(t, 50, b.successCount)
	assert.GreaterOrEqual(t, b.failureCount, 0)
	assert.True(t, c.IsRelayAvailable(testRelay))
}
