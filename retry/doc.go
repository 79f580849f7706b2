// Package retry decides if and when a failed send is retried and which
// relays are temporarily avoided.
//
// Retry timing uses capped exponential backoff with additive jitter.
// Relay availability is tracked by per-relay circuit breakers: five
// recorded failures open a breaker, and recorded successes close it
// again by draining the failure count. There is no time-based half-open
// probe; a breaker only recovers through RecordRelaySuccess. That is a
// known limitation carried over from the reference behavior.
//
// All state lives inside a Coordinator instance constructed once per
// process and passed by reference to its collaborators.
package retry
