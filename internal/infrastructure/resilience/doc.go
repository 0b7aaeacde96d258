/*
Package resilience provides retry timing for unreliable network calls.

# Backoff

Delays grow exponentially with the attempt number and are jittered over the
whole window, so many hosts coming back online at once spread their retries:

	attempt 1: 100ms
	attempt 2: 100ms .. 200ms
	attempt 3: 100ms .. 400ms
	...
	attempt 15+: 100ms .. 100ms * 2^14

# Usage

	backoff := resilience.NewBackoff()
	for attempt := 1; ; attempt++ {
		if err := try(); err == nil {
			break
		}
		if err := resilience.Sleep(ctx, backoff.Delay(attempt)); err != nil {
			return err // cancelled
		}
	}
*/
package resilience
