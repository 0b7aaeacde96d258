package page

import (
	"regexp"
	"strconv"
	"time"
)

var maxAgePattern = regexp.MustCompile(`max-age=(\d+)`)

// MaxAge returns the max-age directive of the cache-control header, or zero
// when it is absent or unparsable.
func (p *CachedPage) MaxAge() time.Duration {
	match := maxAgePattern.FindStringSubmatch(p.Headers.Get("cache-control"))
	if match == nil {
		return 0
	}
	seconds, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	// Guard against overflowing time.Duration on absurd values
	if seconds > int64(time.Duration(1<<62)/time.Second) {
		return time.Duration(1 << 62)
	}
	return time.Duration(seconds) * time.Second
}

// IsStale reports whether p must be revalidated before use. A page that was
// never validated is always stale. The age is the absolute difference between
// now and the validation time, so a clock that moved backwards counts the
// same as one that moved forwards.
func IsStale(p *CachedPage, now time.Time) bool {
	if p == nil || p.LastValidatedAt.IsZero() {
		return true
	}

	age := now.Sub(p.LastValidatedAt)
	if age < 0 {
		age = -age
	}
	return age > p.MaxAge()
}
