package runner

import (
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MaxJitter bounds the random component added to exponential backoff.
const MaxJitter = 30 * time.Second

// rateLimitBuffer pads a provider reset time so we never resume a hair early.
const rateLimitBuffer = 120 * time.Second

// resetHintRegex matches provider rate-limit messages like "resets 4pm".
var resetHintRegex = regexp.MustCompile(`(?i)resets\s+(\d{1,2})\s*(am|pm)`)

// Backoff computes the wait before the next attempt: base × 2^retry plus
// jitter, capped at max. The result is never negative and never exceeds max.
func Backoff(retry int, base, max time.Duration, jitter time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	wait := base
	for i := 0; i < retry; i++ {
		wait *= 2
		if wait >= max {
			return max
		}
	}
	wait += jitter
	if wait > max {
		return max
	}
	if wait < 0 {
		return 0
	}
	return wait
}

// Jitter draws a random duration in [0, MaxJitter).
func Jitter() time.Duration {
	return time.Duration(rand.Int63n(int64(MaxJitter)))
}

// ParseRateLimitReset scans subprocess log output for a rate-limit reset hint
// and returns the wait until that wall-clock hour plus a safety buffer,
// wrapping to the next day when the hour has already passed. The second
// return is false when no hint is present.
func ParseRateLimitReset(logText string, now time.Time) (time.Duration, bool) {
	m := resetHintRegex.FindStringSubmatch(logText)
	if m == nil {
		return 0, false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return 0, false
	}
	meridiem := strings.ToLower(m[2])
	if meridiem == "pm" && hour != 12 {
		hour += 12
	}
	if meridiem == "am" && hour == 12 {
		hour = 0
	}

	target := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target.Sub(now) + rateLimitBuffer, true
}
