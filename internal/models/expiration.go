package models

import "time"

// Temporary messages pick their time-to-live from a fixed menu. The key
// travels in the send request as `expiration_key`.
var expirationMenu = map[string]time.Duration{
	"1m":  time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
}

// ExpirationDuration resolves an expiration key to its duration.
func ExpirationDuration(key string) (time.Duration, bool) {
	d, ok := expirationMenu[key]
	return d, ok
}
