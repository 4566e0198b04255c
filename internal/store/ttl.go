package store

func IsExpired(expiresAtMs, nowMs int64) bool {
	return expiresAtMs > 0 && nowMs >= expiresAtMs
}

// remainingSeconds rounds up so a fresh 5s key reports 5, not 4.
func remainingSeconds(expiresAtMs, nowMs int64) int64 {
	left := expiresAtMs - nowMs
	return (left + 999) / 1000
}
