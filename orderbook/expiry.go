// Copyright 2023-2024, Stratum Labs, Inc.
// For license information, see https://github.com/stratumlabs/stratum/blob/master/LICENSE

package orderbook

// ExpiryConfig is the shared TTL record carried by reclaimable accounts.
// Any caller may clean an account up once expiry plus grace has passed,
// in exchange for the cleanup reward from the authority-funded reserve.
type ExpiryConfig struct {
	CreatedAt     int64
	ExpiresAt     int64 // 0 = never expires
	GracePeriod   int64
	CleanupReward uint64
}

func NewExpiry(now, ttlSeconds, gracePeriod int64, cleanupReward uint64) ExpiryConfig {
	expiresAt := int64(0)
	if ttlSeconds > 0 {
		expiresAt = now + ttlSeconds
	}
	return ExpiryConfig{
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
		GracePeriod:   gracePeriod,
		CleanupReward: cleanupReward,
	}
}

func (e *ExpiryConfig) IsExpired(now int64) bool {
	return e.ExpiresAt > 0 && now > e.ExpiresAt
}

// CanCleanup reports whether the grace period after expiry has passed.
func (e *ExpiryConfig) CanCleanup(now int64) bool {
	return e.ExpiresAt > 0 && now > e.ExpiresAt+e.GracePeriod
}
