package clientdata

import "time"

// TTL constants for cached price data.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Daily bars only change once per session
	TTLPriceHistory = 12 * time.Hour
	// Latest quotes for allocation overviews
	TTLCurrentPrice = 10 * time.Minute
)
