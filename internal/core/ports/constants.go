package ports

import "time"

const (
	DefaultFeeRate      = "0.008"                 // 0.8% platform commission, applied once at order creation
	DefaultLockDelay    = 1500 * time.Millisecond // Simulated PayPal confirmation time
	DemoStartingBalance = 1000                    // Balance of every freshly materialized user
	OTPCodeLength       = 6
)
