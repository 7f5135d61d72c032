package config

import "time"

// Default timeout and interval constants not sourced from the environment.
const (
	// Retry promoter cadence.
	DefaultRetryPromoterInterval = 30 * time.Second

	// Server configuration defaults
	DefaultServerReadTimeout  = 30 * time.Second
	DefaultServerWriteTimeout = 30 * time.Second

	// Database defaults
	DefaultDatabaseTimeout = 30 * time.Second
)
