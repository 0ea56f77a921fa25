// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package boot

import (
	"math"
	"time"
)

// BackoffConfig shapes the delays between loader polls.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff returns the 5, 10, 20, 40, 60, 60, ... sequence in units of
// unit.
func DefaultBackoff(unit time.Duration) BackoffConfig {
	return BackoffConfig{
		InitialDelay: 5 * unit,
		MaxDelay:     60 * unit,
		Multiplier:   2,
	}
}

// NextDelay returns the poll timeout for attempt N (1-based).
func NextDelay(cfg BackoffConfig, attempt int) time.Duration {
	if attempt <= 1 || cfg.InitialDelay <= 0 {
		return cfg.InitialDelay
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
