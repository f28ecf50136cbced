package models

import "time"

// UsageStats is the rolling daily row counter.
type UsageStats struct {
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"resetAt"`
}

// Remaining never goes below zero even when Used overshot the limit.
func (u UsageStats) Remaining() int {
	if u.Used >= u.Limit {
		return 0
	}
	return u.Limit - u.Used
}
