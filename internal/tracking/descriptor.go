package tracking

import (
	"fmt"
	"time"
)

// Descriptor is the persisted record of the job currently being tracked.
type Descriptor struct {
	InProgress           bool  `json:"inProgress"`
	BaselineCount        int   `json:"baselineCount"`
	TargetCount          int   `json:"targetCount"`
	StartedAtEpochMillis int64 `json:"startedAtEpochMillis"`
}

// NewDescriptor returns an in-progress descriptor started at now.
func NewDescriptor(baseline, target int, now time.Time) Descriptor {
	return Descriptor{
		InProgress:           true,
		BaselineCount:        baseline,
		TargetCount:          target,
		StartedAtEpochMillis: now.UnixMilli(),
	}
}

// Validate checks the structural invariants of a decoded descriptor.
func (d Descriptor) Validate() error {
	if d.TargetCount <= 0 {
		return fmt.Errorf("%w: targetCount %d must be > 0", ErrInvalidDescriptor, d.TargetCount)
	}
	if d.BaselineCount < 0 {
		return fmt.Errorf("%w: baselineCount %d must be >= 0", ErrInvalidDescriptor, d.BaselineCount)
	}
	if d.StartedAtEpochMillis <= 0 {
		return fmt.Errorf("%w: startedAtEpochMillis is required", ErrInvalidDescriptor)
	}
	return nil
}

// StartedAt converts StartedAtEpochMillis to a UTC time.
func (d Descriptor) StartedAt() time.Time {
	return time.UnixMilli(d.StartedAtEpochMillis).UTC()
}

// Age is the time elapsed since the job was started.
func (d Descriptor) Age(now time.Time) time.Duration {
	return now.Sub(d.StartedAt())
}

// Stale reports whether the descriptor is older than ttl.
func (d Descriptor) Stale(now time.Time, ttl time.Duration) bool {
	return d.Age(now) > ttl
}

// Progress derives progress from an observed aggregate count, clamped to
// [0, TargetCount].
func (d Descriptor) Progress(current int) int {
	return clamp(current-d.BaselineCount, 0, d.TargetCount)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
