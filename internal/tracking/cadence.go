package tracking

import (
	"fmt"
	"time"
)

// Cadence is the polling schedule of a session.
type Cadence struct {
	Period      time.Duration `mapstructure:"period"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// Default cadences. Both give up after roughly five minutes.
var (
	DefaultSingleCadence = Cadence{Period: 5 * time.Second, MaxAttempts: 60}
	DefaultBatchCadence  = Cadence{Period: 15 * time.Second, MaxAttempts: 20}
)

// Validate rejects non-positive periods or budgets.
func (c Cadence) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("cadence period must be > 0, got %s", c.Period)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("cadence max attempts must be > 0, got %d", c.MaxAttempts)
	}
	return nil
}

// Budget is the wall-clock span after which the session times out.
func (c Cadence) Budget() time.Duration {
	return c.Period * time.Duration(c.MaxAttempts)
}

// Cadences selects the schedule for a job by its size.
type Cadences struct {
	Single Cadence
	Batch  Cadence
}

// For returns Single for one-item jobs and Batch otherwise.
func (c Cadences) For(target int) Cadence {
	if target == 1 {
		return c.Single
	}
	return c.Batch
}

func (c Cadences) withDefaults() Cadences {
	if c.Single.Period <= 0 || c.Single.MaxAttempts <= 0 {
		c.Single = DefaultSingleCadence
	}
	if c.Batch.Period <= 0 || c.Batch.MaxAttempts <= 0 {
		c.Batch = DefaultBatchCadence
	}
	return c
}
