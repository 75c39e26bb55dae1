package infra

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// MonotonicClock measures elapsed time since host boot. The uptime read at
// construction is advanced with Go's monotonic clock, so wall clock changes
// never move it and every process on the host agrees on it to the second.
type MonotonicClock struct {
	base   time.Duration
	start  time.Time
	bootID int64
}

// NewMonotonicClock samples host uptime and boot time.
func NewMonotonicClock() (*MonotonicClock, error) {
	uptime, err := host.Uptime()
	if err != nil {
		return nil, fmt.Errorf("failed to read host uptime: %w", err)
	}
	bootTime, err := host.BootTime()
	if err != nil {
		return nil, fmt.Errorf("failed to read host boot time: %w", err)
	}
	return &MonotonicClock{
		base:   time.Duration(uptime) * time.Second,
		start:  time.Now(),
		bootID: int64(bootTime),
	}, nil
}

// Elapsed returns time since boot.
func (c *MonotonicClock) Elapsed() time.Duration {
	return c.base + time.Since(c.start)
}

// Now returns the wall clock.
func (c *MonotonicClock) Now() time.Time {
	return time.Now()
}

// BootID returns the host boot time in unix seconds.
func (c *MonotonicClock) BootID() int64 {
	return c.bootID
}

// CurrentBootID reads the host boot time without building a clock.
func CurrentBootID() (int64, error) {
	bootTime, err := host.BootTime()
	if err != nil {
		return 0, fmt.Errorf("failed to read host boot time: %w", err)
	}
	return int64(bootTime), nil
}

var _ domain.Clock = (*MonotonicClock)(nil)
