package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned when a cron expression or timezone cannot be parsed
var ErrInvalidSchedule = errors.New("invalid schedule configuration")

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CronConfig is the schedule of a cron trigger. Expressions use the standard
// 5-field format (minute hour day month weekday) or descriptors like @hourly.
type CronConfig struct {
	CronExpression string     `json:"cron_expression"         validate:"required"`
	Timezone       string     `json:"timezone,omitempty"`
	NextRunTime    *time.Time `json:"next_run_time,omitempty"`
}

func (c *CronConfig) Validate() error {
	if c == nil {
		return ErrInvalidSchedule
	}

	if _, err := c.schedule(); err != nil {
		return err
	}

	_, err := c.location()

	return err
}

func (c *CronConfig) location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidSchedule, c.Timezone, err)
	}

	return loc, nil
}

func (c *CronConfig) schedule() (cron.Schedule, error) {
	sched, err := cronParser.Parse(c.CronExpression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
	}

	return sched, nil
}

// NextRun returns the first activation strictly after the reference time,
// evaluated in the configured timezone.
func (c *CronConfig) NextRun(after time.Time) (time.Time, error) {
	sched, err := c.schedule()
	if err != nil {
		return time.Time{}, err
	}

	loc, err := c.location()
	if err != nil {
		return time.Time{}, err
	}

	return sched.Next(after.In(loc)).UTC(), nil
}

// Advance recomputes NextRunTime from the reference time.
func (c *CronConfig) Advance(after time.Time) error {
	next, err := c.NextRun(after)
	if err != nil {
		return err
	}

	c.NextRunTime = &next

	return nil
}

// IsDue reports whether the schedule should fire at now.
func (c *CronConfig) IsDue(now time.Time) bool {
	return c.NextRunTime != nil && !c.NextRunTime.After(now)
}
