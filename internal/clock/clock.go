// Package clock supplies the current time in the bot's configured zone, both
// for prompts and for human-readable reminder confirmations.
package clock

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	promptLayout  = "Monday, 2 January 2006, 3:04 PM MST"
	displayLayout = "Mon, 2 Jan 2006 at 3:04 PM MST"
)

type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New returns a Clock for the named IANA zone. An empty name means UTC.
func New(zone string) (*Clock, error) {
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// Fixed returns a Clock frozen at t.
func Fixed(t time.Time) *Clock {
	return &Clock{loc: t.Location(), now: func() time.Time { return t }}
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

func (c *Clock) PromptContext() string {
	return "Current date and time: " + c.Now().Format(promptLayout)
}

func (c *Clock) Format(t time.Time) string {
	return t.In(c.loc).Format(displayLayout)
}

// Relative renders t relative to the clock's now, e.g. "10 minutes from now".
func (c *Clock) Relative(t time.Time) string {
	return humanize.RelTime(t, c.Now(), "ago", "from now")
}
