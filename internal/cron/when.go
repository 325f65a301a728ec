package cron

import (
	"errors"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	ErrUnparseableTime = errors.New("could not understand the time")
	ErrPastTime        = errors.New("time is not in the future")
)

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseWhen resolves a natural-language time expression such as
// "in 10 minutes" or "tomorrow at 9am" relative to now. The result must lie
// strictly after now.
func ParseWhen(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, ErrUnparseableTime
	}

	at, ok := parse(text, now)
	if !ok {
		// Models often drop the preposition: "10 minutes".
		at, ok = parse("in "+text, now)
	}
	if !ok {
		return time.Time{}, ErrUnparseableTime
	}
	if !at.After(now) {
		return time.Time{}, ErrPastTime
	}
	return at, nil
}

func parse(text string, now time.Time) (time.Time, bool) {
	r, err := parser.Parse(text, now)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	return r.Time, true
}
